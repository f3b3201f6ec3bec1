package capturestore

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianfong96/CookieMonster/internal/crypto"
)

func sampleRecord() CaptureRecord {
	post := "body=1"
	return CaptureRecord{
		RequestID:    "req-1",
		Method:       "GET",
		URL:          "https://a.example/x",
		Host:         "a.example",
		ResourceType: "XHR",
		Headers:      map[string]string{"Cookie": "s=1"},
		PostData:     &post,
		CapturedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStoreRoundTripPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.jsonl")
	rec := sampleRecord()

	w, err := OpenAppend(path, nil)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if _, err := w.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, err := LoadAll(path, nil)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	got := result.Records[0]
	if got.RequestID != rec.RequestID || got.Method != rec.Method || got.URL != rec.URL ||
		got.Host != rec.Host || got.ResourceType != rec.ResourceType || *got.PostData != *rec.PostData {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, rec)
	}
	if got.Headers["Cookie"] != "s=1" {
		t.Fatalf("header mismatch: %+v", got.Headers)
	}
}

func TestStoreRoundTripEncrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.jsonl")
	keyStr, _ := crypto.GenerateKey()
	key, _ := crypto.ParseKey(keyStr)
	rec := sampleRecord()

	w, err := OpenAppend(path, &key)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if _, err := w.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, err := LoadAll(path, &key)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].RequestID != rec.RequestID {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestMixedModeTolerance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.jsonl")
	keyStr, _ := crypto.GenerateKey()
	key, _ := crypto.ParseKey(keyStr)

	wPlain, err := OpenAppend(path, nil)
	if err != nil {
		t.Fatalf("OpenAppend plain: %v", err)
	}
	for i := 0; i < 2; i++ {
		rec := sampleRecord()
		rec.RequestID = "plain"
		if _, err := wPlain.Append(rec); err != nil {
			t.Fatalf("append plain: %v", err)
		}
	}
	if err := wPlain.Close(); err != nil {
		t.Fatalf("close plain: %v", err)
	}

	wEnc, err := OpenAppend(path, &key)
	if err != nil {
		t.Fatalf("OpenAppend enc: %v", err)
	}
	for i := 0; i < 3; i++ {
		rec := sampleRecord()
		rec.RequestID = "enc"
		if _, err := wEnc.Append(rec); err != nil {
			t.Fatalf("append enc: %v", err)
		}
	}
	if err := wEnc.Close(); err != nil {
		t.Fatalf("close enc: %v", err)
	}

	result, err := LoadAll(path, &key)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(result.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(result.Records))
	}
	if result.Records[0].RequestID != "plain" || result.Records[4].RequestID != "enc" {
		t.Fatalf("order not preserved: %+v", result.Records)
	}
}

func TestEncryptedStoreRequiresKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.jsonl")
	keyStr, _ := crypto.GenerateKey()
	key, _ := crypto.ParseKey(keyStr)

	w, err := OpenAppend(path, &key)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if _, err := w.Append(sampleRecord()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, err := LoadAll(path, nil)
	if err == nil {
		t.Fatalf("expected error, got result %+v", result)
	}
	if !strings.Contains(err.Error(), "ENCRYPTED_STORE_REQUIRES_KEY") {
		t.Fatalf("expected EncryptedStoreRequiresKey, got %v", err)
	}
	if len(result.Records) != 0 {
		t.Fatalf("expected no partial records, got %d", len(result.Records))
	}
}

func TestCorruptLineSkippedNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.jsonl")
	w, err := OpenAppend(path, nil)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	if _, err := w.Append(sampleRecord()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := w.file.WriteString("{not valid json\n"); err != nil {
		t.Fatalf("write corrupt line: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	result, err := LoadAll(path, nil)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 valid record, got %d", len(result.Records))
	}
	if result.CorruptLines != 1 {
		t.Fatalf("expected 1 corrupt line counted, got %d", result.CorruptLines)
	}
}

func TestConcurrentWriterLockRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.jsonl")
	w1, err := OpenAppend(path, nil)
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	defer w1.Close()

	if _, err := OpenAppend(path, nil); err == nil {
		t.Fatalf("expected second writer to fail to acquire lock")
	}
}

func TestSelectorLastMatchWins(t *testing.T) {
	records := []CaptureRecord{
		{URL: "https://a.example/x", Method: "GET"},
		{URL: "https://a.example/y", Method: "GET"},
		{URL: "https://b.example/z", Method: "GET"},
	}
	got, ok := Select(records, Selector{URLContains: "a.example"})
	if !ok {
		t.Fatalf("expected a match")
	}
	if got.URL != "https://a.example/y" {
		t.Fatalf("expected last match to win, got %q", got.URL)
	}
}

func TestSelectorIndex(t *testing.T) {
	records := []CaptureRecord{
		{URL: "https://a.example/x"},
		{URL: "https://a.example/y"},
	}
	idx := 0
	got, ok := Select(records, Selector{URLContains: "a.example", Index: &idx})
	if !ok || got.URL != "https://a.example/x" {
		t.Fatalf("expected index 0 match, got %+v ok=%v", got, ok)
	}
}

func TestSelectorNoMatch(t *testing.T) {
	records := []CaptureRecord{{URL: "https://a.example/x", Method: "GET"}}
	_, ok := Select(records, Selector{Method: "POST"})
	if ok {
		t.Fatalf("expected no match")
	}
}
