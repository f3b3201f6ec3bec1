package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func mustKey(t *testing.T) Key {
	t.Helper()
	encoded, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	k, err := ParseKey(encoded)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	k := mustKey(t)
	plaintext := []byte(`{"hello":"world"}`)

	ct, err := Encrypt(plaintext, k)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := Decrypt(ct, k)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	k1 := mustKey(t)
	k2 := mustKey(t)

	ct, err := Encrypt([]byte("secret"), k1)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(ct, k2); err != ErrAuthFailure {
		t.Fatalf("expected ErrAuthFailure, got %v", err)
	}
}

func TestEncryptLineDecryptLineRoundTrip(t *testing.T) {
	k := mustKey(t)
	line, err := EncryptLine([]byte("payload"), k)
	if err != nil {
		t.Fatalf("EncryptLine: %v", err)
	}
	if line[:len(EncryptedPrefix)] != EncryptedPrefix {
		t.Fatalf("expected ENC: prefix, got %q", line)
	}
	got, err := DecryptLine(line, k)
	if err != nil {
		t.Fatalf("DecryptLine: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("got %q want payload", got)
	}
}

func TestResolveInlinePrecedesEnvAndFile(t *testing.T) {
	inlineKey, _ := GenerateKey()
	envKey, _ := GenerateKey()
	t.Setenv("CM_TEST_KEY", envKey)

	k, ok, err := Resolve(KeySource{Inline: inlineKey, EnvVar: "CM_TEST_KEY"})
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	want, _ := ParseKey(inlineKey)
	if k != want {
		t.Fatalf("expected inline key to win")
	}
}

func TestResolveKeyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.txt")
	keyStr, _ := GenerateKey()
	if err := os.WriteFile(path, []byte(keyStr+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	k, ok, err := Resolve(KeySource{KeyFile: path})
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	want, _ := ParseKey(keyStr)
	if k != want {
		t.Fatalf("key mismatch")
	}
}

func TestResolveNoSourceReturnsNotOK(t *testing.T) {
	_, ok, err := Resolve(KeySource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false when no source configured")
	}
}
