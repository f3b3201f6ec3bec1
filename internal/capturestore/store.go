package capturestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/brianfong96/CookieMonster/internal/cmerrors"
	"github.com/brianfong96/CookieMonster/internal/crypto"
)

const (
	// maxRecordBytes rejects individual records at write time (spec §4.C).
	maxRecordBytes = 1 << 20 // 1 MiB
	// maxLineBytes bounds a line's length before parsing at read time.
	maxLineBytes = 2 << 20 // 2 MiB
	// streamThresholdBytes is the store size above which ShouldStream
	// reports true.
	streamThresholdBytes = 32 << 20
)

// Writer appends CaptureRecords to a JSONL file, one per line, optionally
// AEAD-encrypting each line. Durability is fsync-on-close, not per-record,
// matching spec §4.C. The writer holds an advisory exclusive lock on the
// file for its lifetime so two writers can never interleave on one path
// (spec.md §9's concurrent-capture open question, resolved: forbidden).
type Writer struct {
	mu   sync.Mutex
	file *os.File
	key  *crypto.Key
}

// OpenAppend opens (creating if necessary) path for append, taking an
// advisory exclusive lock for the writer's lifetime.
func OpenAppend(path string, key *crypto.Key) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "create capture store directory", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "open capture store for append", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "capture store already locked by another writer: "+path, err)
	}

	return &Writer{file: f, key: key}, nil
}

// Append assembles the record in memory, then writes exactly one line; no
// partial line is ever written (spec §5 cancellation guarantee). It returns
// the number of bytes written to the file, line terminator included, so
// callers can accumulate a running total for CaptureSummary.bytes_written.
func (w *Writer) Append(r CaptureRecord) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("capturestore: marshal record: %w", err)
	}
	if len(data) > maxRecordBytes {
		return 0, cmerrors.New(cmerrors.CodeRecordTooLarge, fmt.Sprintf("record is %d bytes, max %d", len(data), maxRecordBytes))
	}

	line := string(data)
	if w.key != nil {
		line, err = crypto.EncryptLine(data, *w.key)
		if err != nil {
			return 0, fmt.Errorf("capturestore: encrypt record: %w", err)
		}
	}

	n, err := w.file.WriteString(line + "\n")
	if err != nil {
		return 0, fmt.Errorf("capturestore: write line: %w", err)
	}
	return n, nil
}

// Close flushes and releases the file (and its advisory lock).
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("capturestore: fsync on close: %w", err)
	}
	return w.file.Close()
}

// LoadResult carries decoded records plus the skip counters spec §7
// requires be visible to callers (not fatal to the load).
type LoadResult struct {
	Records      []CaptureRecord
	CorruptLines int
	AuthFailures int
}

// LoadAll reads every line of path, decrypting ENC: lines with key if
// provided. Malformed lines and auth failures are skipped and counted, not
// fatal — except that any ENC: line with no key available fails the whole
// load with EncryptedStoreRequiresKey and yields no partial records, per
// spec testable property 3.
func LoadAll(path string, key *crypto.Key) (LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadResult{}, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "open capture store", err)
	}
	defer f.Close()

	var result LoadResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var plaintext []byte
		if len(line) >= len(crypto.EncryptedPrefix) && line[:len(crypto.EncryptedPrefix)] == crypto.EncryptedPrefix {
			if key == nil {
				return LoadResult{}, cmerrors.New(cmerrors.CodeEncryptedStoreRequiresKey, "capture store contains encrypted lines but no key was provided")
			}
			plaintext, err = crypto.DecryptLine(line, *key)
			if err != nil {
				result.AuthFailures++
				continue
			}
		} else {
			plaintext = []byte(line)
		}

		var rec CaptureRecord
		if err := json.Unmarshal(plaintext, &rec); err != nil {
			result.CorruptLines++
			continue
		}
		result.Records = append(result.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return LoadResult{}, fmt.Errorf("capturestore: scan: %w", err)
	}

	return result, nil
}

// ShouldStream reports whether a file is larger than 32 MiB. The package
// has no incremental reader: LoadAll reads the whole file into memory
// whatever this reports.
func ShouldStream(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > streamThresholdBytes
}
