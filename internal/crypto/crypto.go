// Package crypto provides authenticated symmetric encryption (AES-256-GCM)
// for individual capture-store lines, plus key resolution from an inline
// value, an environment variable, or a key file.
//
// No example repo in the retrieval pack wires a third-party AEAD library,
// so this package is the one deliberate exception to "never fall back to
// the standard library": crypto/aes + crypto/cipher is the idiomatic Go
// choice here.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/brianfong96/CookieMonster/internal/cmerrors"
)

const keySizeBytes = 32

// EncryptedPrefix marks a capture-store line as ciphertext.
const EncryptedPrefix = "ENC:"

// Key is a resolved 256-bit AEAD key.
type Key struct {
	raw [keySizeBytes]byte
}

// GenerateKey produces a fresh random key, base64url-encoded for storage.
func GenerateKey() (string, error) {
	var buf [keySizeBytes]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return "", fmt.Errorf("crypto: generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

// ParseKey decodes a base64url-encoded 256-bit key.
func ParseKey(encoded string) (Key, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// Tolerate padded base64url too, since env vars are easy to paste with padding.
		decoded, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return Key{}, fmt.Errorf("crypto: invalid key encoding: %w", err)
		}
	}
	if len(decoded) != keySizeBytes {
		return Key{}, fmt.Errorf("crypto: key must decode to %d bytes, got %d", keySizeBytes, len(decoded))
	}
	var k Key
	copy(k.raw[:], decoded)
	return k, nil
}

// KeySource describes where to look for an encryption key, in precedence
// order: inline value, then environment variable name, then key file path.
type KeySource struct {
	Inline  string
	EnvVar  string
	KeyFile string
}

const maxKeyFileBytes = 4096

// Resolve resolves a KeySource to a Key. Returns (Key{}, false, nil) when no
// source yields a value, which is not an error by itself — callers decide
// whether a missing key is fatal given whether the store contains ENC: lines.
func Resolve(src KeySource) (Key, bool, error) {
	if src.Inline != "" {
		k, err := ParseKey(src.Inline)
		if err != nil {
			return Key{}, false, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "invalid inline encryption key", err)
		}
		return k, true, nil
	}

	if src.EnvVar != "" {
		if v := os.Getenv(src.EnvVar); v != "" {
			k, err := ParseKey(v)
			if err != nil {
				return Key{}, false, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "invalid encryption key in "+src.EnvVar, err)
			}
			return k, true, nil
		}
	}

	if src.KeyFile != "" {
		info, err := os.Stat(src.KeyFile)
		if err != nil {
			if os.IsNotExist(err) {
				return Key{}, false, nil
			}
			return Key{}, false, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "stat key file", err)
		}
		if !info.Mode().IsRegular() {
			return Key{}, false, cmerrors.New(cmerrors.CodeConfigInvalid, "key file is not a regular file: "+src.KeyFile)
		}
		if info.Size() > maxKeyFileBytes {
			return Key{}, false, cmerrors.New(cmerrors.CodeConfigInvalid, "key file too large: "+src.KeyFile)
		}
		data, err := os.ReadFile(src.KeyFile)
		if err != nil {
			return Key{}, false, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "read key file", err)
		}
		k, err := ParseKey(trimNewline(string(data)))
		if err != nil {
			return Key{}, false, cmerrors.Wrap(cmerrors.CodeConfigInvalid, "invalid key in "+src.KeyFile, err)
		}
		return k, true, nil
	}

	return Key{}, false, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

func aead(k Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.raw[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt returns an opaque ciphertext (nonce prefix + sealed box) for
// plaintext under k. No key identifier is embedded per spec.
func Encrypt(plaintext []byte, k Key) ([]byte, error) {
	gcm, err := aead(k)
	if err != nil {
		return nil, fmt.Errorf("crypto: build AEAD: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// ErrAuthFailure indicates the ciphertext failed authentication under the
// given key (wrong key, or tampered/corrupt data).
var ErrAuthFailure = errors.New("crypto: ciphertext authentication failed")

// Decrypt reverses Encrypt. Returns ErrAuthFailure on any authentication
// failure so callers can distinguish it from structural errors.
func Decrypt(ciphertext []byte, k Key) ([]byte, error) {
	gcm, err := aead(k)
	if err != nil {
		return nil, fmt.Errorf("crypto: build AEAD: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, ErrAuthFailure
	}
	nonce, box := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

// EncryptLine wraps Encrypt with the capture-store ENC: line encoding.
func EncryptLine(plaintext []byte, k Key) (string, error) {
	ct, err := Encrypt(plaintext, k)
	if err != nil {
		return "", err
	}
	return EncryptedPrefix + base64.RawURLEncoding.EncodeToString(ct), nil
}

// DecryptLine reverses EncryptLine. line must already be known to carry the
// EncryptedPrefix.
func DecryptLine(line string, k Key) ([]byte, error) {
	encoded := line[len(EncryptedPrefix):]
	ct, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid base64 in encrypted line: %w", err)
	}
	return Decrypt(ct, k)
}
