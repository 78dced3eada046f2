// Package crypto encrypts credentials that are cached or persisted locally.
//
// Ciphertexts are self-describing envelopes: "enc:v1:" followed by the
// base64 encoding of nonce||sealed. The prefix lets callers tell an encrypted
// value from a plaintext one without attempting a decryption.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// EnvelopePrefix marks a value produced by Encrypt.
const EnvelopePrefix = "enc:v1:"

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrDecryption is returned for tampered input, a mismatched key, or a value
// that is not an envelope.
var ErrDecryption = errors.New("decryption failed")

// GenerateKey returns a fresh random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// DecodeKey parses a base64 encoded AES-256 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("decode key: want %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Encrypt seals plaintext with AES-GCM under a fresh nonce.
func Encrypt(plaintext, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return EnvelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt.
func Decrypt(envelope string, key []byte) ([]byte, error) {
	if !IsEncrypted(envelope) {
		return nil, fmt.Errorf("%w: missing envelope prefix", ErrDecryption)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(envelope, EnvelopePrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

// IsEncrypted reports whether s carries the envelope prefix.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, EnvelopePrefix)
}

// DecryptString decrypts an envelope into a string, passing values without
// the envelope prefix through only when allowPlaintext is set.
func DecryptString(value string, key []byte, allowPlaintext bool) (string, error) {
	if value == "" {
		return "", nil
	}
	if !IsEncrypted(value) {
		if allowPlaintext {
			return value, nil
		}
		return "", fmt.Errorf("%w: credential is not encrypted", ErrDecryption)
	}
	plaintext, err := Decrypt(value, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrDecryption, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
