// Package crypto implements the authenticated encryption used for
// exchange credentials at rest, with per-ciphertext key tags so a
// partially rotated store stays decryptable.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// NonceSize is the GCM nonce length; a fresh random nonce is drawn
	// per encryption.
	NonceSize = 12
	// keyTagLen is the hex length of a key fingerprint embedded in
	// every ciphertext.
	keyTagLen = 8
)

var (
	ErrEmptyKey          = errors.New("encryption key must not be empty")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrKeyMismatch       = errors.New("ciphertext was produced by a different key")
)

// Cipher is an AES-256-GCM cipher bound to one operator passphrase.
// The AES key is derived from the passphrase with SHA-256, and the key
// tag is the first 8 hex chars of that digest.
type Cipher struct {
	aead cipher.AEAD
	tag  string
}

// NewCipher derives an AES-256 key from the passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	digest := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(digest[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Cipher{
		aead: aead,
		tag:  hex.EncodeToString(digest[:])[:keyTagLen],
	}, nil
}

// KeyTag returns the fingerprint this cipher stamps on its output.
func (c *Cipher) KeyTag() string {
	return c.tag
}

// Encrypt seals plaintext as v<tag>:base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return "v" + c.tag + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by this cipher's key. A tag
// mismatch is reported as ErrKeyMismatch so rotation can distinguish
// "wrong key" from "corrupted record".
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	tag, data, err := splitCiphertext(ciphertext)
	if err != nil {
		return "", err
	}
	if tag != c.tag {
		return "", ErrKeyMismatch
	}
	if len(data) < NonceSize {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := c.aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// ParseKeyTag extracts the key fingerprint from a ciphertext, or ""
// when the format is unrecognizable.
func ParseKeyTag(ciphertext string) string {
	tag, _, err := splitCiphertext(ciphertext)
	if err != nil {
		return ""
	}
	return tag
}

func splitCiphertext(ciphertext string) (string, []byte, error) {
	if !strings.HasPrefix(ciphertext, "v") {
		return "", nil, ErrInvalidCiphertext
	}
	rest := ciphertext[1:]
	sep := strings.IndexByte(rest, ':')
	if sep != keyTagLen {
		return "", nil, ErrInvalidCiphertext
	}
	data, err := base64.StdEncoding.DecodeString(rest[sep+1:])
	if err != nil {
		return "", nil, fmt.Errorf("base64 decode: %w", err)
	}
	return rest[:sep], data, nil
}
