package crypto

import (
	"fmt"
	"sync"
)

// Keyring holds the active credential key plus any older keys still
// needed to read not-yet-rotated ciphertexts. Writes always use the
// active key; reads route by the ciphertext's key tag.
type Keyring struct {
	mu      sync.RWMutex
	active  *Cipher
	ciphers map[string]*Cipher // by key tag
}

func NewKeyring(activePassphrase string) (*Keyring, error) {
	active, err := NewCipher(activePassphrase)
	if err != nil {
		return nil, err
	}
	return &Keyring{
		active:  active,
		ciphers: map[string]*Cipher{active.KeyTag(): active},
	}, nil
}

// Active returns the cipher new ciphertexts are written with.
func (k *Keyring) Active() *Cipher {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active
}

// Add registers an additional key for decryption only.
func (k *Keyring) Add(passphrase string) (*Cipher, error) {
	c, err := NewCipher(passphrase)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ciphers[c.KeyTag()] = c
	return c, nil
}

// Promote makes the given key the active one, keeping prior keys
// available for reads. Used to finish a zero-downtime rotation.
func (k *Keyring) Promote(passphrase string) (*Cipher, error) {
	c, err := NewCipher(passphrase)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ciphers[c.KeyTag()] = c
	k.active = c
	return c, nil
}

// DecryptAny opens a ciphertext with whichever registered key produced
// it.
func (k *Keyring) DecryptAny(ciphertext string) (string, error) {
	tag := ParseKeyTag(ciphertext)
	if tag == "" {
		return "", ErrInvalidCiphertext
	}
	k.mu.RLock()
	c, ok := k.ciphers[tag]
	k.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("key %s not available: %w", tag, ErrKeyMismatch)
	}
	return c.Decrypt(ciphertext)
}
