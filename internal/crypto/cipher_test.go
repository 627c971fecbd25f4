package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("passphrase-one")
	require.NoError(t, err)

	ct, err := c.Encrypt("super-secret-api-key")
	require.NoError(t, err)
	assert.NotContains(t, ct, "super-secret-api-key")

	pt, err := c.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-api-key", pt)
}

func TestNonceUniquePerEncryption(t *testing.T) {
	c, err := NewCipher("passphrase-one")
	require.NoError(t, err)

	a, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := c.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKeyIsKeyMismatch(t *testing.T) {
	c1, _ := NewCipher("passphrase-one")
	c2, _ := NewCipher("passphrase-two")

	ct, err := c1.Encrypt("payload")
	require.NoError(t, err)

	_, err = c2.Decrypt(ct)
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestDecryptCorruptedCiphertext(t *testing.T) {
	c, _ := NewCipher("passphrase-one")
	ct, err := c.Encrypt("payload")
	require.NoError(t, err)

	// Flip a character inside the base64 body.
	corrupted := ct[:len(ct)-2] + "A="
	_, err = c.Decrypt(corrupted)
	assert.Error(t, err)

	_, err = c.Decrypt("not a ciphertext at all")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestEmptyPassphraseRejected(t *testing.T) {
	_, err := NewCipher("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestKeyTagStableAndParseable(t *testing.T) {
	c1, _ := NewCipher("passphrase-one")
	c1b, _ := NewCipher("passphrase-one")
	c2, _ := NewCipher("passphrase-two")

	assert.Equal(t, c1.KeyTag(), c1b.KeyTag())
	assert.NotEqual(t, c1.KeyTag(), c2.KeyTag())
	assert.Len(t, c1.KeyTag(), 8)

	ct, err := c1.Encrypt("x")
	require.NoError(t, err)
	assert.Equal(t, c1.KeyTag(), ParseKeyTag(ct))
	assert.Equal(t, "", ParseKeyTag("garbage"))
}

func TestKeyringRoutesByTag(t *testing.T) {
	kr, err := NewKeyring("key-alpha")
	require.NoError(t, err)

	oldCipher := kr.Active()
	ctOld, err := oldCipher.Encrypt("written under alpha")
	require.NoError(t, err)

	newCipher, err := kr.Promote("key-beta")
	require.NoError(t, err)
	assert.Equal(t, newCipher.KeyTag(), kr.Active().KeyTag())

	ctNew, err := kr.Active().Encrypt("written under beta")
	require.NoError(t, err)

	// Both generations stay readable after the promote.
	pt, err := kr.DecryptAny(ctOld)
	require.NoError(t, err)
	assert.Equal(t, "written under alpha", pt)

	pt, err = kr.DecryptAny(ctNew)
	require.NoError(t, err)
	assert.Equal(t, "written under beta", pt)
}

func TestKeyringUnknownTag(t *testing.T) {
	kr, err := NewKeyring("key-alpha")
	require.NoError(t, err)

	stranger, _ := NewCipher("key-gamma")
	ct, err := stranger.Encrypt("x")
	require.NoError(t, err)

	_, err = kr.DecryptAny(ct)
	assert.ErrorIs(t, err, ErrKeyMismatch)
}
