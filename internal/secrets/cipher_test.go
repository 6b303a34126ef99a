package secrets

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) [32]byte {
	t.Helper()
	key, err := ParseKey("6368616e676520746869732070617373776f726420746f206120736563726574")
	require.NoError(t, err)
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := NewCipher(testKey(t))
	plaintext := []byte("[Interface]\nPrivateKey = abc123\nAddress = 10.0.0.2/32\n")

	sealed, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)
	assert.Equal(t, ivLen+len(plaintext)+gcmTagLen, len(sealed))

	opened, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(plaintext, opened))
}

func TestEncryptProducesFreshIV(t *testing.T) {
	c := NewCipher(testKey(t))
	plaintext := []byte("same input")

	first, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	second, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	// Same plaintext must never produce the same sealed bytes
	assert.NotEqual(t, first, second)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c := NewCipher(testKey(t))

	sealed, err := c.Encrypt([]byte("secret material"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = c.Decrypt(sealed)
	assert.Error(t, err)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	c := NewCipher(testKey(t))
	sealed, err := c.Encrypt([]byte("secret material"))
	require.NoError(t, err)

	otherKey, err := ParseKey(hex.EncodeToString(bytes.Repeat([]byte{0x42}, 32)))
	require.NoError(t, err)

	_, err = NewCipher(otherKey).Decrypt(sealed)
	assert.Error(t, err)
}

func TestDecryptRejectsShortInput(t *testing.T) {
	c := NewCipher(testKey(t))

	_, err := c.Decrypt([]byte("tiny"))
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	// Wrong length
	_, err := ParseKey("abcd")
	assert.Error(t, err)

	// Not hex
	_, err = ParseKey("zz68616e676520746869732070617373776f726420746f206120736563726574")
	assert.Error(t, err)

	key, err := ParseKey("6368616e676520746869732070617373776f726420746f206120736563726574")
	require.NoError(t, err)
	assert.Equal(t, byte('c'), key[0])
}
