package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	keyLen    = 32
	ivLen     = 12
	gcmTagLen = 16

	minSealedLen = ivLen + gcmTagLen // 28 bytes minimum
)

// Cipher seals and opens credential secret material with a static master key
// using AES-256-GCM. Sealed format: iv(12) || ciphertext+tag.
type Cipher struct {
	key [32]byte
}

func NewCipher(key [32]byte) *Cipher {
	return &Cipher{key: key}
}

// ParseKey decodes a hex encoded 256-bit master key.
func ParseKey(encoded string) ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return key, fmt.Errorf("decode master key: %w", err)
	}
	if len(raw) != keyLen {
		return key, fmt.Errorf("master key must be %d bytes, got %d", keyLen, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate IV: %w", err)
	}

	ct := gcm.Seal(nil, iv, plaintext, nil)

	out := make([]byte, 0, ivLen+len(ct))
	out = append(out, iv...)
	out = append(out, ct...)
	return out, nil
}

func (c *Cipher) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < minSealedLen {
		return nil, errors.New("sealed material too short")
	}

	iv := sealed[:ivLen]
	ct := sealed[ivLen:]

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
