package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scryptN is the scrypt cost parameter used for every encrypted secret.
var scryptN = 1 << 15

// encrypt seals plaintext under a key derived from password. The result is
// "salt:iv:ciphertext", each part base64 encoded.
func encrypt(plaintext, password string) (string, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read salt: %w", err)
	}
	aead, err := newAEAD(password, salt)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)

	enc := base64.StdEncoding
	return enc.EncodeToString(salt) + ":" + enc.EncodeToString(iv) + ":" + enc.EncodeToString(sealed), nil
}

func decrypt(ciphertext, password string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid ciphertext format")
	}
	var raw [3][]byte
	for i, part := range parts {
		b, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
		}
		raw[i] = b
	}

	aead, err := newAEAD(password, raw[0])
	if err != nil {
		return "", err
	}
	if len(raw[1]) != aead.NonceSize() {
		return "", fmt.Errorf("invalid nonce length %d", len(raw[1]))
	}
	plaintext, err := aead.Open(nil, raw[1], raw[2], nil)
	if err != nil {
		return "", ErrInvalidPassword
	}
	return string(plaintext), nil
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
