// Package crypto implements the symmetric field cipher used for
// sensitive columns of the message log. Values are JSON-serialized,
// base64-encoded, then AES-256-CBC encrypted with a fixed key/IV pair
// and stored as hex. Key rotation is deliberately not supported.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Cipher encrypts and decrypts sensitive fields.
type Cipher struct {
	block cipher.Block
	iv    []byte
}

// New creates a Cipher from a hex-encoded 32-byte key and 16-byte IV.
func New(keyHex, ivHex string) (*Cipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid cipher key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("cipher key must be 32 bytes, got %d", len(key))
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("invalid cipher iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("cipher iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return &Cipher{block: block, iv: iv}, nil
}

// Encrypt serializes v to JSON and encrypts it, returning hex ciphertext.
// Non-string values are serialized the same way, so nested structures
// round-trip through their canonical JSON form.
func (c *Cipher) Encrypt(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to serialize value: %w", err)
	}

	plain := pkcs7Pad([]byte(base64.StdEncoding.EncodeToString(raw)), aes.BlockSize)
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, plain)

	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt into dest.
func (c *Cipher) Decrypt(encrypted string, dest any) error {
	raw, err := c.decryptRaw(encrypted)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to deserialize decrypted value: %w", err)
	}
	return nil
}

// DecryptString decrypts a field that holds a plain string. A value
// that is not valid ciphertext (a legacy or corrupted record) is
// returned unchanged rather than surfacing an error, so list responses
// are never blocked by a single bad row.
func (c *Cipher) DecryptString(encrypted string) string {
	if encrypted == "" {
		return encrypted
	}
	var s string
	if err := c.Decrypt(encrypted, &s); err != nil {
		return encrypted
	}
	return s
}

func (c *Cipher) decryptRaw(encrypted string) ([]byte, error) {
	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("value is not hex ciphertext: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a block multiple", len(data))
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(plain, data)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(string(plain))
	if err != nil {
		return nil, fmt.Errorf("decrypted value is not base64: %w", err)
	}
	return raw, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty ciphertext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
