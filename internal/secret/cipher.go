// Package secret encrypts wallet private keys at rest.
//
// Payloads are AES-256-CBC with PKCS#7 padding and a random 16-byte IV,
// serialized as hex(iv) + ":" + hex(ciphertext). Records written under one
// key cannot be read under another; there is no key rotation.
package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	clierr "github.com/ggonzalez94/agent-wallet/internal/errors"
)

const (
	KeySize   = 32
	delimiter = ":"
)

type Cipher struct {
	key  []byte
	rand io.Reader
}

// NewCipher returns a cipher bound to a 32-byte AES-256 key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("encryption key must be %d bytes, got %d", KeySize, len(key)))
	}
	buf := make([]byte, KeySize)
	copy(buf, key)
	return &Cipher{key: buf, rand: rand.Reader}, nil
}

// ParseKey decodes a hex encryption key, with or without a 0x prefix.
func ParseKey(hexKey string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if clean == "" {
		return nil, clierr.New(clierr.CodeConfig, "encryption key is not configured")
	}
	key, err := hex.DecodeString(clean)
	if err != nil {
		return nil, clierr.New(clierr.CodeConfig, "encryption key is not valid hex")
	}
	if len(key) != KeySize {
		return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("encryption key must be %d bytes, got %d", KeySize, len(key)))
	}
	return key, nil
}

// NewCipherFromHex is ParseKey followed by NewCipher.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}

func (c *Cipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "init cipher", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "generate iv", err)
	}
	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + delimiter + hex.EncodeToString(out), nil
}

func (c *Cipher) Decrypt(payload string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(strings.TrimSpace(payload), delimiter)
	if !ok {
		return "", decryptErr("payload is missing the iv delimiter")
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", decryptErr("iv is not valid hex")
	}
	if len(iv) != aes.BlockSize {
		return "", decryptErr(fmt.Sprintf("iv must be %d bytes, got %d", aes.BlockSize, len(iv)))
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", decryptErr("ciphertext is not valid hex")
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", decryptErr("ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "init cipher", err)
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeDecryption, "decrypt wallet key", err)
	}
	return string(plain), nil
}

func decryptErr(msg string) error {
	return clierr.New(clierr.CodeDecryption, "decrypt wallet key: "+msg)
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("bad padding")
		}
	}
	return data[:len(data)-n], nil
}
