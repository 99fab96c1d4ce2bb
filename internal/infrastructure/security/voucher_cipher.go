// Package security holds the at-rest protection for voucher secrets.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required length of the master key in bytes
	KeySize = 32
	ivSize  = aes.BlockSize
	tagSize = sha256.Size
)

// HKDF info labels; changing them invalidates every stored ciphertext.
var (
	infoEncryption  = []byte("manavault/voucher/aes-256-cbc")
	infoMAC         = []byte("manavault/voucher/hmac-sha256")
	infoFingerprint = []byte("manavault/voucher/fingerprint")
)

// VoucherCipher encrypts voucher codes and PINs with AES-256-CBC and
// authenticates them with HMAC-SHA256 over iv||ciphertext (encrypt-then-MAC).
// The encoded form is base64(iv || ciphertext || tag).
type VoucherCipher struct {
	encKey []byte
	macKey []byte
	fpKey  []byte
	random io.Reader
}

// NewVoucherCipher derives the sub-keys from a 32-byte master key.
func NewVoucherCipher(key []byte) (*VoucherCipher, error) {
	if len(key) != KeySize {
		return nil, shared.WrapDomainError(procurement.CodeInvalidKey,
			procurement.ErrInvalidKey.Message, fmt.Errorf("got %d bytes", len(key)))
	}
	c := &VoucherCipher{random: rand.Reader}
	var err error
	if c.encKey, err = deriveKey(key, infoEncryption); err != nil {
		return nil, err
	}
	if c.macKey, err = deriveKey(key, infoMAC); err != nil {
		return nil, err
	}
	if c.fpKey, err = deriveKey(key, infoFingerprint); err != nil {
		return nil, err
	}
	return c, nil
}

// NewVoucherCipherFromBase64 decodes a configured key. A "base64:" prefix is accepted.
func NewVoucherCipherFromBase64(encoded string) (*VoucherCipher, error) {
	encoded = strings.TrimPrefix(strings.TrimSpace(encoded), "base64:")
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, shared.WrapDomainError(procurement.CodeInvalidKey, "voucher encryption key is not valid base64", err)
	}
	return NewVoucherCipher(key)
}

func deriveKey(master, info []byte) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, info), out); err != nil {
		return nil, fmt.Errorf("derive voucher sub-key: %w", err)
	}
	return out, nil
}

// Encrypt seals plaintext with a fresh random IV.
func (c *VoucherCipher) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return "", fmt.Errorf("voucher cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, ivSize+len(padded), ivSize+len(padded)+tagSize)
	iv := out[:ivSize]
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return "", fmt.Errorf("voucher cipher: read iv: %w", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[ivSize:], padded)

	out = append(out, c.mac(out)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt verifies the tag in constant time before decrypting.
// Every failure is reported as DecryptionFailed.
func (c *VoucherCipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", decryptionFailed("payload is not base64")
	}
	if len(raw) < ivSize+aes.BlockSize+tagSize {
		return "", decryptionFailed("payload too short")
	}

	body, tag := raw[:len(raw)-tagSize], raw[len(raw)-tagSize:]
	if !hmac.Equal(tag, c.mac(body)) {
		return "", decryptionFailed("authentication tag mismatch")
	}

	iv, ct := body[:ivSize], body[ivSize:]
	if len(ct)%aes.BlockSize != 0 {
		return "", decryptionFailed("ciphertext is not a whole number of blocks")
	}
	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return "", decryptionFailed(err.Error())
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	plain, err = pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return "", decryptionFailed(err.Error())
	}
	return string(plain), nil
}

// SafeDecrypt returns ok=false instead of an error. Read paths use it so a
// legacy plaintext value or a corrupt row does not break a listing.
func (c *VoucherCipher) SafeDecrypt(encoded string) (string, bool) {
	plain, err := c.Decrypt(encoded)
	if err != nil {
		return "", false
	}
	return plain, true
}

// IsEncrypted reports whether value decrypts under this key.
func (c *VoucherCipher) IsEncrypted(value string) bool {
	_, ok := c.SafeDecrypt(value)
	return ok
}

// EncryptBatch encrypts each value, preserving order.
func (c *VoucherCipher) EncryptBatch(values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		ct, err := c.Encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("encrypt element %d: %w", i, err)
		}
		out[i] = ct
	}
	return out, nil
}

// DecryptBatch decrypts each value, preserving order. It stops at the first
// failure and returns no partial result.
func (c *VoucherCipher) DecryptBatch(values []string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		plain, err := c.Decrypt(v)
		if err != nil {
			return nil, fmt.Errorf("decrypt element %d: %w", i, err)
		}
		out[i] = plain
	}
	return out, nil
}

// Fingerprint is a keyed, deterministic digest used to find a code without
// decrypting every row. Comparison is case-sensitive.
func (c *VoucherCipher) Fingerprint(plaintext string) string {
	h := hmac.New(sha256.New, c.fpKey)
	h.Write([]byte(plaintext))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *VoucherCipher) mac(data []byte) []byte {
	h := hmac.New(sha256.New, c.macKey)
	h.Write(data)
	return h.Sum(nil)
}

func decryptionFailed(reason string) error {
	return shared.WrapDomainError(procurement.CodeDecryptionFailed,
		procurement.ErrDecryptionFailed.Message, fmt.Errorf("%s", reason))
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data[:len(data):len(data)], bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
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

var _ procurement.CodeCipher = (*VoucherCipher)(nil)
