package security

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, KeySize)
}

func newTestCipher(t *testing.T) *VoucherCipher {
	t.Helper()
	c, err := NewVoucherCipher(testKey(7))
	require.NoError(t, err)
	return c
}

func TestNewVoucherCipher_KeyLength(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"32 bytes", testKey(1), false},
		{"empty", nil, true},
		{"16 bytes", bytes.Repeat([]byte{1}, 16), true},
		{"33 bytes", bytes.Repeat([]byte{1}, 33), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVoucherCipher(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, procurement.ErrInvalidKey)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewVoucherCipherFromBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(testKey(9))

	_, err := NewVoucherCipherFromBase64(encoded)
	assert.NoError(t, err)

	_, err = NewVoucherCipherFromBase64("base64:" + encoded)
	assert.NoError(t, err)

	_, err = NewVoucherCipherFromBase64("not base64!")
	assert.ErrorIs(t, err, procurement.ErrInvalidKey)

	_, err = NewVoucherCipherFromBase64(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, procurement.ErrInvalidKey)
}

func TestVoucherCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)
	inputs := []string{
		"",
		"ABCD-EFGH-1234",
		"exactly16bytes!!",
		"ünïcødé ✓ 券码",
		strings.Repeat("long-voucher-", 1000),
	}

	for _, in := range inputs {
		encoded, err := c.Encrypt(in)
		require.NoError(t, err)

		out, err := c.Decrypt(encoded)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestVoucherCipher_FreshIV(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("SAME-CODE")
	require.NoError(t, err)
	b, err := c.Encrypt("SAME-CODE")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	pa, err := c.Decrypt(a)
	require.NoError(t, err)
	pb, err := c.Decrypt(b)
	require.NoError(t, err)
	assert.Equal(t, "SAME-CODE", pa)
	assert.Equal(t, pa, pb)
}

func TestVoucherCipher_TamperDetection(t *testing.T) {
	c := newTestCipher(t)
	encoded, err := c.Encrypt("TAMPER-ME")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	for i := range raw {
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0x01

		_, err := c.Decrypt(base64.StdEncoding.EncodeToString(mutated))
		assert.ErrorIs(t, err, procurement.ErrDecryptionFailed, "byte %d", i)
	}
}

func TestVoucherCipher_DecryptMalformed(t *testing.T) {
	c := newTestCipher(t)

	for _, in := range []string{"", "plain-legacy-code", "%%%", base64.StdEncoding.EncodeToString([]byte("tiny"))} {
		_, err := c.Decrypt(in)
		assert.ErrorIs(t, err, procurement.ErrDecryptionFailed, in)
	}
}

func TestVoucherCipher_WrongKey(t *testing.T) {
	c := newTestCipher(t)
	other, err := NewVoucherCipher(testKey(8))
	require.NoError(t, err)

	encoded, err := c.Encrypt("CODE")
	require.NoError(t, err)

	_, err = other.Decrypt(encoded)
	assert.ErrorIs(t, err, procurement.ErrDecryptionFailed)
}

func TestVoucherCipher_SafeDecryptAndIsEncrypted(t *testing.T) {
	c := newTestCipher(t)
	encoded, err := c.Encrypt("CODE-1")
	require.NoError(t, err)

	plain, ok := c.SafeDecrypt(encoded)
	assert.True(t, ok)
	assert.Equal(t, "CODE-1", plain)

	plain, ok = c.SafeDecrypt("CODE-1")
	assert.False(t, ok)
	assert.Empty(t, plain)

	assert.True(t, c.IsEncrypted(encoded))
	assert.False(t, c.IsEncrypted("CODE-1"))
}

func TestVoucherCipher_Batch(t *testing.T) {
	c := newTestCipher(t)
	in := []string{"A", "B", "C"}

	encrypted, err := c.EncryptBatch(in)
	require.NoError(t, err)
	require.Len(t, encrypted, 3)

	out, err := c.DecryptBatch(encrypted)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	encrypted[1] = "garbage"
	out, err = c.DecryptBatch(encrypted)
	assert.ErrorIs(t, err, procurement.ErrDecryptionFailed)
	assert.Nil(t, out)
}

func TestVoucherCipher_Fingerprint(t *testing.T) {
	c := newTestCipher(t)
	other, _ := NewVoucherCipher(testKey(8))

	assert.Equal(t, c.Fingerprint("ABC"), c.Fingerprint("ABC"))
	assert.NotEqual(t, c.Fingerprint("ABC"), c.Fingerprint("abc"))
	assert.NotEqual(t, c.Fingerprint("ABC"), other.Fingerprint("ABC"))
	assert.Len(t, c.Fingerprint("ABC"), 64)
}
