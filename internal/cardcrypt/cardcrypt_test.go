package cardcrypt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"
	testSecret = "hmac-secret"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	codec, err := NewCodec(testKey, testSecret)
	require.NoError(t, err)
	return codec
}

func TestNewCodec(t *testing.T) {
	_, err := NewCodec("not-hex", testSecret)
	assert.Error(t, err)

	_, err = NewCodec("a1b2", testSecret)
	assert.Error(t, err, "key too short")

	_, err = NewCodec(testKey, "")
	assert.Error(t, err, "empty hmac secret")

	_, err = NewCodec(testKey, testSecret)
	assert.NoError(t, err)
}

func TestGenerateNumber(t *testing.T) {
	number, err := GenerateNumber("400000", 16)
	require.NoError(t, err)
	assert.Len(t, number, 16)
	assert.True(t, strings.HasPrefix(number, "400000"))
	for _, r := range number {
		assert.True(t, r >= '0' && r <= '9', "non-digit %q in %s", r, number)
	}

	_, err = GenerateNumber("400000", 4)
	assert.Error(t, err, "length shorter than prefix")

	_, err = GenerateNumber("400000", 20)
	assert.Error(t, err, "length over 19")
}

func TestEncryptRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	encrypted, err := codec.Encrypt("4000001234567890")
	require.NoError(t, err)
	assert.NotEqual(t, "4000001234567890", encrypted)

	decrypted, err := codec.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "4000001234567890", decrypted)
}

func TestEncryptDeterministic(t *testing.T) {
	codec := newTestCodec(t)

	first, err := codec.Encrypt("4000001234567890")
	require.NoError(t, err)
	second, err := codec.Encrypt("4000001234567890")
	require.NoError(t, err)
	assert.Equal(t, first, second, "same plaintext must yield the same cipher")

	other, err := codec.Encrypt("4000001234567891")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestEncryptEmpty(t *testing.T) {
	codec := newTestCodec(t)
	_, err := codec.Encrypt("")
	assert.Error(t, err)
}

func TestDecryptMalformed(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Decrypt("")
	assert.Error(t, err, "empty input")

	_, err = codec.Decrypt("zzzz")
	assert.Error(t, err, "not hex")

	_, err = codec.Decrypt("a1b2c3")
	assert.Error(t, err, "too short")

	// Valid hex, IV only, no ciphertext.
	_, err = codec.Decrypt(strings.Repeat("ab", 16))
	assert.Error(t, err)

	// Garbage that decrypts to invalid padding.
	_, err = codec.Decrypt(strings.Repeat("ab", 32))
	assert.Error(t, err)
}

func TestDecryptWrongKey(t *testing.T) {
	codec := newTestCodec(t)
	encrypted, err := codec.Encrypt("4000001234567890")
	require.NoError(t, err)

	otherKey := strings.Repeat("ff", 32)
	other, err := NewCodec(otherKey, testSecret)
	require.NoError(t, err)

	decrypted, err := other.Decrypt(encrypted)
	if err == nil {
		assert.NotEqual(t, "4000001234567890", decrypted)
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "**** **** **** 7890", Mask("4000001234567890"))
	assert.Equal(t, "***", Mask("123"))
	assert.Equal(t, "", Mask(""))
}
