package cardcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Codec encrypts and masks card numbers. Encryption is deterministic:
// the IV is derived from an HMAC of the plaintext, so the same number
// always produces the same ciphertext and stored cards can be looked
// up by their encrypted value.
type Codec struct {
	key        []byte
	hmacSecret []byte
}

// NewCodec builds a Codec from a hex-encoded AES key and an HMAC secret.
func NewCodec(encryptionKeyHex, hmacSecret string) (*Codec, error) {
	key, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != 16 && len(key) != 24 && len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	if hmacSecret == "" {
		return nil, fmt.Errorf("hmac secret is empty")
	}
	return &Codec{key: key, hmacSecret: []byte(hmacSecret)}, nil
}

// GenerateNumber generates a card number with the specified prefix and length.
// Uniqueness is not guaranteed here; callers check the encrypted form
// against the store.
func GenerateNumber(prefix string, length int) (string, error) {
	if length < len(prefix) || length > 19 {
		return "", fmt.Errorf("invalid card number length: %d", length)
	}

	digits := make([]byte, length-len(prefix))
	_, err := rand.Read(digits)
	if err != nil {
		return "", fmt.Errorf("failed to generate random digits: %w", err)
	}

	var builder strings.Builder
	builder.WriteString(prefix)
	for _, b := range digits {
		digit := b%10 + '0' // Convert to ASCII digit
		builder.WriteByte(digit)
	}

	return builder.String(), nil
}

// Mask returns the display-safe form of a card number, keeping only the
// last four digits.
func Mask(number string) string {
	if len(number) < 4 {
		return strings.Repeat("*", len(number))
	}
	return "**** **** **** " + number[len(number)-4:]
}

// iv derives the deterministic IV for a plaintext.
func (c *Codec) iv(data []byte) []byte {
	h := hmac.New(sha256.New, c.hmacSecret)
	h.Write(data)
	return h.Sum(nil)[:aes.BlockSize]
}

// Encrypt encrypts a card number using AES-CBC with PKCS#7 padding and a
// plaintext-derived IV. The result is hex(IV || ciphertext).
func (c *Codec) Encrypt(data string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("input data is empty")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	dataBytes := []byte(data)
	iv := c.iv(dataBytes)

	// PKCS#7 padding
	padding := aes.BlockSize - len(dataBytes)%aes.BlockSize
	for i := 0; i < padding; i++ {
		dataBytes = append(dataBytes, byte(padding))
	}

	ciphertext := make([]byte, len(dataBytes))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, dataBytes)

	final := append(iv, ciphertext...)
	return hex.EncodeToString(final), nil
}

// Decrypt decrypts a hex-encoded value produced by Encrypt.
func (c *Codec) Decrypt(encryptedData string) (string, error) {
	if len(encryptedData) == 0 {
		return "", fmt.Errorf("encrypted data is empty")
	}

	data, err := hex.DecodeString(encryptedData)
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}

	if len(data) < aes.BlockSize {
		return "", fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}

	iv := data[:aes.BlockSize]
	ciphertext := data[aes.BlockSize:]

	if len(ciphertext) == 0 {
		return "", fmt.Errorf("ciphertext is empty")
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("invalid ciphertext length: %d bytes", len(ciphertext))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)

	// Remove PKCS#7 padding
	padding := int(plaintext[len(plaintext)-1])
	if padding > aes.BlockSize || padding == 0 || padding > len(plaintext) {
		return "", fmt.Errorf("invalid padding value: %d", padding)
	}
	for i := len(plaintext) - padding; i < len(plaintext); i++ {
		if int(plaintext[i]) != padding {
			return "", fmt.Errorf("invalid padding bytes: expected %d, got %d at position %d", padding, plaintext[i], i)
		}
	}

	return string(plaintext[:len(plaintext)-padding]), nil
}
