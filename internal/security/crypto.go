package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const envelopeVersion = 1

type envelope struct {
	Version    int    `json:"v"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Cipher provides authenticated symmetric encryption for PII fields plus a
// keyed digest for equality lookups over encrypted columns.
type Cipher struct {
	encKey  []byte
	hashKey []byte
}

// NewCipher derives the encryption and digest keys from the configured
// secret with HKDF-SHA256. The secret itself is never used directly.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrKeyMissing
	}

	derive := func(info string) ([]byte, error) {
		key := make([]byte, 32)
		r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, err
		}
		return key, nil
	}

	encKey, err := derive("watchkeep/pii-encryption")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMissing, err)
	}
	hashKey, err := derive("watchkeep/pii-digest")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyMissing, err)
	}
	return &Cipher{encKey: encKey, hashKey: hashKey}, nil
}

// Encrypt seals plaintext with AES-256-GCM. Empty input passes through
// unchanged so optional fields stay optional.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out, err := json.Marshal(envelope{
		Version:    envelopeVersion,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptFailed, err)
	}
	return string(out), nil
}

// Decrypt opens a sealed value. Any tampering or key mismatch fails the
// whole operation; partially decrypted data is never returned.
func (c *Cipher) Decrypt(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(sealed), &env); err != nil {
		return "", fmt.Errorf("%w: malformed envelope", ErrDecryptFailed)
	}
	if env.Version != envelopeVersion {
		return "", fmt.Errorf("%w: unsupported envelope version %d", ErrDecryptFailed, env.Version)
	}

	nonce, err := base64.RawStdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: malformed nonce", ErrDecryptFailed)
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", ErrDecryptFailed)
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("%w: malformed nonce", ErrDecryptFailed)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptFailed)
	}
	return string(plaintext), nil
}

// Hash returns a keyed SHA-256 digest of s, used as the deterministic
// uniqueness column next to an encrypted field.
func (c *Cipher) Hash(s string) string {
	mac := hmac.New(sha256.New, c.hashKey)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}
