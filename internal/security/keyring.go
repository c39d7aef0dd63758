package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	atRestKeySize = 32
	atRestIVSize  = 16
	gcmTagSize    = 16

	atRestInfo = "licensegate at-rest v1"
)

var (
	// ErrDecryptionFailed is returned for any malformed or forged ciphertext
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrMissingSecret is returned when a keyring secret is empty
	ErrMissingSecret = errors.New("secret must not be empty")
)

// Keyring holds the server-side secrets
type Keyring struct {
	lookupSecret []byte
	atRestKey    []byte
	atRest       cipher.AEAD
}

// NewKeyring builds a keyring. A 64 character hex encryption secret is used
// verbatim as the AES-256 key; anything else is stretched with HKDF-SHA256.
func NewKeyring(lookupSecret, encryptionSecret string) (*Keyring, error) {
	if lookupSecret == "" || encryptionSecret == "" {
		return nil, ErrMissingSecret
	}

	key, err := deriveAtRestKey(encryptionSecret)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, atRestIVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Keyring{
		lookupSecret: []byte(lookupSecret),
		atRestKey:    key,
		atRest:       aead,
	}, nil
}

func deriveAtRestKey(secret string) ([]byte, error) {
	if len(secret) == atRestKeySize*2 {
		if raw, err := hex.DecodeString(secret); err == nil {
			return raw, nil
		}
	}

	key := make([]byte, atRestKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(atRestInfo)), key); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return key, nil
}

// LookupHash returns hex(HMAC-SHA256(lookupSecret, licenseKey ":" teamID))
func (k *Keyring) LookupHash(licenseKey, teamID string) string {
	return k.mac(licenseKey + ":" + teamID)
}

// WatermarkTag is the tag embedded into watermarked artifacts: an HMAC of
// "teamID:licenseKeyLookup" under the lookup secret. It ties the artifact to
// a license without exposing the key or its lookup hash.
func (k *Keyring) WatermarkTag(teamID, licenseKeyLookup string) string {
	return k.mac(teamID + ":" + licenseKeyLookup)
}

// WatermarkToken is the per-team symmetric token handed to the watermark
// service alongside the tag
func (k *Keyring) WatermarkToken(teamID string) string {
	return k.mac(teamID)
}

func (k *Keyring) mac(message string) string {
	h := hmac.New(sha256.New, k.lookupSecret)
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// EncryptAtRest seals plaintext with a fresh random IV
func (k *Keyring) EncryptAtRest(plaintext string) (string, error) {
	iv := make([]byte, atRestIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := k.atRest.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext) + ":" + hex.EncodeToString(tag), nil
}

// DecryptAtRest opens a blob produced by EncryptAtRest
func (k *Keyring) DecryptAtRest(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", ErrDecryptionFailed
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != atRestIVSize {
		return "", ErrDecryptionFailed
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrDecryptionFailed
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != gcmTagSize {
		return "", ErrDecryptionFailed
	}

	plaintext, err := k.atRest.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
