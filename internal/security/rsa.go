package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrInvalidSessionKey is returned when a wrapped session key cannot be opened
var ErrInvalidSessionKey = errors.New("invalid session key")

// ErrInvalidKey is returned for PEM input that does not hold an RSA key
var ErrInvalidKey = errors.New("invalid RSA key")

// GenerateKeyPair returns a fresh RSA keypair as PKCS#8 and PKIX PEM
func GenerateKeyPair(bits int) (privatePEM, publicPEM string, err error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privatePEM, publicPEM, nil
}

// ParsePrivateKey parses a PKCS#1 or PKCS#8 RSA private key PEM
func ParsePrivateKey(data string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, ErrInvalidKey
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// ParsePublicKey parses a PKIX or PKCS#1 RSA public key PEM
func ParsePublicKey(data string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, ErrInvalidKey
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// SignChallenge signs the caller nonce with RSA-SHA256 and returns hex
func SignChallenge(challenge string, key *rsa.PrivateKey) (string, error) {
	digest := sha256.Sum256([]byte(challenge))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign challenge: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifyChallenge checks a signature produced by SignChallenge
func VerifyChallenge(challenge, signatureHex string, key *rsa.PublicKey) error {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	digest := sha256.Sum256([]byte(challenge))
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig)
}

// UnwrapSessionKey opens an RSA-OAEP (SHA-256) wrapped session key given as
// hex. Every failure is reported as ErrInvalidSessionKey.
func UnwrapSessionKey(encryptedHex string, key *rsa.PrivateKey) ([]byte, error) {
	ciphertext, err := hex.DecodeString(encryptedHex)
	if err != nil || len(ciphertext) == 0 {
		return nil, ErrInvalidSessionKey
	}

	sessionKey, err := rsa.DecryptOAEP(sha256.New(), nil, key, ciphertext, nil)
	if err != nil || len(sessionKey) == 0 {
		return nil, ErrInvalidSessionKey
	}
	return sessionKey, nil
}

// WrapSessionKey is the client side of UnwrapSessionKey
func WrapSessionKey(sessionKey []byte, key *rsa.PublicKey) (string, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, sessionKey, nil)
	if err != nil {
		return "", fmt.Errorf("failed to wrap session key: %w", err)
	}
	return hex.EncodeToString(ciphertext), nil
}
