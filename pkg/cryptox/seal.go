package cryptox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for deriving sealing keys from a passphrase. These are
// tuned for an interactive CLI that unseals once per invocation.
const (
	saltLength  = 16
	iterations  = 1
	memory      = 64 * 1024
	parallelism = 4
)

// sealVersion prefixes every sealed blob so the layout can change later.
const sealVersion byte = 1

var (
	// ErrEmptyPassphrase is returned when sealing or opening without a passphrase.
	ErrEmptyPassphrase = errors.New("cryptox: empty passphrase")

	// ErrSealedTooShort is returned when a sealed blob cannot hold the header.
	ErrSealedTooShort = errors.New("cryptox: sealed data too short")
)

// Seal encrypts plaintext with a key derived from passphrase using Argon2id and
// XChaCha20-Poly1305.
// The output format is: [1-byte version][16-byte salt][24-byte nonce][ciphertext+tag]
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+saltLength+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, salt...)
	out = append(out, nonce...)

	// The header is authenticated as additional data
	return aead.Seal(out, nonce, plaintext, out[:1+saltLength]), nil
}

// Open reverses Seal. A wrong passphrase or tampered data fails authentication.
func Open(passphrase string, sealed []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}

	headerLen := 1 + saltLength + chacha20poly1305.NonceSizeX
	if len(sealed) < headerLen+chacha20poly1305.Overhead {
		return nil, ErrSealedTooShort
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("cryptox: unsupported seal version %d", sealed[0])
	}

	salt := sealed[1 : 1+saltLength]
	nonce := sealed[1+saltLength : headerLen]

	aead, err := chacha20poly1305.NewX(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed[headerLen:], sealed[:1+saltLength])
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, iterations, memory, parallelism, chacha20poly1305.KeySize)
}
