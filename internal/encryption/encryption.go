// Package encryption protects archived metadata snapshots. Snapshots are
// encrypted to a public key, so uploads never need the passphrase; restoring
// one unlocks the private key for the duration of the command.
package encryption

import (
	"fmt"
	"io"

	"prov-go/internal/config"
)

// Encryptor encrypts snapshots and unlocks the key to decrypt them.
type Encryptor interface {
	// Setup generates the key pair, protecting the private key with
	// passphrase.
	Setup(passphrase string) error

	// Encrypt writes the ciphertext of r to w using the public key.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key. It fails on a wrong passphrase.
	Unlock(passphrase string) (Decrypter, error)

	// IsConfigured reports whether both keys exist.
	IsConfigured() bool
}

// Decrypter holds an unlocked private key in memory.
type Decrypter interface {
	Decrypt(r io.Reader, w io.Writer) error
}

// NewEncryptorFromConfig returns the configured Encryptor, or nil when
// snapshots are archived in plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
