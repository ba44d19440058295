package testutil

import "prov-go/internal/encryption"

// NewTestEncryptor returns an encryptor that needs no key material.
func NewTestEncryptor() *encryption.FakeEncryptor {
	return encryption.NewFakeEncryptor()
}
