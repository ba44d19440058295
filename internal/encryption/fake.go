package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// fakeHeader marks output of FakeEncryptor.
var fakeHeader = []byte("PROVFAKE")

// FakeEncryptor prepends a fixed header instead of encrypting, so tests can
// tell encrypted snapshots apart without key material. Unlock accepts only
// the passphrase given to Setup, or any passphrase if Setup was never called.
type FakeEncryptor struct {
	passphrase string
}

// NewFakeEncryptor creates a FakeEncryptor.
func NewFakeEncryptor() *FakeEncryptor {
	return &FakeEncryptor{}
}

func (e *FakeEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	return nil
}

func (e *FakeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(fakeHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *FakeEncryptor) Unlock(passphrase string) (Decrypter, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, errors.New("wrong passphrase")
	}
	return fakeDecrypter{}, nil
}

func (e *FakeEncryptor) IsConfigured() bool { return true }

type fakeDecrypter struct{}

func (fakeDecrypter) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(fakeHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, fakeHeader) {
		return errors.New("not a fake-encrypted stream")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// Compile-time check
var _ Encryptor = (*FakeEncryptor)(nil)
