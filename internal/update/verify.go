// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// ErrBadSignature is returned when a bundle fails signature verification.
var ErrBadSignature = errors.New("signature verification failed")

const armoredSignaturePrefix = "-----BEGIN PGP SIGNATURE-----"

// Verifier checks detached OpenPGP signatures against a release keyring.
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier reads an armored or binary public keyring.
func NewVerifier(r io.Reader) (*Verifier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parse keyring: %w", err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("parse keyring: no keys")
	}
	return &Verifier{keyring: keyring}, nil
}

// LoadVerifier reads the keyring at path.
func LoadVerifier(path string) (*Verifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer f.Close()
	return NewVerifier(f)
}

// Verify checks sig against signed. Both armored and binary signatures are
// accepted.
func (v *Verifier) Verify(signed io.Reader, sig []byte) error {
	var err error
	if bytes.HasPrefix(bytes.TrimSpace(sig), []byte(armoredSignaturePrefix)) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, signed, bytes.NewReader(sig), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, signed, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// VerifyFile checks sig against the file at path.
func (v *Verifier) VerifyFile(path string, sig []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return v.Verify(f, sig)
}
