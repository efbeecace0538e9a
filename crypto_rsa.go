// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2024 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package vbootkernel

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"crypto/x509"
	"fmt"
)

// RSACryptoProvider is the default CryptoProvider, implemented directly
// against the standard library.
//
// Hardware-crypto offload (UnpackedKey.AllowHwCrypto) is accepted but has
// no effect here: this provider always uses the software RSA
// implementation. A platform-specific provider that dispatches to a crypto
// accelerator can be substituted via BootContext.Crypto without changing
// any pipeline code.
type RSACryptoProvider struct{}

var _ CryptoProvider = RSACryptoProvider{}

// VerifySignature unpacks key.Material as a DER-encoded RSA public key and
// verifies a PKCS#1 v1.5 signature under the hash the key's algorithm
// names.
func (RSACryptoProvider) VerifySignature(key *UnpackedKey, data, sig []byte) error {
	pub, err := x509.ParsePKCS1PublicKey(key.Material)
	if err != nil {
		return fmt.Errorf("cannot parse RSA public key: %w", err)
	}

	var hash crypto.Hash
	var digest []byte
	switch key.Algorithm {
	case AlgRSA2048SHA256, AlgRSA4096SHA256:
		hash = crypto.SHA256
		d := sha256.Sum256(data)
		digest = d[:]
	case AlgRSA8192SHA512:
		hash = crypto.SHA512
		d := sha512.Sum512(data)
		digest = d[:]
	default:
		return fmt.Errorf("unsupported key algorithm %d", key.Algorithm)
	}

	if err := rsa.VerifyPKCS1v15(pub, hash, digest, sig); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// VerifyHash checks that SHA-256(data) equals the supplied digest.
func (RSACryptoProvider) VerifyHash(data []byte, digest []byte) error {
	got := sha256.Sum256(data)
	if len(digest) != len(got) || subtle.ConstantTimeCompare(got[:], digest) != 1 {
		return fmt.Errorf("hash mismatch")
	}
	return nil
}

// DigestSHA256 computes the 256-bit digest of data.
func (RSACryptoProvider) DigestSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ConstantTimeEqual compares a and b without leaking timing information
// about the position of the first differing byte.
func (RSACryptoProvider) ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
