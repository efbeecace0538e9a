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

import "fmt"

// KeyAlgorithm identifies the RSA+hash combination used to sign a packed
// key's payload. Modeled as a tagged variant over the supported
// combinations, not as open polymorphism: the set of algorithms a
// verified-boot firmware can rely on is fixed and small.
type KeyAlgorithm uint32

const (
	AlgRSA2048SHA256 KeyAlgorithm = iota
	AlgRSA4096SHA256
	AlgRSA8192SHA512
)

// MaxKeyVersion is the largest key version or kernel version that fits in
// the 16-bit half of a composite version.
const MaxKeyVersion = 0xFFFF

// PackedKey is the fixed header format: {algorithm, key-version, key-size,
// key-offset} followed by algorithm-specific key material. The key version
// is carried as a full 32-bit field on the wire but only values up to
// MaxKeyVersion can ever be stored in the secure counter; the keyblock
// verifier range-checks it.
type PackedKey struct {
	Algorithm  KeyAlgorithm
	KeyVersion uint32
	KeySize    uint32
	KeyOffset  uint32

	// raw is the full backing buffer; the key material itself lives at
	// raw[KeyOffset : KeyOffset+KeySize].
	raw []byte
}

// NewPackedKey validates that key_offset+key_size lies within the buffer
// and returns a PackedKey view over buf.
func NewPackedKey(alg KeyAlgorithm, keyVersion uint32, keyOffset, keySize uint32, buf []byte) (*PackedKey, error) {
	end := uint64(keyOffset) + uint64(keySize)
	if end > uint64(len(buf)) {
		return nil, fmt.Errorf("packed key material [%d:%d) exceeds buffer of length %d", keyOffset, end, len(buf))
	}
	return &PackedKey{
		Algorithm:  alg,
		KeyVersion: keyVersion,
		KeySize:    keySize,
		KeyOffset:  keyOffset,
		raw:        buf,
	}, nil
}

// Material returns the algorithm-specific key bytes the header describes.
func (k *PackedKey) Material() []byte {
	return k.raw[k.KeyOffset : k.KeyOffset+k.KeySize]
}

// UnpackedKey is the result of unpacking a PackedKey: the decoded public
// key material plus the hardware-crypto-offload capability flag, which
// affects the primitive used but not the algorithm's observable behavior.
type UnpackedKey struct {
	Algorithm     KeyAlgorithm
	Material      []byte
	AllowHwCrypto bool
}

// Unpack decodes a PackedKey into an UnpackedKey, marking it for
// hardware-crypto offload when allowed.
func (k *PackedKey) Unpack(allowHwCrypto bool) *UnpackedKey {
	return &UnpackedKey{
		Algorithm:     k.Algorithm,
		Material:      k.Material(),
		AllowHwCrypto: allowHwCrypto,
	}
}
