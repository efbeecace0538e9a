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
	"encoding/binary"
	"fmt"
)

// keyblockMagic identifies the start of a keyblock.
var keyblockMagic = [8]byte{'V', 'B', 'B', 'K', '0', '0', '0', '1'}

// Keyblock flag bits: which boot modes this keyblock authorizes.
const (
	KeyblockFlagDeveloper0 uint32 = 0x1
	KeyblockFlagDeveloper1 uint32 = 0x2
	KeyblockFlagRecovery0  uint32 = 0x4
	KeyblockFlagRecovery1  uint32 = 0x8
)

// Fixed header layout for a serialized keyblock:
//
//	[0:8]   magic
//	[8:12]  keyblock_size (total, header + data key + signed payload)
//	[12:16] signature_offset
//	[16:20] signature_size
//	[20:24] hash_offset
//	[24:28] hash_size
//	[28:32] keyblock_flags
//	[32:36] data_key.algorithm
//	[36:40] data_key.key_version
//	[40:44] data_key.key_size
//	[44:48] data_key.key_offset (relative to the keyblock start)
const keyblockHeaderSize = 48

// Keyblock is the signed envelope binding a per-kernel data key to a
// firmware root of trust.
type Keyblock struct {
	KeyblockSize uint32
	Flags        uint32
	DataKey      *PackedKey

	signature []byte
	hash      []byte
	signed    []byte // the portion of the keyblock covered by Signature
}

// ParseKeyblock reads a Keyblock from the start of buf. buf may be longer
// than the keyblock (it typically also contains the preamble and the start
// of the body); only the first KeyblockSize bytes belong to this keyblock.
func ParseKeyblock(buf []byte) (*Keyblock, error) {
	if len(buf) < keyblockHeaderSize {
		return nil, fmt.Errorf("buffer too small for keyblock header: %d bytes", len(buf))
	}
	if [8]byte(buf[0:8]) != keyblockMagic {
		return nil, fmt.Errorf("bad keyblock magic")
	}

	kbSize := binary.LittleEndian.Uint32(buf[8:12])
	sigOff := binary.LittleEndian.Uint32(buf[12:16])
	sigSize := binary.LittleEndian.Uint32(buf[16:20])
	hashOff := binary.LittleEndian.Uint32(buf[20:24])
	hashSize := binary.LittleEndian.Uint32(buf[24:28])
	flags := binary.LittleEndian.Uint32(buf[28:32])
	alg := KeyAlgorithm(binary.LittleEndian.Uint32(buf[32:36]))
	keyVersion := binary.LittleEndian.Uint32(buf[36:40])
	keySize := binary.LittleEndian.Uint32(buf[40:44])
	keyOffset := binary.LittleEndian.Uint32(buf[44:48])

	if uint64(kbSize) > uint64(len(buf)) {
		return nil, fmt.Errorf("keyblock_size %d exceeds available buffer of %d", kbSize, len(buf))
	}
	kbBuf := buf[:kbSize]

	if uint64(sigOff)+uint64(sigSize) > uint64(kbSize) {
		return nil, fmt.Errorf("keyblock signature region exceeds keyblock")
	}
	if uint64(hashOff)+uint64(hashSize) > uint64(kbSize) {
		return nil, fmt.Errorf("keyblock hash region exceeds keyblock")
	}

	dataKey, err := NewPackedKey(alg, keyVersion, keyOffset, keySize, kbBuf)
	if err != nil {
		return nil, fmt.Errorf("bad keyblock data key: %w", err)
	}

	return &Keyblock{
		KeyblockSize: kbSize,
		Flags:        flags,
		DataKey:      dataKey,
		signature:    kbBuf[sigOff : sigOff+sigSize],
		hash:         kbBuf[hashOff : hashOff+hashSize],
		signed:       kbBuf[:sigOff],
	}, nil
}

// keyblockFlagsAllow reports whether kb's flags permit a boot with the
// given context flags, per the developer-N/recovery-N bit scheme. The raw
// context flags are consulted rather than the resolved mode: a recovery
// boot on a machine in developer mode needs the developer-1 bit as well
// as the recovery-1 bit.
func keyblockFlagsAllow(kbFlags uint32, flags Flags) (devOK, recOK bool) {
	if flags.has(FlagDeveloperMode) {
		devOK = kbFlags&KeyblockFlagDeveloper1 != 0
	} else {
		devOK = kbFlags&KeyblockFlagDeveloper0 != 0
	}
	if flags.has(FlagRecoveryMode) {
		recOK = kbFlags&KeyblockFlagRecovery1 != 0
	} else {
		recOK = kbFlags&KeyblockFlagRecovery0 != 0
	}
	return devOK, recOK
}

// KeyblockVerifyResult is what VerifyKeyblock hands to the preamble
// verifier: whether this keyblock is backed by a valid signature, and the
// unpacked data key to verify the preamble with.
type KeyblockVerifyResult struct {
	Valid   bool
	DataKey *UnpackedKey
}

// VerifyKeyblock verifies a Keyblock against the current boot context, in
// a fixed tie-break order: signature before hash, flag checks before
// version checks, developer-hash check last.
func VerifyKeyblock(ctx *BootContext, kb *Keyblock) (*KeyblockVerifyResult, error) {
	requireSigned, err := RequireSigned(ctx)
	if err != nil {
		return nil, err
	}

	subkey := ctx.ExpectedSubkey.Unpack(ctx.Flags.has(FlagHwCryptoAllowed))

	// Step 2: clear any prior kernel-signed flag.
	ctx.Shared.KernelSigned = false

	valid := true

	// Step 3-4: signature, falling back to hash-only.
	if err := ctx.Crypto.VerifySignature(subkey, kb.signed, kb.signature); err != nil {
		valid = false
		if requireSigned {
			return nil, verifyErrorf(ErrKeyblockSig, err)
		}
		if err := ctx.Crypto.VerifyHash(kb.signed, kb.hash); err != nil {
			return nil, verifyErrorf(ErrKeyblockHash, err)
		}
	}

	// Step 5: flag checks against the boot context flags.
	mode := ctx.Mode()
	devOK, recOK := keyblockFlagsAllow(kb.Flags, ctx.Flags)
	if !devOK {
		valid = false
		if requireSigned {
			return nil, verifyErrorf(ErrKeyblockDevFlag, nil)
		}
	}
	if !recOK {
		valid = false
		if requireSigned {
			return nil, verifyErrorf(ErrKeyblockRecFlag, nil)
		}
	}

	// Step 6: key-version monotonicity, skipped in recovery mode.
	if mode != ModeRecovery {
		secured, err := ctx.SecureCounter.Get()
		if err != nil {
			return nil, err
		}
		if KeyRollback(kb.DataKey.KeyVersion, secured) {
			valid = false
			if requireSigned {
				return nil, verifyErrorf(ErrKeyblockVersionRollback, nil)
			}
		}
		if kb.DataKey.KeyVersion > MaxKeyVersion {
			valid = false
			if requireSigned {
				return nil, verifyErrorf(ErrKeyblockVersionRange, nil)
			}
		}
	}

	// Step 7: developer data-key hash check, independent of valid/signed
	// state and always fatal on mismatch.
	if mode == ModeDeveloper {
		useHash, err := ctx.FWMP.GetFlag(FWMPUseKeyHash)
		if err != nil {
			return nil, err
		}
		if useHash {
			want, ok, err := ctx.FWMP.GetDevKeyHash()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, verifyErrorf(ErrDevKeyHash, fmt.Errorf("no developer key hash configured"))
			}
			got := ctx.Crypto.DigestSHA256(kb.DataKey.Material())
			if !ctx.Crypto.ConstantTimeEqual(got[:], want[:]) {
				return nil, verifyErrorf(ErrDevKeyHash, nil)
			}
		}
	}

	// Step 8: record kernel-signed only if nothing above downgraded us.
	if valid {
		ctx.Shared.KernelSigned = true
	}

	return &KeyblockVerifyResult{
		Valid:   valid,
		DataKey: kb.DataKey.Unpack(ctx.Flags.has(FlagHwCryptoAllowed)),
	}, nil
}
