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

// Fixed header layout for a serialized preamble, immediately following a
// keyblock in the vblock:
//
//	[0:4]   preamble_size
//	[4:8]   kernel_version
//	[8:16]  body_load_address
//	[16:24] bootloader_address
//	[24:32] bootloader_size
//	[32:36] preamble_signature_offset (relative to the preamble start)
//	[36:40] preamble_signature_size
//	[40:44] body_signature_offset
//	[44:48] body_signature_size
//	[48:56] body_size (the signed length of the kernel body)
//	[56:60] flags
const preambleHeaderSize = 60

// CompositeVersion packs a key version and a kernel version into the
// single 32-bit value the secure counter tracks, key version in the high
// half.
type CompositeVersion uint32

// NewCompositeVersion combines a key version and a kernel version. Each
// half is truncated to 16 bits; the verifiers range-check both fields
// before combining, so truncation only ever affects values that have
// already been rejected or downgraded.
func NewCompositeVersion(keyVersion, kernelVersion uint32) CompositeVersion {
	return CompositeVersion(keyVersion<<16 | kernelVersion&0xFFFF)
}

// Preamble is the structural header describing the kernel body, placed
// immediately after the keyblock and signed by the keyblock's data key.
// It also carries a signature descriptor for the body, to be checked once
// the body bytes are available.
type Preamble struct {
	KernelVersion     uint32
	Flags             uint32
	BodyLoadAddress   uint64
	BootloaderAddress uint64
	BootloaderSize    uint64
	PreambleSize      uint32
	BodySize          uint64

	preambleSignature []byte
	bodySignature     []byte
	signed            []byte // the portion of the preamble covered by preambleSignature
}

// ParsePreamble reads a Preamble from the start of buf, which must begin
// immediately after the owning Keyblock.
func ParsePreamble(buf []byte) (*Preamble, error) {
	if len(buf) < preambleHeaderSize {
		return nil, fmt.Errorf("buffer too small for preamble header: %d bytes", len(buf))
	}

	preambleSize := binary.LittleEndian.Uint32(buf[0:4])
	kernelVersion := binary.LittleEndian.Uint32(buf[4:8])
	bodyLoadAddr := binary.LittleEndian.Uint64(buf[8:16])
	bootloaderAddr := binary.LittleEndian.Uint64(buf[16:24])
	bootloaderSize := binary.LittleEndian.Uint64(buf[24:32])
	preambleSigOff := binary.LittleEndian.Uint32(buf[32:36])
	preambleSigSize := binary.LittleEndian.Uint32(buf[36:40])
	bodySigOff := binary.LittleEndian.Uint32(buf[40:44])
	bodySigSize := binary.LittleEndian.Uint32(buf[44:48])
	bodySize := binary.LittleEndian.Uint64(buf[48:56])
	preambleFlags := binary.LittleEndian.Uint32(buf[56:60])

	if uint64(preambleSize) > uint64(len(buf)) {
		return nil, fmt.Errorf("preamble_size %d exceeds available buffer of %d", preambleSize, len(buf))
	}
	preambleBuf := buf[:preambleSize]

	if uint64(preambleSigOff)+uint64(preambleSigSize) > uint64(preambleSize) {
		return nil, fmt.Errorf("preamble signature region exceeds preamble")
	}
	if uint64(bodySigOff)+uint64(bodySigSize) > uint64(preambleSize) {
		return nil, fmt.Errorf("preamble body signature region exceeds preamble")
	}

	return &Preamble{
		KernelVersion:     kernelVersion,
		Flags:             preambleFlags,
		BodyLoadAddress:   bodyLoadAddr,
		BootloaderAddress: bootloaderAddr,
		BootloaderSize:    bootloaderSize,
		PreambleSize:      preambleSize,
		BodySize:          bodySize,
		preambleSignature: preambleBuf[preambleSigOff : preambleSigOff+preambleSigSize],
		bodySignature:     preambleBuf[bodySigOff : bodySigOff+bodySigSize],
		signed:            preambleBuf[:preambleSigOff],
	}, nil
}

// BodySignature returns the signature the preamble carries for the kernel
// body, to be verified against the data key once the body bytes are
// available.
func (p *Preamble) BodySignature() []byte {
	return p.bodySignature
}

// VerifyPreamble verifies the preamble's own signature under the data key
// a prior VerifyKeyblock call produced, forms the composite version from
// the keyblock's key version and this preamble's kernel version, range
// checks it, and enforces rollback against the secure counter when policy
// requires a signed kernel and the boot is not a recovery boot. Recovery
// boots never consult the secure counter, and a self-signed kernel that
// policy permits has no rollback protection to enforce.
func VerifyPreamble(ctx *BootContext, kb *Keyblock, p *Preamble, dataKey *UnpackedKey) (CompositeVersion, error) {
	if err := ctx.Crypto.VerifySignature(dataKey, p.signed, p.preambleSignature); err != nil {
		return 0, verifyErrorf(ErrPreambleSig, err)
	}

	if p.KernelVersion > MaxKeyVersion {
		return 0, verifyErrorf(ErrPreambleVersionRange, nil)
	}

	composite := NewCompositeVersion(kb.DataKey.KeyVersion, p.KernelVersion)

	if ctx.Mode() == ModeRecovery {
		return composite, nil
	}

	requireSigned, err := RequireSigned(ctx)
	if err != nil {
		return 0, err
	}
	if !requireSigned {
		return composite, nil
	}

	secured, err := ctx.SecureCounter.Get()
	if err != nil {
		return 0, err
	}
	if CompositeRollback(composite, secured) {
		return 0, verifyErrorf(ErrPreambleVersionRollback, nil)
	}

	return composite, nil
}
