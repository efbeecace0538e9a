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

package vbootkernel_test

import (
	"encoding/binary"
	"errors"

	. "github.com/snapcore/vbootkernel"

	"github.com/google/uuid"
)

// fakePartition is one entry a fakePartitionTable yields.
type fakePartition struct {
	guid     uuid.UUID
	data     []byte
	bad      bool
	tries    int
	markFail error
}

// fakePartitionTable implements PartitionTable over an in-memory list of
// partitions, in the same spirit as internal/gpt.Table but without any
// on-disk format to parse, so scanner_test.go and load_test.go can drive
// LoadKernel end to end against hand-built vblock buffers.
type fakePartitionTable struct {
	partitions []*fakePartition
	pos        int
	written    bool
}

func (t *fakePartitionTable) Next() (PartitionCandidate, bool, error) {
	if t.pos >= len(t.partitions) {
		return PartitionCandidate{}, false, nil
	}
	idx := t.pos
	p := t.partitions[idx]
	t.pos++
	return PartitionCandidate{Index: idx, Start: 0, Size: uint64(len(p.data)), GUID: p.guid}, true, nil
}

func (t *fakePartitionTable) current() *fakePartition {
	return t.partitions[t.pos-1]
}

func (t *fakePartitionTable) OpenStream() (Stream, error) {
	return &fakeStream{data: t.current().data}, nil
}

func (t *fakePartitionTable) MarkBad() error {
	p := t.current()
	if p.markFail != nil {
		return p.markFail
	}
	p.bad = true
	return nil
}

func (t *fakePartitionTable) MarkTry() error {
	p := t.current()
	if p.markFail != nil {
		return p.markFail
	}
	p.tries++
	return nil
}

func (t *fakePartitionTable) WriteAndFree() error {
	t.written = true
	return nil
}

// scanned reports how many entries the scanner pulled via Next, so tests
// can tell an early-exited scan from an exhaustive one.
func (t *fakePartitionTable) scanned() int {
	return t.pos
}

var _ PartitionTable = (*fakePartitionTable)(nil)

var errFakeMark = errors.New("fake mark failure")

// buildKeyblock assembles a wire-format keyblock buffer signed (and
// hashed) under the fake digest scheme vbootkernel_test.go's fakeCrypto
// understands, so keyblock_test.go and scanner_test.go can exercise
// ParseKeyblock/VerifyKeyblock without any real RSA material. Every
// header field is in place before the signature is computed, since the
// signature covers the whole keyblock up to the signature itself.
func buildKeyblock(flags uint32, keyVersion uint32, keyMaterial []byte, corruptSig bool) []byte {
	const headerSize = 48
	keyOffset := uint32(headerSize)
	keySize := uint32(len(keyMaterial))
	sigOff := keyOffset + keySize
	sigSize := uint32(len(signFake(nil)))
	hashOff := sigOff + sigSize
	hashSize := uint32(32)
	kbSize := hashOff + hashSize

	buf := make([]byte, kbSize)
	copy(buf[0:8], []byte("VBBK0001"))
	binary.LittleEndian.PutUint32(buf[8:12], kbSize)
	binary.LittleEndian.PutUint32(buf[12:16], sigOff)
	binary.LittleEndian.PutUint32(buf[16:20], sigSize)
	binary.LittleEndian.PutUint32(buf[20:24], hashOff)
	binary.LittleEndian.PutUint32(buf[24:28], hashSize)
	binary.LittleEndian.PutUint32(buf[28:32], flags)
	binary.LittleEndian.PutUint32(buf[32:36], uint32(AlgRSA2048SHA256))
	binary.LittleEndian.PutUint32(buf[36:40], keyVersion)
	binary.LittleEndian.PutUint32(buf[40:44], keySize)
	binary.LittleEndian.PutUint32(buf[44:48], keyOffset)
	copy(buf[keyOffset:], keyMaterial)

	sig := signFake(buf[:sigOff])
	if corruptSig {
		sig[0] ^= 0xff
	}
	hash := digestFNV(buf[:sigOff])
	copy(buf[sigOff:], sig)
	copy(buf[hashOff:], hash[:])
	return buf
}

// buildPreamble assembles a wire-format preamble buffer signed under the
// fake digest scheme, following immediately after a keyblock's bytes.
func buildPreamble(kernelVersion, flags uint32, bootloaderAddr, bootloaderSize uint64, bodySig []byte, bodySize uint64, corruptSig bool) []byte {
	const headerSize = 60
	preambleSigOff := uint32(headerSize)
	preambleSigSize := uint32(len(signFake(nil)))
	bodySigOff := preambleSigOff + preambleSigSize
	bodySigSize := uint32(len(bodySig))
	preambleSize := bodySigOff + bodySigSize

	buf := make([]byte, preambleSize)
	binary.LittleEndian.PutUint32(buf[0:4], preambleSize)
	binary.LittleEndian.PutUint32(buf[4:8], kernelVersion)
	binary.LittleEndian.PutUint64(buf[16:24], bootloaderAddr)
	binary.LittleEndian.PutUint64(buf[24:32], bootloaderSize)
	binary.LittleEndian.PutUint32(buf[32:36], preambleSigOff)
	binary.LittleEndian.PutUint32(buf[36:40], preambleSigSize)
	binary.LittleEndian.PutUint32(buf[40:44], bodySigOff)
	binary.LittleEndian.PutUint32(buf[44:48], bodySigSize)
	binary.LittleEndian.PutUint64(buf[48:56], bodySize)
	binary.LittleEndian.PutUint32(buf[56:60], flags)

	sig := signFake(buf[:preambleSigOff])
	if corruptSig {
		sig[0] ^= 0xff
	}
	copy(buf[preambleSigOff:], sig)
	copy(buf[bodySigOff:], bodySig)
	return buf
}

// buildCandidate assembles a full candidate partition image: keyblock,
// preamble and body back to back, padded with zeros up to
// VblockPrefixSize so a single fakeStream.Read of the vblock prefix (as
// scanner.go performs) always succeeds without needing a second read.
func buildCandidate(kbFlags uint32, keyVersion, kernelVersion uint32, preambleFlags uint32, body []byte, corruptKb, corruptPreamble bool) []byte {
	keyMaterial := []byte("datakeymaterial")
	kb := buildKeyblock(kbFlags, keyVersion, keyMaterial, corruptKb)
	bodySig := signFake(body)
	pre := buildPreamble(kernelVersion, preambleFlags, 0x10000, 0x2000, bodySig, uint64(len(body)), corruptPreamble)

	data := append(append([]byte{}, kb...), pre...)
	data = append(data, body...)
	if len(data) < VblockPrefixSize {
		data = append(data, make([]byte, VblockPrefixSize-len(data))...)
	}
	return data
}
