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

// Package gpt implements the default vbootkernel.PartitionTable and
// vbootkernel.Stream over a GPT-partitioned disk image or block device,
// restricted to the kernel-type partition entries and the priority/tries/
// successful attribute bits that select among them.
package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/snapcore/vbootkernel"
)

const (
	headerSize  = 92
	entrySize   = 128
	sectorSize  = 512
	headerLBA   = 1
	entriesLBA  = 2
)

// header is the GPT header laid out at LBA 1, following the same field
// order and CRC32-over-zeroed-checksum scheme as the UEFI specification.
type header struct {
	Signature      [8]byte
	Revision       uint32
	HeaderSize     uint32
	HeaderCRC      uint32
	Reserved       uint32
	CurrentLBA     uint64
	AlternateLBA   uint64
	FirstUsableLBA uint64
	LastUsableLBA  uint64
	DiskGUID       mixedEndianGUID
	EntriesLBA     uint64
	NEntries       uint32
	EntrySize      uint32
	EntriesCRC     uint32
}

// entry is one 128-byte GPT partition entry.
type entry struct {
	TypeGUID   mixedEndianGUID
	UniqueGUID mixedEndianGUID
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       [72]byte
}

// Attribute bit layout for kernel entries, following cgpt's convention:
// a 4-bit priority, a 4-bit remaining-tries count, and a successful flag,
// packed into the high bits of the UEFI-reserved attribute field.
const (
	attrPriorityShift   = 48
	attrPriorityMask    = 0xF
	attrTriesShift      = 52
	attrTriesMask       = 0xF
	attrSuccessfulShift = 56
)

func (e *entry) priority() uint8 {
	return uint8((e.Attributes >> attrPriorityShift) & attrPriorityMask)
}

func (e *entry) setPriority(p uint8) {
	e.Attributes &^= uint64(attrPriorityMask) << attrPriorityShift
	e.Attributes |= uint64(p&attrPriorityMask) << attrPriorityShift
}

func (e *entry) tries() uint8 {
	return uint8((e.Attributes >> attrTriesShift) & attrTriesMask)
}

func (e *entry) setTries(t uint8) {
	e.Attributes &^= uint64(attrTriesMask) << attrTriesShift
	e.Attributes |= uint64(t&attrTriesMask) << attrTriesShift
}

func (e *entry) successful() bool {
	return e.Attributes&(1<<attrSuccessfulShift) != 0
}

func (e *entry) setSuccessful(ok bool) {
	if ok {
		e.Attributes |= 1 << attrSuccessfulShift
	} else {
		e.Attributes &^= 1 << attrSuccessfulShift
	}
}

func verifyHeader(raw []byte, h header) error {
	if !bytes.Equal(h.Signature[:], []byte("EFI PART")) {
		return fmt.Errorf("gpt: header does not start with the EFI PART magic")
	}
	if h.Revision != 1<<16 {
		return fmt.Errorf("gpt: header revision is not 1.0")
	}
	if int(h.HeaderSize) < binary.Size(h) || int(h.HeaderSize) > len(raw) {
		return fmt.Errorf("gpt: header size %d out of range", h.HeaderSize)
	}

	stripped := append([]byte(nil), raw[:h.HeaderSize]...)
	for i := 0; i < 4; i++ {
		stripped[16+i] = 0
	}
	if crc := crc32.ChecksumIEEE(stripped); crc != h.HeaderCRC {
		return fmt.Errorf("gpt: header CRC32 mismatch: got %#x want %#x", crc, h.HeaderCRC)
	}
	return nil
}

// Table is the default vbootkernel.PartitionTable, backed by an *os.File
// open on a disk image or block device.
type Table struct {
	f      *os.File
	hdr    header
	rawHdr []byte

	entries []entry
	dirty   bool

	// kernelIdx holds indices into entries for every kernel-type
	// partition, in descending priority order, ties broken by entry
	// index.
	kernelIdx []int
	pos       int // -1 before the first call to Next
}

// Open reads the primary GPT header and partition entry array from path
// and returns a Table ready for scanning.
func Open(path string) (*Table, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("gpt: cannot open %s: %w", path, err)
	}

	t := &Table{f: f, pos: -1}
	if err := t.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := t.readEntries(); err != nil {
		f.Close()
		return nil, err
	}
	t.indexKernelEntries()
	return t, nil
}

func (t *Table) readHeader() error {
	raw := make([]byte, sectorSize)
	if _, err := t.f.ReadAt(raw, headerLBA*sectorSize); err != nil {
		return fmt.Errorf("gpt: cannot read header: %w", err)
	}

	var h header
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("gpt: cannot decode header: %w", err)
	}
	if err := verifyHeader(raw, h); err != nil {
		return err
	}
	t.hdr = h
	t.rawHdr = raw[:h.HeaderSize]
	return nil
}

func (t *Table) readEntries() error {
	size := int64(t.hdr.NEntries) * int64(t.hdr.EntrySize)
	raw := make([]byte, size)
	if _, err := t.f.ReadAt(raw, int64(t.hdr.EntriesLBA)*sectorSize); err != nil {
		return fmt.Errorf("gpt: cannot read partition entries: %w", err)
	}
	if crc := crc32.ChecksumIEEE(raw); crc != t.hdr.EntriesCRC {
		return fmt.Errorf("gpt: partition entry array CRC32 mismatch: got %#x want %#x", crc, t.hdr.EntriesCRC)
	}

	entries := make([]entry, t.hdr.NEntries)
	r := bytes.NewReader(raw)
	for i := range entries {
		if err := binary.Read(r, binary.LittleEndian, &entries[i]); err != nil {
			return fmt.Errorf("gpt: cannot decode partition entry %d: %w", i, err)
		}
	}
	t.entries = entries
	return nil
}

func (t *Table) indexKernelEntries() {
	var idx []int
	for i, e := range t.entries {
		if e.TypeGUID == kernelTypeGUID {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.entries[idx[a]].priority() > t.entries[idx[b]].priority()
	})
	t.kernelIdx = idx
}

// Next implements vbootkernel.PartitionTable.
func (t *Table) Next() (vbootkernel.PartitionCandidate, bool, error) {
	t.pos++
	if t.pos >= len(t.kernelIdx) {
		return vbootkernel.PartitionCandidate{}, false, nil
	}
	idx := t.kernelIdx[t.pos]
	e := &t.entries[idx]
	cand := vbootkernel.PartitionCandidate{
		Index: idx,
		Start: e.FirstLBA * sectorSize,
		Size:  (e.LastLBA - e.FirstLBA + 1) * sectorSize,
		GUID:  e.UniqueGUID.toUUID(),
	}
	return cand, true, nil
}

func (t *Table) current() (*entry, error) {
	if t.pos < 0 || t.pos >= len(t.kernelIdx) {
		return nil, fmt.Errorf("gpt: no current entry")
	}
	return &t.entries[t.kernelIdx[t.pos]], nil
}

// OpenStream implements vbootkernel.PartitionTable.
func (t *Table) OpenStream() (vbootkernel.Stream, error) {
	e, err := t.current()
	if err != nil {
		return nil, err
	}
	return &fileStream{
		f:      t.f,
		base:   int64(e.FirstLBA) * sectorSize,
		limit:  int64(e.LastLBA-e.FirstLBA+1) * sectorSize,
		offset: 0,
	}, nil
}

// MarkBad implements vbootkernel.PartitionTable: a partition that fails
// verification loses its priority and is given no further tries, so it
// drops out of every subsequent scan.
func (t *Table) MarkBad() error {
	e, err := t.current()
	if err != nil {
		return err
	}
	e.setPriority(0)
	e.setTries(0)
	e.setSuccessful(false)
	t.dirty = true
	return nil
}

// MarkTry implements vbootkernel.PartitionTable. Choosing a partition that
// has not yet booted successfully consumes one of its remaining tries;
// once a partition boots successfully the firmware marks it so separately
// and tries stop being decremented.
func (t *Table) MarkTry() error {
	e, err := t.current()
	if err != nil {
		return err
	}
	if e.successful() {
		return nil
	}
	if tries := e.tries(); tries > 0 {
		e.setTries(tries - 1)
	}
	t.dirty = true
	return nil
}

// WriteAndFree implements vbootkernel.PartitionTable.
func (t *Table) WriteAndFree() error {
	defer t.f.Close()
	if !t.dirty {
		return nil
	}
	return t.write()
}

func (t *Table) write() error {
	buf := new(bytes.Buffer)
	for i := range t.entries {
		if err := binary.Write(buf, binary.LittleEndian, t.entries[i]); err != nil {
			return fmt.Errorf("gpt: cannot encode partition entry %d: %w", i, err)
		}
	}
	raw := buf.Bytes()
	t.hdr.EntriesCRC = crc32.ChecksumIEEE(raw)

	if _, err := t.f.WriteAt(raw, int64(t.hdr.EntriesLBA)*sectorSize); err != nil {
		return fmt.Errorf("gpt: cannot write partition entries: %w", err)
	}

	hbuf := new(bytes.Buffer)
	if err := binary.Write(hbuf, binary.LittleEndian, t.hdr); err != nil {
		return fmt.Errorf("gpt: cannot encode header: %w", err)
	}
	rawHdr := hbuf.Bytes()
	for i := 0; i < 4; i++ {
		rawHdr[16+i] = 0
	}
	t.hdr.HeaderCRC = crc32.ChecksumIEEE(rawHdr[:t.hdr.HeaderSize])

	hbuf.Reset()
	if err := binary.Write(hbuf, binary.LittleEndian, t.hdr); err != nil {
		return fmt.Errorf("gpt: cannot encode header: %w", err)
	}
	padded := make([]byte, sectorSize)
	copy(padded, hbuf.Bytes())
	if _, err := t.f.WriteAt(padded, headerLBA*sectorSize); err != nil {
		return fmt.Errorf("gpt: cannot write header: %w", err)
	}
	return nil
}
