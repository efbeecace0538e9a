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

import "github.com/google/uuid"

// Stream is the collaborator interface over a partition's raw bytes.
// Implementations stream from whatever storage medium backs disk_handle;
// this package never touches storage directly.
type Stream interface {
	// Read reads exactly len(p) bytes, or returns an error.
	Read(p []byte) error
	Close() error
}

// PartitionCandidate is the transient per-candidate record the partition
// table library yields while scanning, minus the fields the scanner
// itself computes. Index is the candidate's 0-based position in the
// partition table, not its position in the scan: implementations are free
// to yield candidates in priority order rather than table order.
type PartitionCandidate struct {
	Index int
	Start uint64
	Size  uint64
	GUID  uuid.UUID
}

// PartitionTable is the collaborator interface over the on-disk partition
// table: iterate kernel entries, mark an entry bad or try, and commit the
// table back to disk. This package treats partition-table parsing and
// storage as entirely out of scope and only ever talks to it through this
// interface.
type PartitionTable interface {
	// Next advances to the next kernel candidate entry, or returns
	// ok=false when the scan is exhausted.
	Next() (candidate PartitionCandidate, ok bool, err error)

	// OpenStream opens a Stream over the bytes of the entry most
	// recently returned by Next.
	OpenStream() (Stream, error)

	// MarkBad marks the current entry as unbootable.
	MarkBad() error

	// MarkTry marks the current entry as "try" (the bootloader should
	// attempt it and decrement its own try-count on next boot).
	MarkTry() error

	// WriteAndFree writes the partition-table state back to disk and
	// releases any resources associated with the scan. It is called on
	// every exit path, regardless of outcome.
	WriteAndFree() error
}

// NVFlagStore is the non-volatile flag store collaborator.
type NVFlagStore interface {
	GetFlag(name string) (bool, error)
}

// FWMPStore is the firmware-management-parameters collaborator.
type FWMPStore interface {
	GetFlag(name string) (bool, error)

	// GetDevKeyHash returns the FWMP-enforced developer data-key hash
	// (256 bits), or ok=false if none is configured.
	GetDevKeyHash() (hash [32]byte, ok bool, err error)

	// MaxRollforward returns the configured cap on how far the
	// published kernel_version may advance past the current secured
	// counter in one boot, or ok=false if uncapped.
	MaxRollforward() (cap uint32, ok bool, err error)
}

// SecureCounterStore is the secure-counter hardware collaborator: a
// persistent, tamper-resistant, monotonic 32-bit "kernel_version_secdata".
type SecureCounterStore interface {
	// Get returns the current secured counter value.
	Get() (uint32, error)

	// Advance sets the secured counter to newValue, which must be
	// greater than the current value. The caller is responsible for
	// only calling this when that holds.
	Advance(newValue uint32) error
}

// CryptoProvider is the crypto primitives collaborator.
type CryptoProvider interface {
	// VerifySignature verifies sig over data under key, using the
	// algorithm the key's header names.
	VerifySignature(key *UnpackedKey, data, sig []byte) error

	// VerifyHash verifies that digest-sha256(data) equals digest.
	VerifyHash(data []byte, digest []byte) error

	// DigestSHA256 computes the 256-bit digest of data.
	DigestSHA256(data []byte) [32]byte

	// ConstantTimeEqual reports whether a and b are equal, in time
	// independent of where they first differ.
	ConstantTimeEqual(a, b []byte) bool
}
