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

// Params bundles everything LoadKernel needs to run a scan: the boot
// context carrying the collaborators, the partition table to scan, and an
// optional preallocated buffer the verified kernel body is assembled
// into. With no KernelBuffer the body is verified in place out of the
// vblock prefix, spilling into the work buffer when it extends past it.
type Params struct {
	Context        *BootContext
	PartitionTable PartitionTable
	KernelBuffer   []byte
}

// Result is what LoadKernel returns when it finds an acceptable kernel.
// PartitionNumber is 1-based, matching the convention callers expect from
// a partition table (internally, scanning is 0-based; the +1 happens only
// here, at the boundary). Flags carries the chosen kernel's preamble
// flags through to the caller unchanged.
type Result struct {
	PartitionNumber   int
	PartitionGUID     uuid.UUID
	BootloaderAddress uint64
	BootloaderSize    uint64
	Flags             uint32
	CounterAdvanced   bool
}

// LoadKernel scans params.PartitionTable for a kernel partition that
// verifies under the policy the boot context implies, choosing the first
// one found and updating the secure counter if the scan, taken as a whole,
// warrants it.
//
// Outside recovery mode, the secure counter is read once before touching
// any partition: if that fails, the boot fails closed immediately rather
// than falling through to "no kernel found", since a missing counter means
// rollback protection cannot be enforced at all, not merely that a disk
// happens to be empty. A recovery boot skips this read.
func LoadKernel(params Params) (*Result, error) {
	ctx := params.Context

	if ctx.Mode() != ModeRecovery {
		if _, err := ctx.SecureCounter.Get(); err != nil {
			return nil, ErrSecureCounterUnavailable
		}
	}

	outcome, chosen, tracker, err := scanPartitions(ctx, params.PartitionTable, params.KernelBuffer)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case scanFoundNone:
		return nil, verifyErrorf(ErrNoKernelFound, nil)
	case scanFoundInvalidOnly:
		return nil, verifyErrorf(ErrInvalidKernelFound, nil)
	}

	advanced, err := AdvanceSecureCounter(ctx, tracker)
	if err != nil {
		return nil, err
	}

	return &Result{
		PartitionNumber:   chosen.PartitionIndex + 1,
		PartitionGUID:     chosen.GUID,
		BootloaderAddress: chosen.BootloaderAddress,
		BootloaderSize:    chosen.BootloaderSize,
		Flags:             chosen.Flags,
		CounterAdvanced:   advanced,
	}, nil
}
