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
	"fmt"

	"github.com/google/uuid"
)

// scanOutcome is the overall result of a full partition-table scan.
type scanOutcome int

const (
	scanFoundNone scanOutcome = iota
	scanFoundInvalidOnly
	scanFoundGood
)

// chosenKernel describes the candidate the scan settled on.
type chosenKernel struct {
	PartitionIndex    int // 0-based, as yielded by the PartitionTable
	GUID              uuid.UUID
	BootloaderAddress uint64
	BootloaderSize    uint64
	Flags             uint32
	Composite         CompositeVersion
	Signed            bool
}

// scanPartitions walks every candidate kernel partition table entry,
// verifying each one in turn: the first good candidate is fully verified
// and chosen; the
// scan then stops immediately if no rollback protection applies (recovery
// boot, or a self-signed kernel policy permits) or the chosen version
// already equals the secured counter, and otherwise continues vblock-only
// so a lower-versioned signed candidate elsewhere on disk can still pull
// the counter target down. Candidates that fail are marked bad and
// skipped.
//
// On return, pt.WriteAndFree has always been called exactly once,
// regardless of outcome, and Shared.KernelSigned reflects the chosen
// candidate rather than whichever candidate happened to be verified last.
// The returned tracker holds the lowest composite version observed across
// every signed candidate in the scan, for the caller to hand to
// AdvanceSecureCounter.
func scanPartitions(ctx *BootContext, pt PartitionTable, kernelBuf []byte) (scanOutcome, *chosenKernel, *lowestVersionTracker, error) {
	defer pt.WriteAndFree()

	tracker := newLowestVersionTracker()
	outcome := scanFoundNone
	var chosen *chosenKernel

	for {
		cand, ok, err := pt.Next()
		if err != nil {
			return scanFoundNone, nil, tracker, err
		}
		if !ok {
			break
		}
		if outcome == scanFoundNone {
			outcome = scanFoundInvalidOnly
		}

		res, err := verifyCandidate(ctx, pt, chosen != nil, kernelBuf)
		if err != nil {
			pt.MarkBad()
			continue
		}

		if res.signed {
			tracker.observe(res.composite)
		}

		if chosen != nil {
			// A later candidate only contributes to the
			// lowest-version tracking above.
			continue
		}

		chosen = &chosenKernel{
			PartitionIndex:    cand.Index,
			GUID:              cand.GUID,
			BootloaderAddress: res.bootloaderAddr,
			BootloaderSize:    res.bootloaderSize,
			Flags:             res.preambleFlags,
			Composite:         res.composite,
			Signed:            res.signed,
		}
		outcome = scanFoundGood
		if !ctx.Flags.has(FlagNofailBoot) {
			pt.MarkTry()
		}

		if ctx.Mode() == ModeRecovery || !res.signed {
			// No rollback protection applies, so no other
			// candidate's version can matter.
			break
		}
		secured, err := ctx.SecureCounter.Get()
		if err != nil {
			return scanFoundNone, nil, tracker, err
		}
		if uint32(res.composite) == secured {
			// The counter cannot move anyway.
			break
		}
	}

	if chosen != nil {
		ctx.Shared.KernelSigned = chosen.Signed
	}

	return outcome, chosen, tracker, nil
}

// candidateResult is what verifyCandidate reports for a candidate that
// passed every check it was subjected to.
type candidateResult struct {
	composite      CompositeVersion
	bootloaderAddr uint64
	bootloaderSize uint64
	preambleFlags  uint32
	signed         bool
}

// verifyCandidate runs the keyblock/preamble/body pipeline over a single
// candidate partition. When vblockOnly is set, only the keyblock and
// preamble are checked; a fully-verified candidate has already been
// chosen and this one is only being examined for its version.
func verifyCandidate(ctx *BootContext, pt PartitionTable, vblockOnly bool, kernelBuf []byte) (*candidateResult, error) {
	stream, err := pt.OpenStream()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	mark := ctx.Work.Mark()
	defer ctx.Work.Reset(mark)

	prefix, err := ctx.Work.Alloc(VblockPrefixSize)
	if err != nil {
		return nil, err
	}
	if err := stream.Read(prefix); err != nil {
		return nil, verifyErrorf(ErrReadVblock, err)
	}

	kb, err := ParseKeyblock(prefix)
	if err != nil {
		return nil, verifyErrorf(ErrKeyblockSig, err)
	}

	kbResult, err := VerifyKeyblock(ctx, kb)
	if err != nil {
		return nil, err
	}

	if int(kb.KeyblockSize) >= len(prefix) {
		return nil, verifyErrorf(ErrBodyOffset, fmt.Errorf("keyblock consumes entire pre-read prefix"))
	}
	preamble, err := ParsePreamble(prefix[kb.KeyblockSize:])
	if err != nil {
		return nil, verifyErrorf(ErrPreambleSig, err)
	}

	composite, err := VerifyPreamble(ctx, kb, preamble, kbResult.DataKey)
	if err != nil {
		return nil, err
	}

	res := &candidateResult{
		composite:      composite,
		bootloaderAddr: preamble.BootloaderAddress,
		bootloaderSize: preamble.BootloaderSize,
		preambleFlags:  preamble.Flags,
		signed:         kbResult.Valid,
	}

	if vblockOnly {
		return res, nil
	}

	bodyOffset := uint64(kb.KeyblockSize) + uint64(preamble.PreambleSize)

	if err := VerifyBody(ctx, kbResult.DataKey, preamble.BodySignature(), prefix, bodyOffset, preamble.BodySize, stream, kernelBuf); err != nil {
		return nil, err
	}

	return res, nil
}
