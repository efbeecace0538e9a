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

// lowestVersionTracker accumulates the lowest composite version seen
// across every signed candidate in a scan, starting from the sentinel
// that means "nothing signed seen yet".
type lowestVersionTracker struct {
	lowest CompositeVersion
}

func newLowestVersionTracker() *lowestVersionTracker {
	return &lowestVersionTracker{lowest: noSecuredVersion}
}

// observe folds in a signed candidate's composite version.
func (t *lowestVersionTracker) observe(composite CompositeVersion) {
	if t.lowest == noSecuredVersion || composite < t.lowest {
		t.lowest = composite
	}
}

// AdvanceSecureCounter advances the secure counter to the lowest composite
// version observed across the scan, when doing so is warranted, and
// reports whether it did. A recovery boot never touches the counter: the
// whole point of rollback protection is to stop a normal boot from
// running an old, compromised kernel, and recovery mode boots under a
// stricter trust model where the counter should not move.
//
// When the FWMP supplies a rollforward cap, the advance target is clamped
// to secured+cap rather than rejected: a kernel whose version jumps past
// the cap still boots, the counter just trails it until later boots catch
// up.
func AdvanceSecureCounter(ctx *BootContext, t *lowestVersionTracker) (bool, error) {
	if ctx.Mode() == ModeRecovery {
		return false, nil
	}

	secured, err := ctx.SecureCounter.Get()
	if err != nil {
		return false, err
	}

	target := t.lowest
	if target != noSecuredVersion {
		rollCap, ok, err := ctx.FWMP.MaxRollforward()
		if err != nil {
			return false, err
		}
		if limit := uint64(secured) + uint64(rollCap); ok && uint64(target) > limit {
			target = CompositeVersion(limit)
		}
	}

	if !shouldAdvanceCounter(target, secured) {
		return false, nil
	}
	if err := ctx.SecureCounter.Advance(uint32(target)); err != nil {
		return false, err
	}
	ctx.Shared.KernelVersion = uint32(target)
	return true, nil
}
