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

import "golang.org/x/xerrors"

// Names of the specific NV and FWMP flags the policy check and the
// keyblock verifier consult. They are opaque strings rather than an
// exhaustive enum, since the NV/FWMP stores are external collaborators
// this package does not own the full vocabulary of.
const (
	// NVDevBootSignedOnly requires signed kernels even in developer mode.
	NVDevBootSignedOnly = "dev-boot-signed-only"

	// FWMPEnableOfficialOnly requires signed kernels in developer mode,
	// set by the device owner rather than the local developer.
	FWMPEnableOfficialOnly = "enable-official-only"

	// FWMPUseKeyHash requires the developer-mode data-key hash check.
	FWMPUseKeyHash = "use-key-hash"
)

// RequireSigned is the single authoritative predicate for "must the
// keyblock signature verify?" Every downstream check consults this
// instead of re-deriving the policy.
//
// It returns true when the boot mode is not Developer, or the FWMP flag
// "enable-official-only" is set, or the NV flag "dev-boot-signed-only" is
// set.
func RequireSigned(ctx *BootContext) (bool, error) {
	mode := ctx.Mode()
	if mode != ModeDeveloper {
		return true, nil
	}

	officialOnly, err := ctx.FWMP.GetFlag(FWMPEnableOfficialOnly)
	if err != nil {
		return false, xerrors.Errorf("cannot read FWMP flag %q: %w", FWMPEnableOfficialOnly, err)
	}
	if officialOnly {
		return true, nil
	}

	signedOnly, err := ctx.NVFlags.GetFlag(NVDevBootSignedOnly)
	if err != nil {
		return false, xerrors.Errorf("cannot read NV flag %q: %w", NVDevBootSignedOnly, err)
	}
	return signedOnly, nil
}
