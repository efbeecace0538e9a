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
	"encoding/hex"

	. "github.com/snapcore/vbootkernel"

	check "gopkg.in/check.v1"
)

type measureSuite struct{}

var _ = check.Suite(&measureSuite{})

func (s *measureSuite) TestBootStateFingerprintDistinctPerCombination(c *check.C) {
	seen := map[[20]byte]Flags{}
	for _, flags := range []Flags{
		0,
		FlagDeveloperMode,
		FlagRecoveryMode,
		FlagRecoveryMode | FlagDeveloperMode,
	} {
		fp := BootStateFingerprint(flags)
		if other, ok := seen[fp]; ok {
			c.Fatalf("flags %v and %v produced the same fingerprint", flags, other)
		}
		seen[fp] = flags
	}
}

func (s *measureSuite) TestBootStateFingerprintIgnoresUnrelatedFlags(c *check.C) {
	a := BootStateFingerprint(FlagDeveloperMode)
	b := BootStateFingerprint(FlagDeveloperMode | FlagHwCryptoAllowed | FlagNofailBoot)
	c.Check(a, check.Equals, b)
}

func (s *measureSuite) TestBootStateFingerprintStable(c *check.C) {
	c.Check(BootStateFingerprint(0), check.Equals, BootStateFingerprint(0))
}

func (s *measureSuite) TestBootStateFingerprintGoldenValues(c *check.C) {
	// SHA1(developer || recovery || keyblock_mode), keyblock_mode being
	// 0 only in recovery mode. These values are extended into a
	// platform measurement register and must never change.
	for _, t := range []struct {
		flags  Flags
		digest string
	}{
		{0, "2547cc736e951fa4919853c43ae890861a3b3264"},
		{FlagDeveloperMode, "c42ac1c46f1d4e211c735cc7dfad4ff8391110e9"},
		{FlagRecoveryMode, "62571891215b4efc1ceab744ce59dd0b66ea6f73"},
		{FlagRecoveryMode | FlagDeveloperMode, "47ec8d98366433dc002e7721c9e37d5067547937"},
	} {
		fp := BootStateFingerprint(t.flags)
		c.Check(hex.EncodeToString(fp[:]), check.Equals, t.digest, check.Commentf("flags %v", t.flags))
	}
}
