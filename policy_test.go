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
	. "github.com/snapcore/vbootkernel"

	check "gopkg.in/check.v1"
)

type policySuite struct{}

var _ = check.Suite(&policySuite{})

func (s *policySuite) TestNormalModeAlwaysRequiresSigned(c *check.C) {
	ctx := newContext()
	ctx.Flags = 0
	required, err := RequireSigned(ctx)
	c.Assert(err, check.IsNil)
	c.Check(required, check.Equals, true)
}

func (s *policySuite) TestRecoveryModeAlwaysRequiresSigned(c *check.C) {
	ctx := newContext()
	ctx.Flags = FlagRecoveryMode
	required, err := RequireSigned(ctx)
	c.Assert(err, check.IsNil)
	c.Check(required, check.Equals, true)
}

func (s *policySuite) TestDeveloperModeDefaultsToUnsigned(c *check.C) {
	ctx := newContext()
	ctx.Flags = FlagDeveloperMode
	required, err := RequireSigned(ctx)
	c.Assert(err, check.IsNil)
	c.Check(required, check.Equals, false)
}

func (s *policySuite) TestDeveloperModeFWMPEnableOfficialOnly(c *check.C) {
	ctx := newContext()
	ctx.Flags = FlagDeveloperMode
	ctx.FWMP.(*fakeFWMP).flags[FWMPEnableOfficialOnly] = true

	required, err := RequireSigned(ctx)
	c.Assert(err, check.IsNil)
	c.Check(required, check.Equals, true)
}

func (s *policySuite) TestDeveloperModeNVDevBootSignedOnly(c *check.C) {
	ctx := newContext()
	ctx.Flags = FlagDeveloperMode
	ctx.NVFlags = fakeNVFlags{NVDevBootSignedOnly: true}

	required, err := RequireSigned(ctx)
	c.Assert(err, check.IsNil)
	c.Check(required, check.Equals, true)
}
