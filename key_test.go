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

type keySuite struct{}

var _ = check.Suite(&keySuite{})

func (s *keySuite) TestNewPackedKeyMaterial(c *check.C) {
	buf := []byte{0, 0, 0, 0, 'k', 'e', 'y', 'm', 'a', 't'}
	k, err := NewPackedKey(AlgRSA2048SHA256, 3, 4, 6, buf)
	c.Assert(err, check.IsNil)
	c.Check(k.Material(), check.DeepEquals, []byte("keymat"))
	c.Check(k.KeyVersion, check.Equals, uint32(3))
}

func (s *keySuite) TestNewPackedKeyOutOfRange(c *check.C) {
	buf := make([]byte, 4)
	_, err := NewPackedKey(AlgRSA2048SHA256, 0, 2, 10, buf)
	c.Check(err, check.ErrorMatches, "packed key material .* exceeds buffer of length 4")
}

func (s *keySuite) TestUnpackCarriesHwCryptoFlag(c *check.C) {
	buf := []byte("material")
	k, err := NewPackedKey(AlgRSA4096SHA256, 1, 0, uint32(len(buf)), buf)
	c.Assert(err, check.IsNil)

	u := k.Unpack(true)
	c.Check(u.Algorithm, check.Equals, AlgRSA4096SHA256)
	c.Check(u.AllowHwCrypto, check.Equals, true)
	c.Check(u.Material, check.DeepEquals, buf)

	u2 := k.Unpack(false)
	c.Check(u2.AllowHwCrypto, check.Equals, false)
}
