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
	"bytes"

	. "github.com/snapcore/vbootkernel"

	check "gopkg.in/check.v1"
)

type bodySuite struct{}

var _ = check.Suite(&bodySuite{})

func (s *bodySuite) TestVerifyBodyEntirelyWithinPrefix(c *check.C) {
	ctx := newContext()
	body := []byte("the entire kernel body fits in the prefix")
	prefix := append([]byte("headerbytes"), body...)
	sig := signFake(body)

	err := VerifyBody(ctx, dataKeyFor(c, []byte("k")), sig, prefix, 11, uint64(len(body)), &fakeStream{}, nil)
	c.Assert(err, check.IsNil)
}

func (s *bodySuite) TestVerifyBodySpillsIntoStream(c *check.C) {
	ctx := newContext()
	head := []byte("head-in-prefix-")
	tail := []byte("tail-read-from-stream")
	body := append(append([]byte{}, head...), tail...)
	sig := signFake(body)

	prefix := append([]byte("hdr"), head...)
	stream := &fakeStream{data: tail}

	err := VerifyBody(ctx, dataKeyFor(c, []byte("k")), sig, prefix, 3, uint64(len(body)), stream, nil)
	c.Assert(err, check.IsNil)
}

func (s *bodySuite) TestVerifyBodyAssemblesIntoDest(c *check.C) {
	ctx := newContext()
	head := []byte("head-in-prefix-")
	tail := []byte("tail-read-from-stream")
	body := append(append([]byte{}, head...), tail...)
	sig := signFake(body)

	prefix := append([]byte("hdr"), head...)
	stream := &fakeStream{data: tail}
	dest := make([]byte, 128)

	err := VerifyBody(ctx, dataKeyFor(c, []byte("k")), sig, prefix, 3, uint64(len(body)), stream, dest)
	c.Assert(err, check.IsNil)
	c.Check(bytes.Equal(dest[:len(body)], body), check.Equals, true)
}

func (s *bodySuite) TestVerifyBodyDestTooSmall(c *check.C) {
	ctx := newContext()
	body := []byte("a kernel body")
	prefix := append([]byte("hdr"), body...)
	sig := signFake(body)

	err := VerifyBody(ctx, dataKeyFor(c, []byte("k")), sig, prefix, 3, uint64(len(body)), &fakeStream{}, make([]byte, 4))
	c.Assert(err, check.NotNil)
	c.Check(IsKind(err, ErrBodySize), check.Equals, true)
}

func (s *bodySuite) TestVerifyBodyBadSignature(c *check.C) {
	ctx := newContext()
	body := []byte("a kernel body")
	prefix := append([]byte("hdr"), body...)
	sig := signFake([]byte("not the body"))

	err := VerifyBody(ctx, dataKeyFor(c, []byte("k")), sig, prefix, 3, uint64(len(body)), &fakeStream{}, nil)
	c.Assert(err, check.NotNil)
	c.Check(IsKind(err, ErrVerifyBody), check.Equals, true)
}

func (s *bodySuite) TestVerifyBodyOffsetBeyondPrefix(c *check.C) {
	ctx := newContext()
	prefix := []byte("short")

	err := VerifyBody(ctx, dataKeyFor(c, []byte("k")), nil, prefix, 100, 10, &fakeStream{}, nil)
	c.Assert(err, check.NotNil)
	c.Check(IsKind(err, ErrBodyOffset), check.Equals, true)
}

func (s *bodySuite) TestVerifyBodyStreamReadFailure(c *check.C) {
	ctx := newContext()
	prefix := []byte("hdr")
	stream := &fakeStream{data: []byte("too short")}

	err := VerifyBody(ctx, dataKeyFor(c, []byte("k")), nil, prefix, 3, 1000, stream, nil)
	c.Assert(err, check.NotNil)
	c.Check(IsKind(err, ErrReadBody), check.Equals, true)
}
