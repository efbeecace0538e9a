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

import "fmt"

// VblockPrefixSize is the number of bytes read from the start of every
// candidate partition before any parsing happens. A keyblock, preamble and
// the start of the kernel body all typically fit within this prefix, which
// lets the common case verify the body without a second read of the
// partition.
const VblockPrefixSize = 64 * 1024

// VerifyBody verifies the kernel body's signature under dataKey.
// bodyOffset is where the body begins within prefix (keyblock size plus
// preamble size); bodySize is the signed length of the body, taken from
// the preamble. When dest is non-nil the body is assembled there, so the
// caller ends up with the verified kernel in its own buffer; otherwise,
// when the body fits entirely within prefix, it is verified directly out
// of that buffer, and when it doesn't, the remainder is streamed into a
// work-buffer allocation.
//
// Callers already paid for a large sequential prefix read, so
// already-read body bytes are copied out of it rather than read a second
// time through a possibly slower storage path.
func VerifyBody(ctx *BootContext, dataKey *UnpackedKey, sig []byte, prefix []byte, bodyOffset, bodySize uint64, stream Stream, dest []byte) error {
	if bodyOffset > uint64(len(prefix)) {
		return verifyErrorf(ErrBodyOffset, fmt.Errorf("body offset %d exceeds pre-read prefix of %d bytes", bodyOffset, len(prefix)))
	}

	available := uint64(len(prefix)) - bodyOffset
	if available > bodySize {
		available = bodySize
	}

	var body []byte
	switch {
	case dest != nil:
		if bodySize > uint64(len(dest)) {
			return verifyErrorf(ErrBodySize, fmt.Errorf("body of %d bytes exceeds caller buffer of %d", bodySize, len(dest)))
		}
		body = dest[:bodySize]
	case bodySize == available:
		// Already read in full as part of the prefix.
		body = prefix[bodyOffset : bodyOffset+bodySize]
		if err := ctx.Crypto.VerifySignature(dataKey, body, sig); err != nil {
			return verifyErrorf(ErrVerifyBody, err)
		}
		return nil
	default:
		mark := ctx.Work.Mark()
		defer ctx.Work.Reset(mark)

		buf, err := ctx.Work.Alloc(int(bodySize))
		if err != nil {
			return verifyErrorf(ErrBodySize, err)
		}
		body = buf
	}

	copy(body, prefix[bodyOffset:bodyOffset+available])
	if bodySize > available {
		if err := stream.Read(body[available:]); err != nil {
			return verifyErrorf(ErrReadBody, err)
		}
	}

	if err := ctx.Crypto.VerifySignature(dataKey, body, sig); err != nil {
		return verifyErrorf(ErrVerifyBody, err)
	}
	return nil
}
