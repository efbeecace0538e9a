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

package gpt

import "github.com/google/uuid"

// kernelTypeGUID is the partition type GUID the GPT spec reserves for a
// ChromeOS-style kernel partition (FE3A2A5D-4F32-41A7-B725-ACCC3285A309).
var kernelTypeGUID = mixedEndianGUID{
	0x5d, 0x2a, 0x3a, 0xfe, 0x32, 0x4f, 0xa7, 0x41,
	0xb7, 0x25, 0xac, 0xcc, 0x32, 0x85, 0xa3, 0x09,
}

// mixedEndianGUID is the raw 16-byte on-disk encoding of a GPT GUID: the
// first three fields are little-endian, the last two are big-endian. This
// differs from the all-big-endian encoding uuid.UUID and RFC 4122 use, so
// on-disk bytes need byte-swapping at each boundary before they can be
// handed to or received from the uuid package.
type mixedEndianGUID [16]byte

func (g mixedEndianGUID) toUUID() uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = g[3], g[2], g[1], g[0]
	u[4], u[5] = g[5], g[4]
	u[6], u[7] = g[7], g[6]
	copy(u[8:], g[8:])
	return u
}
