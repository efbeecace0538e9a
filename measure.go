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

// bootStateSHA1Digests are the fixed digests extended into a platform
// measurement register to record which combination of developer mode and
// recovery mode a boot took. Each entry is
// SHA1(developer_mode || recovery_mode || keyblock_mode), where
// keyblock_mode is 0 in recovery mode (keyblock flags assumed zero) and 1
// otherwise (keyblock flags assumed 7, i.e. every flag bit set).
//
// Indexed by 2*recovery + developer.
var bootStateSHA1Digests = [4][20]byte{
	{0x25, 0x47, 0xcc, 0x73, 0x6e, 0x95, 0x1f, 0xa4, 0x91, 0x98, 0x53, 0xc4,
		0x3a, 0xe8, 0x90, 0x86, 0x1a, 0x3b, 0x32, 0x64}, // developer=0 recovery=0
	{0xc4, 0x2a, 0xc1, 0xc4, 0x6f, 0x1d, 0x4e, 0x21, 0x1c, 0x73, 0x5c, 0xc7,
		0xdf, 0xad, 0x4f, 0xf8, 0x39, 0x11, 0x10, 0xe9}, // developer=1 recovery=0
	{0x62, 0x57, 0x18, 0x91, 0x21, 0x5b, 0x4e, 0xfc, 0x1c, 0xea, 0xb7, 0x44,
		0xce, 0x59, 0xdd, 0x0b, 0x66, 0xea, 0x6f, 0x73}, // developer=0 recovery=1
	{0x47, 0xec, 0x8d, 0x98, 0x36, 0x64, 0x33, 0xdc, 0x00, 0x2e, 0x77, 0x21,
		0xc9, 0xe3, 0x7d, 0x50, 0x67, 0x54, 0x79, 0x37}, // developer=1 recovery=1
}

// BootStateFingerprint returns the fixed digest identifying the
// developer/recovery combination that flags encodes, suitable for
// extending into a platform measurement register. It is a pure lookup: the
// platform chooses when to perform the extend, this package only supplies
// the value.
func BootStateFingerprint(flags Flags) [20]byte {
	index := 0
	if flags.has(FlagRecoveryMode) {
		index += 2
	}
	if flags.has(FlagDeveloperMode) {
		index += 1
	}
	return bootStateSHA1Digests[index]
}
