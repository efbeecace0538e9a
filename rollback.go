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

// noSecuredVersion is the sentinel the scanner uses to mean "no signed
// candidate has been seen yet" when tracking the lowest composite version
// across a scan, distinct from any real composite version because it has
// both halves saturated.
const noSecuredVersion CompositeVersion = 0xFFFFFFFF

// KeyRollback reports whether keyVersion is lower than the key-version
// half of the secured counter, which recovery boots are exempt from.
func KeyRollback(keyVersion uint32, secured uint32) bool {
	return keyVersion < (secured >> 16)
}

// CompositeRollback reports whether composite is lower than the full
// secured counter value, which recovery boots are exempt from.
func CompositeRollback(composite CompositeVersion, secured uint32) bool {
	return uint32(composite) < secured
}

// shouldAdvanceCounter is the counter-update decision rule: the secure
// counter should advance to lowest only when a signed candidate was found
// (lowest is not the sentinel) and lowest is strictly greater than the
// counter's current value. Equal or lower values are left alone; there is
// nothing to gain from rewriting the counter to the value it already
// holds, and advancing is never used to move it backwards.
func shouldAdvanceCounter(lowest CompositeVersion, secured uint32) bool {
	return lowest != noSecuredVersion && uint32(lowest) > secured
}
