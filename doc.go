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

// Package vbootkernel implements the kernel-load and verification core of a
// verified-boot implementation: it locates candidate kernel partitions on a
// storage device, verifies each one's signed keyblock, preamble and body
// under policy appropriate to the current boot mode, enforces rollback
// protection against a secure version counter, and selects a kernel to hand
// off to.
//
// Disk I/O, the partition table format, the packed-key/RSA primitives, the
// NV flag store and the secure-counter hardware are all modeled as
// collaborator interfaces (see collaborators.go) so that the verification
// pipeline itself has no platform dependencies. Concrete adapters for these
// collaborators live under internal/.
package vbootkernel
