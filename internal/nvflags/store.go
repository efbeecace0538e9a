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

// Package nvflags holds process-wide, set-once snapshots of the platform's
// non-volatile flags and firmware management parameters, the same way
// bootenv holds the platform's boot mode and model: some component early
// in boot reads these once from real hardware and calls Set; everything
// downstream just loads the snapshot.
package nvflags

import (
	"errors"
	"sync/atomic"
)

var currentNVFlags atomic.Value   // map[string]bool
var currentFWMP atomic.Value      // *FWMPSnapshot

// FWMPSnapshot is the full set of firmware management parameters this
// package tracks.
type FWMPSnapshot struct {
	Flags           map[string]bool
	DevKeyHash      [32]byte
	HasDevKeyHash   bool
	MaxRollforward  uint32
	HasRollforward  bool
}

// SetNVFlags publishes the platform's NV flags. It may only be called
// once; subsequent calls return false and have no effect.
var SetNVFlags = func(flags map[string]bool) bool {
	return currentNVFlags.CompareAndSwap(nil, flags)
}

// SetFWMP publishes the platform's firmware management parameters. It may
// only be called once; subsequent calls return false and have no effect.
var SetFWMP = func(snapshot *FWMPSnapshot) bool {
	return currentFWMP.CompareAndSwap(nil, snapshot)
}

var loadNVFlags = func() (map[string]bool, error) {
	flags, ok := currentNVFlags.Load().(map[string]bool)
	if !ok {
		return nil, errors.New("SetNVFlags hasn't been called yet")
	}
	return flags, nil
}

var loadFWMP = func() (*FWMPSnapshot, error) {
	snapshot, ok := currentFWMP.Load().(*FWMPSnapshot)
	if !ok {
		return nil, errors.New("SetFWMP hasn't been called yet")
	}
	return snapshot, nil
}

// NVStore implements vbootkernel.NVFlagStore against the process-wide
// snapshot SetNVFlags publishes.
type NVStore struct{}

// GetFlag implements vbootkernel.NVFlagStore.
func (NVStore) GetFlag(name string) (bool, error) {
	flags, err := loadNVFlags()
	if err != nil {
		return false, err
	}
	return flags[name], nil
}

// FWMP implements vbootkernel.FWMPStore against the process-wide snapshot
// SetFWMP publishes.
type FWMP struct{}

// GetFlag implements vbootkernel.FWMPStore.
func (FWMP) GetFlag(name string) (bool, error) {
	snapshot, err := loadFWMP()
	if err != nil {
		return false, err
	}
	return snapshot.Flags[name], nil
}

// GetDevKeyHash implements vbootkernel.FWMPStore.
func (FWMP) GetDevKeyHash() (hash [32]byte, ok bool, err error) {
	snapshot, err := loadFWMP()
	if err != nil {
		return [32]byte{}, false, err
	}
	return snapshot.DevKeyHash, snapshot.HasDevKeyHash, nil
}

// MaxRollforward implements vbootkernel.FWMPStore.
func (FWMP) MaxRollforward() (cap uint32, ok bool, err error) {
	snapshot, err := loadFWMP()
	if err != nil {
		return 0, false, err
	}
	return snapshot.MaxRollforward, snapshot.HasRollforward, nil
}
