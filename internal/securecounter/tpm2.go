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

// Package securecounter implements the kernel verifier's secure counter
// collaborator on top of a TPM2 NV counter index: read with
// NVReadCounter, advanced with NVIncrement, both authorized by the index's
// own empty auth value with no additional policy since this index holds no
// secret, only a monotonic value an attacker gains nothing from reading.
package securecounter

import (
	"errors"

	"github.com/canonical/go-tpm2"
	"github.com/canonical/go-tpm2/linux"
	"golang.org/x/xerrors"
)

// DefaultNVIndexHandle is the NV index this package provisions the secure
// counter at, absent an explicit handle.
const DefaultNVIndexHandle tpm2.Handle = 0x01800000

// ErrNoTPM2Device indicates that no TPM2 device is available.
var ErrNoTPM2Device = errors.New("no TPM2 device is available")

// defaultDevice returns the TPM2 device holding the secure counter. The
// kernel's resource-managed device is preferred so the counter can
// coexist with whatever else is using the TPM during boot; older kernels
// without an in-kernel resource manager fall back to the raw device,
// which this package only needs for the handful of NV commands it issues.
func defaultDevice() (tpm2.TPMDevice, error) {
	rawDev, err := linux.DefaultTPM2Device()
	switch {
	case errors.Is(err, linux.ErrDefaultNotTPM2Device) || errors.Is(err, linux.ErrNoTPMDevices):
		return nil, ErrNoTPM2Device
	case err != nil:
		return nil, err
	}

	rmDev, err := rawDev.ResourceManagedDevice()
	switch {
	case errors.Is(err, linux.ErrNoResourceManagedDevice):
		return rawDev, nil
	case err != nil:
		return nil, err
	}
	return rmDev, nil
}

func openTPM() (*tpm2.TPMContext, error) {
	dev, err := defaultDevice()
	if err != nil {
		return nil, xerrors.Errorf("cannot open TPM2 device: %w", err)
	}
	tpm, err := tpm2.OpenTPMDevice(dev)
	if err != nil {
		return nil, xerrors.Errorf("cannot open TPM2 device: %w", err)
	}
	return tpm, nil
}

// TPM2Store implements vbootkernel.SecureCounterStore against a single NV
// counter index on a TPM2 device. The index's public area is supplied by
// the caller, which is expected to persist it alongside whatever else it
// keeps about this device's provisioning, rather than re-deriving it from
// a bare handle on every boot.
type TPM2Store struct {
	tpm      *tpm2.TPMContext
	nvPublic *tpm2.NVPublic
}

// NewTPM2Store opens the default TPM2 device and returns a store backed
// by the already-provisioned NV counter index described by nvPublic.
func NewTPM2Store(nvPublic *tpm2.NVPublic) (*TPM2Store, error) {
	tpm, err := openTPM()
	if err != nil {
		return nil, err
	}
	return &TPM2Store{tpm: tpm, nvPublic: nvPublic}, nil
}

// OpenAndProvision opens the default TPM2 device, provisions the NV
// counter index at handle if it does not already exist, and returns a
// store ready to use. This is the entry point a standalone binary reaches
// for; code that already tracks a provisioned NVPublic across boots should
// call NewTPM2Store directly instead of re-provisioning every time.
func OpenAndProvision(handle tpm2.Handle) (*TPM2Store, error) {
	tpm, err := openTPM()
	if err != nil {
		return nil, err
	}

	nvPublic, err := ProvisionNVCounter(tpm, handle)
	if err != nil {
		return nil, err
	}
	return &TPM2Store{tpm: tpm, nvPublic: nvPublic}, nil
}

// ProvisionNVCounter defines a new NV counter index at handle, suitable
// for passing to NewTPM2Store on every subsequent boot. It is idempotent
// if an index with this handle, attributes and size already exists.
func ProvisionNVCounter(tpm *tpm2.TPMContext, handle tpm2.Handle) (*tpm2.NVPublic, error) {
	public := &tpm2.NVPublic{
		Index:   handle,
		NameAlg: tpm2.HashAlgorithmSHA256,
		Attrs:   tpm2.NVTypeCounter.WithAttrs(tpm2.AttrNVAuthWrite | tpm2.AttrNVAuthRead),
		Size:    8,
	}
	index, err := tpm.NVDefineSpace(tpm.OwnerHandleContext(), nil, public, nil)
	if err != nil {
		if tpm2.IsTPMError(err, tpm2.ErrorNVDefined, tpm2.CommandNVDefineSpace) {
			return public, nil
		}
		return nil, xerrors.Errorf("cannot define secure counter NV index: %w", err)
	}
	if err := tpm.NVIncrement(index, index, nil); err != nil {
		return nil, xerrors.Errorf("cannot initialize secure counter NV index: %w", err)
	}
	return public, nil
}

// Get reads the current counter value. The TPM2 NV counter is 64 bits
// wide; this store only ever writes values that fit in 32 bits, so a
// value outside that range indicates the index holds something other
// than what this package provisioned.
func (s *TPM2Store) Get() (uint32, error) {
	index, err := tpm2.CreateNVIndexResourceContextFromPublic(s.nvPublic)
	if err != nil {
		return 0, xerrors.Errorf("cannot create context for secure counter NV index: %w", err)
	}

	value, err := s.tpm.NVReadCounter(index, index, nil)
	if err != nil {
		return 0, xerrors.Errorf("cannot read secure counter NV index: %w", err)
	}
	if value > 0xFFFFFFFF {
		return 0, xerrors.Errorf("secure counter NV index holds an out of range value: %d", value)
	}
	return uint32(value), nil
}

// Advance increments the NV counter until it reaches newValue. TPM2 NV
// counters only support incrementing by exactly one per NVIncrement call,
// so reaching an arbitrary newValue costs one TPM command per unit of
// advance; rollback protection only ever advances this counter by small
// amounts between boots, so this is not a practical concern.
func (s *TPM2Store) Advance(newValue uint32) error {
	index, err := tpm2.CreateNVIndexResourceContextFromPublic(s.nvPublic)
	if err != nil {
		return xerrors.Errorf("cannot create context for secure counter NV index: %w", err)
	}

	current, err := s.tpm.NVReadCounter(index, index, nil)
	if err != nil {
		return xerrors.Errorf("cannot read secure counter NV index: %w", err)
	}
	if current >= uint64(newValue) {
		return xerrors.Errorf("refusing to advance secure counter backwards or to its current value")
	}

	for current < uint64(newValue) {
		if err := s.tpm.NVIncrement(index, index, nil); err != nil {
			return xerrors.Errorf("cannot increment secure counter NV index: %w", err)
		}
		current++
	}
	return nil
}
