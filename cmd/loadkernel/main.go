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

// loadkernel is a standalone front-end for the kernel verifier: given a
// disk image or block device and the subkey firmware already authenticated,
// it runs the same scan a bootloader would and reports what it chose.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/snapcore/vbootkernel"
	"github.com/snapcore/vbootkernel/internal/gpt"
	"github.com/snapcore/vbootkernel/internal/nvflags"
	"github.com/snapcore/vbootkernel/internal/securecounter"
)

const workBufferSize = 1 << 20 // 1MiB, comfortably larger than a vblock prefix plus any spilled body read.

type options struct {
	Disk      string `long:"disk" description:"path to the disk image or block device to scan" required:"true"`
	SubkeyDER string `long:"subkey" description:"path to the DER-encoded RSA public key firmware has already authenticated" required:"true"`
	KeyAlg    string `long:"key-algorithm" description:"algorithm the subkey is used under" choice:"rsa2048-sha256" choice:"rsa4096-sha256" choice:"rsa8192-sha512" default:"rsa2048-sha256"`
	KeyVer    uint32 `long:"key-version" description:"version of the subkey"`

	Recovery  bool `long:"recovery" description:"boot in recovery mode"`
	Developer bool `long:"developer" description:"boot in developer mode"`
	HwCrypto  bool `long:"hw-crypto" description:"allow hardware-accelerated signature verification"`
	NoFail    bool `long:"nofail" description:"do not mark the chosen partition try (boot may not complete)"`
}

func keyAlgorithm(name string) vbootkernel.KeyAlgorithm {
	switch name {
	case "rsa4096-sha256":
		return vbootkernel.AlgRSA4096SHA256
	case "rsa8192-sha512":
		return vbootkernel.AlgRSA8192SHA512
	default:
		return vbootkernel.AlgRSA2048SHA256
	}
}

func run(args []string) error {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	keyMaterial, err := os.ReadFile(opts.SubkeyDER)
	if err != nil {
		return fmt.Errorf("cannot read subkey: %w", err)
	}
	subkey, err := vbootkernel.NewPackedKey(keyAlgorithm(opts.KeyAlg), opts.KeyVer, 0, uint32(len(keyMaterial)), keyMaterial)
	if err != nil {
		return fmt.Errorf("cannot pack subkey: %w", err)
	}

	var flagBits vbootkernel.Flags
	if opts.Recovery {
		flagBits |= vbootkernel.FlagRecoveryMode
	}
	if opts.Developer {
		flagBits |= vbootkernel.FlagDeveloperMode
	}
	if opts.HwCrypto {
		flagBits |= vbootkernel.FlagHwCryptoAllowed
	}
	if opts.NoFail {
		flagBits |= vbootkernel.FlagNofailBoot
	}

	// A real bootloader reads these from platform NVRAM before ever
	// calling into this package; this front-end has nowhere else to get
	// them from, so it publishes an all-default snapshot (no flags set,
	// no FWMP constraints) rather than leaving the stores unpublished
	// and failing every lookup.
	nvflags.SetNVFlags(map[string]bool{})
	nvflags.SetFWMP(&nvflags.FWMPSnapshot{Flags: map[string]bool{}})

	counter, err := securecounter.OpenAndProvision(securecounter.DefaultNVIndexHandle)
	if err != nil {
		return fmt.Errorf("cannot prepare secure counter: %w", err)
	}

	table, err := gpt.Open(opts.Disk)
	if err != nil {
		return fmt.Errorf("cannot open partition table: %w", err)
	}

	ctx := &vbootkernel.BootContext{
		Flags:          flagBits,
		ExpectedSubkey: subkey,
		NVFlags:        nvflags.NVStore{},
		FWMP:           nvflags.FWMP{},
		SecureCounter:  counter,
		Crypto:         vbootkernel.RSACryptoProvider{},
		Work:           vbootkernel.NewWorkBuffer(workBufferSize),
	}

	result, err := vbootkernel.LoadKernel(vbootkernel.Params{
		Context:        ctx,
		PartitionTable: table,
	})
	if err != nil {
		return fmt.Errorf("cannot load kernel: %w", err)
	}

	fmt.Printf("chosen partition: %d\n", result.PartitionNumber)
	fmt.Printf("partition GUID: %s\n", result.PartitionGUID)
	fmt.Printf("bootloader: address=%#x size=%d\n", result.BootloaderAddress, result.BootloaderSize)
	fmt.Printf("preamble flags: %#x\n", result.Flags)
	fmt.Printf("secure counter advanced: %t\n", result.CounterAdvanced)
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
