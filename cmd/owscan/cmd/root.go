// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cmd implements the owscan commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/GermanBionicSystems/owbus/owbus"
	"github.com/GermanBionicSystems/owbus/owbus/owbustest"
	"github.com/GermanBionicSystems/owbus/owline"
	"github.com/GermanBionicSystems/owbus/owtiming"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var (
	// Global flags
	verbose   bool
	pinName   string
	clock     = freqFlag(16 * physic.MegaHertz)
	capacity  int
	calibrate bool
	simIDs    []string // For simulator: identifiers of the simulated devices
)

var rootCmd = &cobra.Command{
	Use:   "owscan",
	Short: "Bit-banged 1-wire bus scanner",
	Long: `Enumerate the devices on a 1-wire bus driven by a single GPIO pin, read
their identifiers and temperatures.

Examples:
  owscan scan --pin GPIO4                          # List the devices on GPIO4
  owscan scan --sim-ids 0x10AABBCCDDEE7A,0x22112233445B
  owscan temp --pin GPIO17 --calibrate             # Tune the reset pulse, then read
  owscan readrom -v                                # Single device, debug logs`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.BoolVarP(&verbose, "verbose", "v", false, "log bus diagnostics to stderr")
	f.StringVarP(&pinName, "pin", "p", "GPIO4", "GPIO pin of the 1-wire data line")
	f.Var(&clock, "clock", "host clock, used to bound the presence pulse polling")
	f.IntVarP(&capacity, "capacity", "n", owbus.DefaultOpts.Capacity, "maximum number of devices remembered by a search")
	f.BoolVar(&calibrate, "calibrate", false, "tune the reset pulse width before running the command")
	f.StringSliceVar(&simIDs, "sim-ids", nil,
		"simulator: identifiers of the simulated devices (hex, e.g., 0x10AABBCCDDEE7A,0x22112233445B)")
}

// openBus returns the bus selected by the global flags: a simulated wire when
// --sim-ids is set, the GPIO pin otherwise.
func openBus(cmd *cobra.Command) (*owbus.Bus, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := owbus.DefaultOpts
	opts.Capacity = capacity
	opts.Timing = owtiming.ForClock(physic.Frequency(clock))
	opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	var l owline.Line
	if len(simIDs) != 0 {
		w, err := simWire(simIDs)
		if err != nil {
			return nil, err
		}
		opts.Delayer = w
		l = w
	} else {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize periph: %w", err)
		}
		p, err := owline.ByName(pinName)
		if err != nil {
			return nil, err
		}
		l = p
	}
	b, err := owbus.New(l, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open bus: %w", err)
	}
	if calibrate && !b.AutoTiming() {
		b.Close()
		return nil, fmt.Errorf("%s: reset pulse calibration failed", b)
	}
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using %s, reset pulse %s\n", b, b.Timing().Reset)
	}
	return b, nil
}

// simWire returns a simulated wire with one device per identifier.
// Temperature sensors read 25.0625°C.
func simWire(ids []string) (*owbustest.Wire, error) {
	var devs []*owbustest.Device
	for _, s := range ids {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --sim-ids value %q: %w", s, err)
		}
		if v == 0 {
			return nil, fmt.Errorf("invalid --sim-ids value %q: zero is not an identifier", s)
		}
		d := owbustest.NewDevice(v)
		if isThermometer(byte(v)) {
			d.SetTemperature(0x0191)
		}
		devs = append(devs, d)
	}
	return owbustest.NewWire(devs...), nil
}

// freqFlag is a physic.Frequency usable as a command line flag.
type freqFlag physic.Frequency

func (f *freqFlag) String() string {
	return physic.Frequency(*f).String()
}

func (f *freqFlag) Set(s string) error {
	return (*physic.Frequency)(f).Set(s)
}

func (f *freqFlag) Type() string {
	return "frequency"
}
