// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/GermanBionicSystems/owbus/owbus"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/onewire"
)

var alarmOnly bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List the devices on the bus",
	Long: `Search the bus and list the identifier of every device found, in
registry order, with its family and whether its CRC is valid.

Examples:
  # Two simulated devices
  owscan scan --sim-ids 0x10AABBCCDDEE7A,0x22112233445B

  # Devices in alarm state only
  owscan scan --pin GPIO4 --alarm`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVar(&alarmOnly, "alarm", false, "only list the devices in alarm state")
}

func runScan(cmd *cobra.Command, args []string) error {
	b, err := openBus(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	addrs, err := b.Search(alarmOnly)
	if err != nil {
		if len(addrs) == 0 {
			return fmt.Errorf("search failed: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "search stopped early: %v\n", err)
	}
	w, colored := output(cmd)
	fmt.Fprintf(w, "Found %d device(s) on %s\n", len(addrs), b)
	for i, a := range addrs {
		printDevice(w, colored, i, a)
	}
	if len(addrs) == b.Capacity() {
		fmt.Fprintf(w, "Registry full: there may be more devices, use --capacity\n")
	}
	return nil
}

// output returns where to print and whether ANSI colors can be used.
func output(cmd *cobra.Command) (io.Writer, bool) {
	w := cmd.OutOrStdout()
	if f, ok := w.(*os.File); ok && f == os.Stdout {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			return colorable.NewColorableStdout(), true
		}
	}
	return w, false
}

func printDevice(w io.Writer, colored bool, i int, a onewire.Address) {
	f := owbus.Family(a)
	crc := "ok"
	if !owbus.ValidROM(a) {
		crc = "BAD"
	}
	swatch := ""
	if colored {
		swatch = ansi256.Default.Block(familyColor(f)) + "\033[0m "
	}
	fmt.Fprintf(w, "%s%2d  %#016x  %#02x %-8s  crc %s\n", swatch, i, uint64(a), f, familyName(f), crc)
}

// familyColor returns a stable color per family code.
func familyColor(f byte) color.NRGBA {
	return color.NRGBA{R: f * 37, G: f * 91, B: f * 151, A: 255}
}

func familyName(f byte) string {
	if n, ok := families[f]; ok {
		return n
	}
	return "unknown"
}

var families = map[byte]string{
	0x01: "DS2401",
	0x10: "DS18S20",
	0x12: "DS2406",
	0x1d: "DS2423",
	0x22: "DS1822",
	0x23: "DS2433",
	0x26: "DS2438",
	0x28: "DS18B20",
	0x29: "DS2408",
	0x2d: "DS2431",
	0x3a: "DS2413",
	0x3b: "DS1825",
	0x42: "DS28EA00",
}
