// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/owbus/owbus"
	"github.com/spf13/cobra"
	"periph.io/x/devices/v3/ds18b20"
)

var resolution int

var tempCmd = &cobra.Command{
	Use:   "temp",
	Short: "Read the temperature of every thermometer on the bus",
	Long: `Search the bus, start a conversion on all the DS18B20, DS18S20 and
DS1822 found at once, then read each of them.

Examples:
  owscan temp --pin GPIO4 --resolution 12
  owscan temp --sim-ids 0x6E000000C0FFEE28,0x0200000000BEEF28`,
	RunE: runTemp,
}

func init() {
	rootCmd.AddCommand(tempCmd)

	tempCmd.Flags().IntVarP(&resolution, "resolution", "r", 10, "conversion resolution in bits (9..12)")
}

func runTemp(cmd *cobra.Command, args []string) error {
	b, err := openBus(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	addrs, err := b.Search(false)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	var devs []*ds18b20.Dev
	for _, a := range addrs {
		if !isThermometer(owbus.Family(a)) {
			continue
		}
		d, err := ds18b20.New(b, a, resolution)
		if err != nil {
			return fmt.Errorf("%#016x: %w", uint64(a), err)
		}
		devs = append(devs, d)
	}
	if len(devs) == 0 {
		return errors.New("no thermometer found")
	}
	if err := ds18b20.ConvertAll(b, resolution); err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}
	for _, d := range devs {
		t, err := d.LastTemp()
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", d, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", d, t)
	}
	return nil
}

func isThermometer(f byte) bool {
	return f == 0x10 || f == 0x22 || f == 0x28
}
