// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var readROMCmd = &cobra.Command{
	Use:   "readrom",
	Short: "Read the identifier of the only device on the bus",
	Long: `Read the identifier of the device with Read ROM, without a search.

The result is meaningless when more than one device is on the bus: the
identifiers are ANDed together on the wire. Check the CRC.`,
	RunE: runReadROM,
}

func init() {
	rootCmd.AddCommand(readROMCmd)
}

func runReadROM(cmd *cobra.Command, args []string) error {
	b, err := openBus(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	if !b.Reset() {
		return errors.New("no device answered the reset pulse")
	}
	a, err := b.ReadID()
	if err != nil {
		return fmt.Errorf("read ROM failed: %w", err)
	}
	w, colored := output(cmd)
	printDevice(w, colored, 0, a)
	return nil
}
