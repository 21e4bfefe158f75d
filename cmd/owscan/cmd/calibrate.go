// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Find the reset pulse width the devices answer to",
	Long: `Sweep the reset pulse width until the devices answer with a presence
pulse and print the width kept. Use -v to see every trial.`,
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	b, err := openBus(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	if !calibrate && !b.AutoTiming() {
		return fmt.Errorf("%s: no reset pulse width produced a presence pulse", b)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Reset pulse: %s\n", b.Timing().Reset)
	return nil
}
