// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owline drives the data line of a bit-banged 1-wire bus.
//
// The 1-wire bus is a single open-drain wire with a pull-up resistor. Any
// party on the bus can pull it low and nobody drives it high, so the wire
// reads high only when every participant has let go of it (wired-AND). A
// Line therefore only needs three primitives: assert the wire low, release
// it to the pulled-up idle state and sample it.
//
// Two adapters are provided: Pin wraps a periph gpio.PinIO and Port wraps the
// input, output and direction registers of a microcontroller I/O port plus
// the bit index of the data pin within that port.
//
// # Overview
//
// https://www.analog.com/en/resources/technical-articles/guide-to-1wire-communication.html
package owline
