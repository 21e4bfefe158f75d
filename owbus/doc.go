// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owbus is a bit-banged 1-wire bus master.
//
// The master generates every time slot in software on a single open-drain
// line (see package owline) with calibrated delay loops (see package
// owtiming). On top of the bit and byte primitives it implements the ROM
// search that enumerates all the devices sharing the wire and keeps the
// identifiers found in a fixed-capacity registry, so that individual devices
// can then be addressed with Match ROM.
//
// A Bus implements onewire.Bus and onewire.BusSearcher, so the device drivers
// of periph.io/x/devices work on top of it unchanged.
//
// A Bus does no locking of its own. Either a single goroutine owns all the
// traffic of a bus, or the caller serializes each complete transaction
// (reset, command, payload). Each individual time slot is run inside
// Opts.Critical.
//
// # Datasheet
//
// https://www.analog.com/en/resources/technical-articles/1wire-search-algorithm.html
package owbus
