// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owbus is a container for the packages of a bit-banged 1-wire bus
// master.
//
// The line drivers are in github.com/GermanBionicSystems/owbus/owline, the
// time slot parameters in github.com/GermanBionicSystems/owbus/owtiming and
// the bus master itself, with its ROM search and device registry, in
// github.com/GermanBionicSystems/owbus/owbus. The owscan command under cmd/
// enumerates and reads the devices of a bus from the command line.
package owbus
