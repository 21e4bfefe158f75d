// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus_test

import (
	"fmt"
	"log"

	"github.com/GermanBionicSystems/owbus/owbus"
	"github.com/GermanBionicSystems/owbus/owline"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ds18b20"
	"periph.io/x/host/v3"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// The 1-wire data line is on GPIO4, with a 4.7kΩ pull-up to 3.3V.
	l, err := owline.ByName("GPIO4")
	if err != nil {
		log.Fatal(err)
	}
	b, err := owbus.New(l, nil) // nil for default options or &owbus.DefaultOpts
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	// Enumerate the devices on the wire.
	addrs, err := b.Search(false)
	if err != nil {
		log.Fatal(err)
	}
	for i, a := range addrs {
		fmt.Printf("%d: %#016x family %#02x\n", i, uint64(a), owbus.Family(a))
	}

	// Read the first DS18B20 found.
	i := b.FindByType(0x28)
	if i == owbus.NotFound {
		log.Fatal("no DS18B20 on the bus")
	}
	d, err := ds18b20.New(b, b.ID(i), 10)
	if err != nil {
		log.Fatal(err)
	}
	e := physic.Env{}
	if err := d.Sense(&e); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%8s\n", e.Temperature)
}

func ExampleBus_MatchROM() {
	l, err := owline.ByName("GPIO4")
	if err != nil {
		log.Fatal(err)
	}
	b, err := owbus.New(l, nil)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := b.Search(false); err != nil {
		log.Fatal(err)
	}

	// Start a temperature conversion on the device in registry slot 0 only.
	if !b.Reset() {
		log.Fatal("no device answered")
	}
	if err := b.MatchROM(0); err != nil {
		log.Fatal(err)
	}
	if err := b.WriteByte(0x44); err != nil {
		log.Fatal(err)
	}
}
