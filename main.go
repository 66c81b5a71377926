// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// emcored - emCore runtime host
//
// Hosts the scheduler/broker/watchdog runtime for a fixed-budget config,
// and doubles as a packet pipeline analyzer over serial or WebSocket byte
// sources.

package main

import (
	"log"

	"github.com/Thermoquad/emcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
