// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Inkwell - E-paper image transfer tool
//
// Sends two-plane images to an e-paper controller over serial, WebSocket
// or MQTT links.

package main

import (
	"os"

	"github.com/Thermoquad/inkwell/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
