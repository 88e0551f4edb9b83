// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// MQTT connection flag
	mqttURL string

	verbose int

	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "E-paper image transfer tool",
	Long: `Inkwell - A CLI tool for pushing two-plane images to an e-paper controller.

Sends BW and RED bitmap planes to a storage slot using the page transfer
protocol, emulates the controller for testing, and decodes sniffed traffic.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  MQTT:      --mqtt tcp://broker:1883/epd/panel1

For WebSocket authentication, the password is read from the INKWELL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&mqttURL, "mqtt", "", "MQTT broker URL, the path is the topic prefix")

	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := zerolog.InfoLevel
	switch {
	case verbose >= 2:
		level = zerolog.TraceLevel
	case verbose == 1:
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().
		Timestamp().
		Logger()
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
