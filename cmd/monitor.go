// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

var (
	monitorReplies bool
	monitorHex     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display sniffed transfer traffic in human-readable format",
	Long: `Continuously decode and display transfer frames as they arrive.

Connect to a tap on the host transmit line to see frames, or on the
controller transmit line with --replies to see replies. Over MQTT the
monitor subscribes to the matching topic.

Supports serial, WebSocket and MQTT connections.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorReplies, "replies", false, "Decode controller replies instead of host frames")
	monitorCmd.Flags().BoolVar(&monitorHex, "hex", false, "Print the raw bytes of each packet")
	rootCmd.AddCommand(monitorCmd)
}

func newMonitorDecoder() *epdlink.Decoder {
	if monitorReplies {
		return epdlink.NewReplyDecoder()
	}
	return epdlink.NewDecoder()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	role := roleDevice // a device-side subscriber sees host frames
	if monitorReplies {
		role = roleHost
	}

	conn, connInfo, err := OpenConnection(role)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Inkwell - Transfer Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return monitor(conn, newMonitorDecoder(), cmd.OutOrStdout())
}

// monitor prints every packet read from r until the connection closes
func monitor(r io.Reader, decoder *epdlink.Decoder, out io.Writer) error {
	buf := make([]byte, 128)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			// A rescan after a bad frame can queue more than one result
			for packet, derr := decoder.DecodeByte(b); packet != nil || derr != nil; packet, derr = decoder.Next() {
				if derr != nil {
					fmt.Fprintf(out, "[ERROR] %v\n", derr)
					continue
				}
				fmt.Fprint(out, epdlink.FormatPacket(packet))
				if monitorHex {
					fmt.Fprint(out, epdlink.FormatHex(packet.Raw))
				}
			}
		}

		if err != nil {
			// A closed link will not come back, exit gracefully
			if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
				logger.Info().Msg("connection closed")
				return nil
			}
			logger.Warn().Err(err).Msg("read error")
			return err
		}
	}
}
