// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import (
	"fmt"
	"strings"
)

// FormatPacket formats a decoded packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s %s (0x%02X) len=%d\n",
		timestamp, p.Direction, FormatCommand(p.Command()), p.Command(), len(p.Raw))

	switch {
	case p.Frame != nil:
		result += FormatFrame(p.Frame)
	case p.StartReply != nil:
		result += fmt.Sprintf("  %s, Status: %s\n", formatSlotColor(p.StartReply.SlotColor), p.StartReply.Status)
	case p.DataReply != nil:
		result += fmt.Sprintf("  %s, Page: %d, Status: %s\n",
			formatSlotColor(p.DataReply.SlotColor), p.DataReply.PageSeq, p.DataReply.Status)
	case p.EndReply != nil:
		result += fmt.Sprintf("  %s\n", formatSlotColor(p.EndReply.SlotColor))
	}
	return result
}

// FormatCommand returns the human-readable name of a command byte
func FormatCommand(cmd uint8) string {
	switch cmd {
	case CmdStart:
		return "IMAGE_TRANSFER"
	case CmdData:
		return "IMAGE_DATA"
	case CmdEnd:
		return "TRANSFER_END"
	default:
		return "UNKNOWN"
	}
}

// FormatFrame formats the fields of a host frame
func FormatFrame(f *Frame) string {
	switch f.Command {
	case CmdData:
		return fmt.Sprintf("  %s, Page: %d/%d, Frame: %d/%d\n%s",
			formatSlotColor(f.SlotColor), f.PageSeq, PagesPerPlane, f.FrameSeq, FramesPerPage,
			FormatHex(f.Payload))
	case CmdEnd:
		return fmt.Sprintf("  Slot: %d\n", f.Slot())
	default:
		return fmt.Sprintf("  %s\n", formatSlotColor(f.SlotColor))
	}
}

// FormatHex renders a hex dump, 16 bytes per line
func FormatHex(data []byte) string {
	var sb strings.Builder
	sb.WriteString("  Payload: ")
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n           ")
		}
		fmt.Fprintf(&sb, "%02X ", b)
	}
	sb.WriteString("\n")
	return sb.String()
}

func formatSlotColor(b uint8) string {
	c, slot := SplitSlotColor(b)
	return fmt.Sprintf("Slot: %d, Plane: %s", slot, c)
}
