// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transfer

import (
	"fmt"
	"time"
)

// Statistics tracks frames, replies and failures of a transfer
type Statistics struct {
	StartTime time.Time
	EndTime   time.Time

	// Counters
	FramesSent     uint64
	BytesSent      uint64
	PagesAcked     uint64
	Retries        uint64
	Timeouts       uint64 // short replies
	DecodeErrors   uint64
	WriteErrors    uint64
	BusyReplies    uint64
	StartErrors    uint64
	CRCErrors      uint64
	MissingFrames  uint64
	DeviceTimeouts uint64
	UnknownStatus  uint64
	PageMismatches uint64
}

// Elapsed returns the transfer duration, or the time since start while running
func (s *Statistics) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Throughput returns bytes written per second
func (s *Statistics) Throughput() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.BytesSent) / elapsed
}

// Failures returns the number of failed attempts of any kind
func (s *Statistics) Failures() uint64 {
	return s.Timeouts + s.DecodeErrors + s.WriteErrors + s.BusyReplies + s.StartErrors +
		s.CRCErrors + s.MissingFrames + s.DeviceTimeouts + s.UnknownStatus + s.PageMismatches
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	result := fmt.Sprintf("=== Transfer Statistics (%.1f seconds) ===\n", s.Elapsed().Seconds())
	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	result += fmt.Sprintf("Bytes Sent:      %8d (%.0f B/s)\n", s.BytesSent, s.Throughput())
	result += fmt.Sprintf("Pages Acked:     %8d\n", s.PagesAcked)
	result += fmt.Sprintf("Retries:         %8d\n", s.Retries)

	counters := []struct {
		label string
		value uint64
	}{
		{"Reply Timeouts:  ", s.Timeouts},
		{"Decode Errors:   ", s.DecodeErrors},
		{"Write Errors:    ", s.WriteErrors},
		{"Busy Replies:    ", s.BusyReplies},
		{"Start Errors:    ", s.StartErrors},
		{"CRC Errors:      ", s.CRCErrors},
		{"Missing Frames:  ", s.MissingFrames},
		{"Device Timeouts: ", s.DeviceTimeouts},
		{"Unknown Status:  ", s.UnknownStatus},
		{"Page Mismatches: ", s.PageMismatches},
	}
	for _, c := range counters {
		if c.value > 0 {
			result += fmt.Sprintf("%s%8d\n", c.label, c.value)
		}
	}
	return result
}
