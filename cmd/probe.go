// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

var (
	probeSlot    int
	probeTimeout time.Duration
	probeCount   int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check the link by sending Start frames",
	Long: `Send BW Start frames for a slot and wait for the Start reply.

This tests bidirectional communication without transferring an image. The
controller opens a transfer session for the slot and drops it again after
its idle timeout, so nothing is written to flash.

Exit status is non-zero when any probe fails or times out.`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().IntVar(&probeSlot, "slot", 0, "Storage slot (0-15)")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 2*time.Second, "Timeout for each probe")
	probeCmd.Flags().IntVar(&probeCount, "count", 3, "Number of probes to send")
	rootCmd.AddCommand(probeCmd)
}

type probeResult struct {
	reply *epdlink.StartReply
	err   error
}

func runProbe(cmd *cobra.Command, args []string) error {
	if !epdlink.ValidSlot(probeSlot) {
		return fmt.Errorf("slot out of range: %d", probeSlot)
	}

	conn, connInfo, err := OpenConnection(roleHost)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Inkwell - Link Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v per probe\n", probeTimeout)
	fmt.Printf("Count: %d probes\n\n", probeCount)

	// One reader for the whole run, replies are matched in order
	results := make(chan probeResult, 8)
	go func() {
		decoder := epdlink.NewReplyDecoder()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			packets, _ := decoder.Decode(buf[:n])
			for _, packet := range packets {
				if packet.StartReply != nil {
					results <- probeResult{reply: packet.StartReply}
				}
			}
			if err != nil {
				results <- probeResult{err: err}
				return
			}
		}
	}()

	frame := epdlink.EncodeStartFrame(epdlink.ColorBW, uint8(probeSlot))
	okCount := 0
probes:
	for i := 1; i <= probeCount; i++ {
		fmt.Printf("Probe %d/%d: ", i, probeCount)

		startTime := time.Now()
		if _, err := conn.Write(frame); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			continue
		}

		select {
		case res := <-results:
			if res.err != nil {
				fmt.Printf("READ FAILED: %v\n", res.err)
				break probes
			}
			fmt.Printf("%s, status=%s, rtt=%v\n",
				epdlink.FormatCommand(epdlink.CmdStart), res.reply.Status, time.Since(startTime).Round(time.Millisecond))
			if res.reply.Status == epdlink.StartOK {
				okCount++
			}

		case <-time.After(probeTimeout):
			fmt.Printf("TIMEOUT (no reply in %v)\n", probeTimeout)
		}

		if i < probeCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Probe statistics ---\n")
	fmt.Printf("%d probes sent, %d accepted, %.0f%% loss\n",
		probeCount, okCount, float64(probeCount-okCount)/float64(probeCount)*100)

	if okCount < probeCount {
		return fmt.Errorf("%d of %d probes failed", probeCount-okCount, probeCount)
	}
	return nil
}
