// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/inkwell/pkg/bitmap"
	"github.com/Thermoquad/inkwell/pkg/transfer"
)

var (
	sendSlot    int
	sendRetries int
	sendTimeout time.Duration
	sendTUI     bool

	source planeSource
)

// planeSource holds the flags that select the image planes
type planeSource struct {
	bwFile    string
	redFile   string
	imageFile string
	pattern   string
	bundle    string
	dither    string
	threshold uint8
}

func (s *planeSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.bwFile, "bw", "", "Raw BW plane file (15000 bytes, bit set = white)")
	cmd.Flags().StringVar(&s.redFile, "red", "", "Raw RED plane file (15000 bytes, bit set = red)")
	cmd.Flags().StringVar(&s.imageFile, "image", "", "Image file to convert (PNG, JPEG, GIF, BMP, TIFF)")
	cmd.Flags().StringVar(&s.pattern, "pattern", "", "Test pattern: "+strings.Join(bitmap.PatternNames(), ", "))
	cmd.Flags().StringVar(&s.dither, "dither", "none", "Dithering for --image: "+strings.Join(bitmap.DitherNames, ", "))
	cmd.Flags().Uint8Var(&s.threshold, "threshold", 128, "Gray threshold for --image")
	cmd.MarkFlagsMutuallyExclusive("image", "pattern", "bw")
	cmd.MarkFlagsMutuallyExclusive("image", "pattern", "red")
	cmd.MarkFlagsRequiredTogether("bw", "red")
}

// load returns the selected planes and a short description of their origin
func (s *planeSource) load() (bw, red []byte, desc string, err error) {
	switch {
	case s.imageFile != "":
		bw, red, err = bitmap.LoadImageFile(s.imageFile, bitmap.Options{Dither: s.dither, Threshold: s.threshold})
		return bw, red, "image " + s.imageFile, err

	case s.pattern != "":
		bw, red, err = bitmap.Pattern(s.pattern)
		return bw, red, "pattern " + s.pattern, err

	case s.bwFile != "":
		if bw, err = bitmap.LoadRaw(s.bwFile); err != nil {
			return nil, nil, "", err
		}
		if red, err = bitmap.LoadRaw(s.redFile); err != nil {
			return nil, nil, "", err
		}
		return bw, red, fmt.Sprintf("raw %s + %s", s.bwFile, s.redFile), nil
	}

	return nil, nil, "", fmt.Errorf("one of --image, --pattern or --bw/--red must be specified")
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an image to a display slot",
	Long: `Transfer a two-plane image to a storage slot on the controller.

The BW plane is sent first, then the RED plane, then the transfer is
committed. Each page is retried up to --retries times before the transfer
is abandoned. A previously built bundle can be sent with --bundle, its slot
is used unless --slot is given.

Examples:
  inkwell send -p /dev/ttyUSB0 --slot 3 --pattern test
  inkwell send -u ws://bridge/epd --image photo.png --dither floyd --tui`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().IntVar(&sendSlot, "slot", 0, "Storage slot (0-15)")
	sendCmd.Flags().StringVar(&source.bundle, "bundle", "", "CBOR bundle file built with the bundle command")
	sendCmd.Flags().IntVar(&sendRetries, "retries", transfer.MaxRetries, "Attempts per Start, page and End")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", transfer.DefaultReplyTimeout, "Reply timeout per frame")
	sendCmd.Flags().BoolVar(&sendTUI, "tui", false, "Show progress bars")
	source.register(sendCmd)
	sendCmd.MarkFlagsMutuallyExclusive("bundle", "image", "pattern", "bw")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	var (
		bw, red []byte
		desc    string
		err     error
	)
	slot := sendSlot
	if source.bundle != "" {
		b, err := bitmap.LoadBundle(source.bundle)
		if err != nil {
			return err
		}
		bw, red, desc = b.BW, b.RED, "bundle "+source.bundle
		if !cmd.Flags().Changed("slot") {
			slot = b.Slot
		}
	} else if bw, red, desc, err = source.load(); err != nil {
		return err
	}

	// Reject bad input before touching the link
	if err := transfer.Validate(bw, red, slot); err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(roleHost)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []transfer.Option{
		transfer.WithLogger(logger),
		transfer.WithMaxRetries(sendRetries),
		transfer.WithReplyTimeout(sendTimeout),
	}

	if sendTUI {
		return runSendTUI(ctx, conn, connInfo, desc, bw, red, slot, opts)
	}

	fmt.Printf("Inkwell - Image Transfer\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Source: %s, slot %d\n\n", desc, slot)

	opts = append(opts, transfer.WithListener(transfer.ListenerFuncs{
		Progress: func(page, total int, plane string) {
			fmt.Printf("\r%-3s page %2d/%d", plane, page, total)
			if page == total {
				fmt.Println()
			}
		},
		Error: func(msg string) {
			fmt.Printf("\nTransfer failed: %s\n", msg)
		},
		Complete: func() {
			fmt.Printf("Transfer complete\n")
		},
	}))

	sender := transfer.NewSender(conn, opts...)
	defer sender.Close()

	err = sender.SendImageContext(ctx, bw, red, slot)
	stats := sender.Stats()
	fmt.Print("\n" + stats.String())
	return err
}
