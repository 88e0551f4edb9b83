// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/inkwell/pkg/bitmap"
	"github.com/Thermoquad/inkwell/pkg/emulator"
)

var (
	emulateStore       string
	emulateIdleTimeout time.Duration
	emulateFaults      emulator.Faults
	emulateDump        string
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Emulate the display controller",
	Long: `Answer image transfers on the connection the way the display controller does.

Completed images are kept in memory, or in a SQLite flash image with --store.
Faults can be injected to exercise the sender's retry handling.

Examples:
  inkwell emulate -p /dev/ttyUSB1 --store flash.db
  inkwell emulate --mqtt tcp://localhost:1883/epd --busy-starts 1 --corrupt-pages 2`,
	RunE: runEmulate,
}

var emulateSlotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "List the images held in an emulator store",
	RunE:  runEmulateSlots,
}

func init() {
	emulateCmd.PersistentFlags().StringVar(&emulateStore, "store", "", "SQLite flash image path (default in-memory)")
	emulateCmd.Flags().DurationVar(&emulateIdleTimeout, "idle-timeout", emulator.DefaultIdleTimeout, "Reset a stalled transfer after this long")
	emulateCmd.Flags().IntVar(&emulateFaults.BusyStarts, "busy-starts", 0, "Answer this many Start frames with busy")
	emulateCmd.Flags().IntVar(&emulateFaults.CorruptPages, "corrupt-pages", 0, "Answer this many pages with a CRC error")
	emulateCmd.Flags().IntVar(&emulateFaults.DropReplies, "drop-replies", 0, "Swallow this many replies")
	emulateCmd.Flags().StringVar(&emulateDump, "dump", "", "Render each received image to this directory as PNG")

	emulateCmd.AddCommand(emulateSlotsCmd)
	rootCmd.AddCommand(emulateCmd)
}

func openStore() (emulator.Store, func(), error) {
	if emulateStore == "" {
		return emulator.NewMemoryStore(), func() {}, nil
	}

	store, err := emulator.OpenSQLStore(emulateStore, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}, nil
}

func runEmulate(cmd *cobra.Command, args []string) error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	conn, connInfo, err := OpenConnection(roleDevice)
	if err != nil {
		return err
	}
	defer conn.Close()

	device := emulator.NewDevice(emulator.Config{
		Store:       &dumpStore{Store: store, dir: emulateDump},
		Faults:      emulateFaults,
		IdleTimeout: emulateIdleTimeout,
		Logger:      logger,
	})

	fmt.Printf("Inkwell - Controller Emulator\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = device.Serve(ctx, conn)
	stats := device.Stats()
	fmt.Printf("\nFrames: %d, Replies: %d, Pages: %d, Images: %d, Rejected: %d, Dropped: %d, Expired: %d\n",
		stats.Frames, stats.Replies, stats.PagesStored, stats.Images, stats.Rejected, stats.Dropped, stats.Expired)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runEmulateSlots(cmd *cobra.Command, args []string) error {
	if emulateStore == "" {
		return fmt.Errorf("--store is required")
	}

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	slots, err := store.Slots(ctx)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		fmt.Println("No images stored")
		return nil
	}

	for _, slot := range slots {
		img, err := store.Load(ctx, slot)
		if err != nil {
			fmt.Printf("Slot %2d: %v\n", slot, err)
			continue
		}
		fmt.Printf("Slot %2d: stored %s\n", slot, img.StoredAt.Format(time.DateTime))
	}
	return nil
}

// dumpStore renders every saved image to a PNG next to storing it
type dumpStore struct {
	emulator.Store
	dir string
}

func (d *dumpStore) Save(ctx context.Context, img *emulator.Image) error {
	if err := d.Store.Save(ctx, img); err != nil {
		return err
	}
	if d.dir == "" {
		return nil
	}

	path := filepath.Join(d.dir, fmt.Sprintf("slot%02d.png", img.Slot))
	if err := bitmap.SaveImageFile(path, img.BW, img.RED); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to render image")
		return nil
	}
	logger.Info().Int("slot", img.Slot).Str("path", path).Msg("image rendered")
	return nil
}
