// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/inkwell/pkg/bitmap"
	"github.com/Thermoquad/inkwell/pkg/transfer"
)

var (
	bundleSource  planeSource
	bundleSlot    int
	bundleOutput  string
	bundleName    string
	bundlePreview string
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Build a CBOR image bundle",
	Long: `Convert an image, raw planes or a test pattern into a bundle that
send --bundle can transfer later without reconverting.

Examples:
  inkwell bundle --image badge.png --slot 2 -o badge.cbor --preview badge-epd.png
  inkwell bundle --pattern test -o test.cbor`,
	Args: cobra.NoArgs,
	RunE: runBundle,
}

func init() {
	bundleCmd.Flags().IntVar(&bundleSlot, "slot", 0, "Storage slot (0-15)")
	bundleCmd.Flags().StringVarP(&bundleOutput, "output", "o", "", "Bundle file to write")
	bundleCmd.Flags().StringVar(&bundleName, "name", "", "Bundle name (default the source)")
	bundleCmd.Flags().StringVar(&bundlePreview, "preview", "", "Also render the planes to this image file")
	bundleCmd.MarkFlagRequired("output")
	bundleSource.register(bundleCmd)
	rootCmd.AddCommand(bundleCmd)
}

func runBundle(cmd *cobra.Command, args []string) error {
	bw, red, desc, err := bundleSource.load()
	if err != nil {
		return err
	}
	if err := transfer.Validate(bw, red, bundleSlot); err != nil {
		return err
	}

	name := bundleName
	if name == "" {
		name = desc
	}

	b := &bitmap.Bundle{
		Slot:    bundleSlot,
		BW:      bw,
		RED:     red,
		Name:    name,
		Created: time.Now().Unix(),
	}
	if err := bitmap.SaveBundle(bundleOutput, b); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	fmt.Printf("Wrote %s (slot %d, %s)\n", bundleOutput, b.Slot, b.Name)

	if bundlePreview != "" {
		if err := bitmap.SaveImageFile(bundlePreview, bw, red); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
		fmt.Printf("Wrote %s\n", bundlePreview)
	}
	return nil
}
