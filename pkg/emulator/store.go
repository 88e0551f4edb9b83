// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emulator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

var (
	// ErrNotFound is returned when a slot holds no image
	ErrNotFound = errors.New("slot is empty")
	// ErrCorrupt is returned when stored pages fail their CRC or are incomplete
	ErrCorrupt = errors.New("stored image is corrupt")
)

// Image is a complete two-plane image committed to a slot
type Image struct {
	Slot     int
	BW       []byte
	RED      []byte
	StoredAt time.Time
}

// Plane returns the plane data for c
func (img *Image) Plane(c epdlink.Color) []byte {
	if c == epdlink.ColorRED {
		return img.RED
	}
	return img.BW
}

func (img *Image) validate() error {
	if !epdlink.ValidSlot(img.Slot) {
		return fmt.Errorf("invalid slot %d", img.Slot)
	}
	if len(img.BW) != epdlink.PlaneSize || len(img.RED) != epdlink.PlaneSize {
		return fmt.Errorf("%w: bw=%d red=%d", epdlink.ErrPlaneSize, len(img.BW), len(img.RED))
	}
	return nil
}

// Store keeps committed images, one per slot
type Store interface {
	Save(ctx context.Context, img *Image) error
	Load(ctx context.Context, slot int) (*Image, error)
	Slots(ctx context.Context) ([]int, error)
}

// MemoryStore is a Store held in memory
type MemoryStore struct {
	mu     sync.RWMutex
	images map[int]*Image
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[int]*Image)}
}

func (m *MemoryStore) Save(_ context.Context, img *Image) error {
	if err := img.validate(); err != nil {
		return err
	}

	stored := &Image{
		Slot:     img.Slot,
		BW:       append([]byte(nil), img.BW...),
		RED:      append([]byte(nil), img.RED...),
		StoredAt: img.StoredAt,
	}
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[img.Slot] = stored
	return nil
}

func (m *MemoryStore) Load(_ context.Context, slot int) (*Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	img, ok := m.images[slot]
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrNotFound)
	}
	cp := *img
	return &cp, nil
}

func (m *MemoryStore) Slots(_ context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slots := make([]int, 0, len(m.images))
	for slot := range m.images {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots, nil
}
