// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emulator

import (
	"context"
	"database/sql"
	"fmt"
	stdlog "log"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

// flashPage mirrors one 248-byte page of device flash
type flashPage struct {
	ID        uint      `gorm:"primarykey"`
	Slot      int       `gorm:"not null;uniqueIndex:idx_flash_page"`
	Magic     uint8     `gorm:"not null;uniqueIndex:idx_flash_page"`
	Seq       uint8     `gorm:"not null;uniqueIndex:idx_flash_page"`
	DataSize  int       `gorm:"not null"`
	Data      []byte    `gorm:"not null"`
	CRC       uint32    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for GORM
func (flashPage) TableName() string {
	return "flash_pages"
}

// SQLStore is a Store backed by SQLite through GORM, one row per page
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLStore opens or creates the database at path with the pure Go
// SQLite driver
func OpenSQLStore(path string, log zerolog.Logger) (*SQLStore, error) {
	gormLog := logger.New(
		stdlog.New(log, "", 0),
		logger.Config{
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := configureSQLite(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	if err := db.AutoMigrate(&flashPage{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Debug().Str("path", path).Msg("flash store opened")
	return &SQLStore{db: db}, nil
}

func configureSQLite(sqlDB *sql.DB) error {
	pragmaSettings := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=memory",
	}

	for _, pragma := range pragmaSettings {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Save replaces the pages of img.Slot in one transaction
func (s *SQLStore) Save(ctx context.Context, img *Image) error {
	if err := img.validate(); err != nil {
		return err
	}

	stored := img.StoredAt
	if stored.IsZero() {
		stored = time.Now()
	}

	rows := make([]flashPage, 0, 2*epdlink.PagesPerPlane)
	for _, color := range epdlink.Colors {
		pages, err := epdlink.ChunkPlane(img.Plane(color))
		if err != nil {
			return err
		}
		for i := range pages {
			p := &pages[i]
			rows = append(rows, flashPage{
				Slot:      img.Slot,
				Magic:     color.FlashMagic(),
				Seq:       p.Seq,
				DataSize:  p.DataSize,
				Data:      append([]byte(nil), p.Data[:]...),
				CRC:       p.CRC(),
				CreatedAt: stored,
			})
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("slot = ?", img.Slot).Delete(&flashPage{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, epdlink.PagesPerPlane).Error
	})
}

// Load rebuilds the image of slot, verifying every page CRC
func (s *SQLStore) Load(ctx context.Context, slot int) (*Image, error) {
	var rows []flashPage
	err := s.db.WithContext(ctx).
		Where("slot = ?", slot).
		Order("magic, seq").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("slot %d: %w", slot, ErrNotFound)
	}

	planes := map[uint8][]epdlink.Page{}
	for _, row := range rows {
		if row.DataSize > epdlink.PageSize || len(row.Data) < row.DataSize {
			return nil, fmt.Errorf("slot %d page %d: %w: bad size %d", slot, row.Seq, ErrCorrupt, row.DataSize)
		}
		p := epdlink.Page{Seq: row.Seq, DataSize: row.DataSize}
		copy(p.Data[:], row.Data)
		if p.CRC() != row.CRC {
			return nil, fmt.Errorf("slot %d page %d: %w: CRC mismatch", slot, row.Seq, ErrCorrupt)
		}
		planes[row.Magic] = append(planes[row.Magic], p)
	}

	img := &Image{Slot: slot, StoredAt: rows[0].CreatedAt}
	for _, color := range epdlink.Colors {
		pages := planes[color.FlashMagic()]
		if len(pages) != epdlink.PagesPerPlane {
			return nil, fmt.Errorf("slot %d %s: %w: %d pages", slot, color, ErrCorrupt, len(pages))
		}
		if color == epdlink.ColorRED {
			img.RED = epdlink.JoinPages(pages)
		} else {
			img.BW = epdlink.JoinPages(pages)
		}
	}
	return img, nil
}

// Slots returns the slots holding pages, in ascending order
func (s *SQLStore) Slots(ctx context.Context) ([]int, error) {
	var slots []int
	err := s.db.WithContext(ctx).
		Model(&flashPage{}).
		Distinct("slot").
		Order("slot").
		Pluck("slot", &slots).Error
	return slots, err
}

// Delete removes the image of slot
func (s *SQLStore) Delete(ctx context.Context, slot int) error {
	return s.db.WithContext(ctx).Where("slot = ?", slot).Delete(&flashPage{}).Error
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
