package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store archives resolution output: the finalized outcome per event and
// its settlement records. The archive is read by operators and by the
// exactly-once guard after a restart; it is not on the matching hot path.
type Store struct {
	db *gorm.DB
}

type ResolvedEvent struct {
	EventID    uint64 `gorm:"primaryKey"`
	Outcome    string
	ResolvedAt int64
	Records    int
}

type SettlementRow struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	EventID uint64 `gorm:"index"`
	TradeID uint64
	Account uint64
	Amount  string // decimal string, exact
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open settlement archive: %w", err)
	}

	if err := db.AutoMigrate(&ResolvedEvent{}, &SettlementRow{}); err != nil {
		return nil, fmt.Errorf("migrate settlement archive: %w", err)
	}
	return &Store{db: db}, nil
}

// ArchiveResolution writes the event outcome and its settlement rows in
// one transaction.
func (s *Store) ArchiveResolution(ev ResolvedEvent, rows []SettlementRow) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// Resolved reports whether an event already has an archived resolution.
func (s *Store) Resolved(eventID uint64) (bool, error) {
	var ev ResolvedEvent
	err := s.db.First(&ev, "event_id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Settlements returns the archived rows for an event, in trade order.
func (s *Store) Settlements(eventID uint64) ([]SettlementRow, error) {
	var rows []SettlementRow
	err := s.db.Where("event_id = ?", eventID).Order("trade_id asc").Find(&rows).Error
	return rows, err
}
