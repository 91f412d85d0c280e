// Package usage maintains the daily per-model call counters backing the
// orchestrator's quota checks.
package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

const retentionDays = 7

// counterModel maps to the system_usage table. One row per (UTC day, model),
// enforced by the composite primary key.
type counterModel struct {
	Date  string `gorm:"primaryKey;size:10"`
	Model string `gorm:"primaryKey"`
	Count int
}

func (counterModel) TableName() string {
	return "system_usage"
}

// Ledger is the atomic daily counter store. Counters are only ever compared
// within the same UTC day; old rows are purged opportunistically.
type Ledger struct {
	db *gorm.DB

	mu        sync.Mutex
	purgedDay string
	nowFunc   func() time.Time
}

// NewLedger returns a Ledger backed by the given database, creating the
// counter table when missing.
func NewLedger(db *gorm.DB) (*Ledger, error) {
	if err := db.AutoMigrate(&counterModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate usage schema: %w", err)
	}
	return &Ledger{db: db, nowFunc: time.Now}, nil
}

// DayKey formats a timestamp as the UTC calendar-day counter key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Increment atomically bumps today's counter for the model, creating the row
// on first use.
func (l *Ledger) Increment(ctx context.Context, model string) error {
	today := DayKey(l.nowFunc())
	err := l.db.WithContext(ctx).Exec(
		`INSERT INTO system_usage (date, model, count) VALUES (?, ?, 1)
		 ON CONFLICT (date, model) DO UPDATE SET count = system_usage.count + 1`,
		today, model,
	).Error
	if err != nil {
		return fmt.Errorf("failed to increment usage counter: %w", err)
	}

	l.maybePurge(ctx, today)
	return nil
}

// Count returns today's call count for the model; zero when the row does not
// exist yet.
func (l *Ledger) Count(ctx context.Context, model string) (int, error) {
	today := DayKey(l.nowFunc())
	var record counterModel
	err := l.db.WithContext(ctx).
		Where("date = ? AND model = ?", today, model).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage counter: %w", err)
	}
	return record.Count, nil
}

// maybePurge deletes rows older than the retention window, at most once per
// day per process. Counters are never read cross-day, so the purge cannot
// affect quota checks.
func (l *Ledger) maybePurge(ctx context.Context, today string) {
	l.mu.Lock()
	if l.purgedDay == today {
		l.mu.Unlock()
		return
	}
	l.purgedDay = today
	l.mu.Unlock()

	cutoff := DayKey(l.nowFunc().AddDate(0, 0, -retentionDays))
	l.db.WithContext(ctx).Where("date < ?", cutoff).Delete(&counterModel{})
}
