package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/haloverify/verifysvc/internal/domain"
)

// AttemptCompletion is the record enqueued after every sendCode/checkCode
// call, consumed by the out-of-scope analytics pipeline (SPEC_FULL.md §3).
type AttemptCompletion struct {
	SessionID             uuid.UUID
	PhoneNumberCountryCode int
	AdapterName           string
	Transport             domain.MessageTransport
	Outcome               string
	OccurredAt            time.Time
}

// AttemptSink is the durable enqueue side of the attempt-completion
// pipeline; the analytics consumer that drains it is out of scope.
type AttemptSink interface {
	Enqueue(ctx context.Context, rec AttemptCompletion) error
}

// attemptCompletionRow is the GORM row backing a durable AttemptSink.
type attemptCompletionRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID   string `gorm:"index;size:36"`
	CountryCode int
	AdapterName string
	Transport   string
	Outcome     string
	OccurredAt  time.Time
}

func (attemptCompletionRow) TableName() string { return "attempt_completions" }

// GormAttemptSink drains attempt-completion records into a relational
// table. The same implementation backs both the development profile
// (SQLite) and the production profile (PostgreSQL); only the gorm.Dialector
// passed to the constructor differs.
type GormAttemptSink struct {
	db *gorm.DB
}

// NewGormAttemptSink opens db (already connected via sqlite.Open or
// postgres.Open) and ensures the backing table exists.
func NewGormAttemptSink(db *gorm.DB) (*GormAttemptSink, error) {
	if err := db.AutoMigrate(&attemptCompletionRow{}); err != nil {
		return nil, err
	}
	return &GormAttemptSink{db: db}, nil
}

func (s *GormAttemptSink) Enqueue(ctx context.Context, rec AttemptCompletion) error {
	row := attemptCompletionRow{
		SessionID:   rec.SessionID.String(),
		CountryCode: rec.PhoneNumberCountryCode,
		AdapterName: rec.AdapterName,
		Transport:   string(rec.Transport),
		Outcome:     rec.Outcome,
		OccurredAt:  rec.OccurredAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// NoopAttemptSink discards every record; useful for tests that exercise the
// orchestrator without caring about the completion pipeline.
type NoopAttemptSink struct{}

func (NoopAttemptSink) Enqueue(ctx context.Context, rec AttemptCompletion) error { return nil }
