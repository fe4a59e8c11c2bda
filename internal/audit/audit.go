// Package audit records verification outcomes for operator review. Records
// are append-only history; live session state never touches storage.
package audit

import (
	"context"
	"time"

	"github.com/louisbranch/gatehouse/internal/platform/id"
)

// Outcome values for one finished onboarding attempt.
const (
	// OutcomeCompleted means the nickname was set and the role granted.
	OutcomeCompleted = "completed"
	// OutcomeExhausted means the member spent all secret attempts.
	OutcomeExhausted = "attempts-exhausted"
	// OutcomeDenied means a privileged mutation was refused.
	OutcomeDenied = "permission-denied"
	// OutcomeFailed means a platform call failed unexpectedly.
	OutcomeFailed = "transient-failure"
	// OutcomeCancelled means the session was dropped without a user-facing
	// failure, e.g. an administrator verified the member mid-challenge.
	OutcomeCancelled = "cancelled"
)

// Record stores one finished onboarding attempt.
type Record struct {
	ID        string
	SubjectID string
	Outcome   string
	Nickname  string
	Detail    string
	CreatedAt time.Time
}

// Store persists audit records.
type Store interface {
	PutRecord(ctx context.Context, record Record) error
	ListRecords(ctx context.Context, limit int) ([]Record, error)
}

// Recorder stamps and persists audit records. A nil Recorder or a Recorder
// without a store discards records, so callers never branch on configuration.
type Recorder struct {
	store       Store
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, clock: time.Now, idGenerator: id.NewID}
}

// WithClock overrides the time source. Test hook.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	if clock != nil {
		r.clock = clock
	}
	return r
}

// Record persists one outcome record, filling ID and CreatedAt when unset.
func (r *Recorder) Record(ctx context.Context, record Record) error {
	if r == nil || r.store == nil {
		return nil
	}
	if record.ID == "" {
		generated, err := r.idGenerator()
		if err != nil {
			return err
		}
		record.ID = generated
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.clock().UTC()
	}
	return r.store.PutRecord(ctx, record)
}
