package repository

import (
	"context"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
)

// RecordStore is the Prediction Record Store: one row per calendar date,
// uniqueness on date enforced by the store itself. Every mutation is a
// single-statement, date-keyed update so concurrently triggered jobs
// cannot lose each other's writes.
type RecordStore interface {
	// Create inserts a new record. A pre-existing row for the date fails
	// with models.ErrConflict; it never overwrites.
	Create(ctx context.Context, rec *models.PredictionRecord) error

	// Get returns the record for date or models.ErrNotFound.
	Get(ctx context.Context, date models.Date) (*models.PredictionRecord, error)

	// ClaimBand sets band, context and lock on an existing row, but only
	// when the row is unlocked and has no band yet. Anything else is
	// models.ErrConflict (already claimed) or models.ErrLocked.
	ClaimBand(ctx context.Context, date models.Date, claim *models.BandClaim) error

	// SetCheckpoint writes one checkpoint slot. Without force an already
	// populated slot fails with models.ErrConflict; force is the
	// administrative reconciliation path and overwrites, recording the new
	// provenance.
	SetCheckpoint(ctx context.Context, date models.Date, cp models.Checkpoint, price float64, prov models.Provenance, force bool) error

	// SetScore writes the derived fields. Band and bias are untouched.
	SetScore(ctx context.Context, date models.Date, realizedLow, realizedHigh float64, rangeHit bool, absErrToClose float64, at time.Time) error

	// RecentScored returns up to limit locked-and-scored records, most
	// recent date first.
	RecentScored(ctx context.Context, limit int) ([]*models.PredictionRecord, error)

	Health(ctx context.Context) error
	Close() error
}

// AuditTrail receives one CaptureEvent per capture attempt. Sinks must
// never block a capture: errors are reported to the caller for logging and
// counting only.
type AuditTrail interface {
	Record(ctx context.Context, ev *models.CaptureEvent) error
	Close() error
}

// Metrics is the observability port; the prometheus recorder implements
// it.
type Metrics interface {
	RecordCapture(checkpoint string, provenance string, outcome string)
	RecordJobRun(job string, outcome string)
	RecordJobDuration(job string, seconds float64)
	RecordError(kind string)
	RecordLastPrice(price float64)
}
