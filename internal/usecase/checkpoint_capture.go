package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	dservice "github.com/carmandale/SPY-tracker-sub000/internal/domain/service"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// Sanity bounds for a captured price relative to the previous close. A
// quote outside this band is a data fault, not a market move.
const (
	sanityLowFactor  = 0.5
	sanityHighFactor = 1.5
)

// CheckpointCapture records one reference price per checkpoint. The
// official recorded price is preferred; when the provider has none yet,
// the live quote is captured instead and tagged liveFallback so the two
// are never conflated. No price at all means the slot stays empty.
type CheckpointCapture struct {
	store   drepo.RecordStore
	market  dservice.MarketData
	audit   drepo.AuditTrail
	metrics drepo.Metrics
	log     *logger.Logger
}

func NewCheckpointCapture(
	store drepo.RecordStore,
	market dservice.MarketData,
	audit drepo.AuditTrail,
	metrics drepo.Metrics,
	log *logger.Logger,
) *CheckpointCapture {
	return &CheckpointCapture{
		store:   store,
		market:  market,
		audit:   audit,
		metrics: metrics,
		log:     log.With("capture"),
	}
}

// Run captures the checkpoint price for date. force re-captures an
// already populated slot; it exists for administrative reconciliation
// once the official print becomes available.
func (u *CheckpointCapture) Run(ctx context.Context, date models.Date, cp models.Checkpoint, force bool) (*models.CaptureResult, error) {
	if err := u.ensureRecord(ctx, date); err != nil {
		return nil, err
	}

	price, prov, err := u.fetchPrice(ctx, date, cp)
	if err != nil {
		res := u.finish(ctx, date, cp, &models.CaptureEvent{
			Date:       date,
			Checkpoint: cp,
			Outcome:    models.CaptureSkipped,
			Reason:     err.Error(),
			Forced:     force,
			CapturedAt: time.Now().UTC(),
		})
		return res, nil
	}

	if reason, ok := u.sane(ctx, price); !ok {
		u.metrics.RecordError("capture_sanity")
		res := u.finish(ctx, date, cp, &models.CaptureEvent{
			Date:       date,
			Checkpoint: cp,
			Price:      price,
			Provenance: prov,
			Outcome:    models.CaptureRejected,
			Reason:     reason,
			Forced:     force,
			CapturedAt: time.Now().UTC(),
		})
		return res, nil
	}

	if err := u.store.SetCheckpoint(ctx, date, cp, price, prov, force); err != nil {
		if errors.Is(err, models.ErrConflict) {
			res := u.finish(ctx, date, cp, &models.CaptureEvent{
				Date:       date,
				Checkpoint: cp,
				Price:      price,
				Provenance: prov,
				Outcome:    models.CaptureSkipped,
				Reason:     "slot already captured",
				Forced:     force,
				CapturedAt: time.Now().UTC(),
			})
			return res, nil
		}
		return nil, fmt.Errorf("capture %s %s: %w", date, cp, err)
	}

	u.metrics.RecordLastPrice(price)
	res := u.finish(ctx, date, cp, &models.CaptureEvent{
		Date:       date,
		Checkpoint: cp,
		Price:      price,
		Provenance: prov,
		Outcome:    models.CaptureStored,
		Forced:     force,
		CapturedAt: time.Now().UTC(),
	})
	return res, nil
}

// fetchPrice tries the official print first, then the live quote.
func (u *CheckpointCapture) fetchPrice(ctx context.Context, date models.Date, cp models.Checkpoint) (float64, models.Provenance, error) {
	price, err := u.market.OfficialCheckpointPrice(ctx, date, cp)
	if err == nil && price > 0 {
		return price, models.ProvenanceOfficial, nil
	}
	if err != nil {
		u.log.Warn("official price unavailable",
			logger.String("date", date.String()),
			logger.String("checkpoint", string(cp)),
			logger.Error(err))
	}

	live, liveErr := u.market.LivePrice(ctx)
	if liveErr == nil && live > 0 {
		return live, models.ProvenanceLiveFallback, nil
	}

	u.metrics.RecordError("capture_no_price")
	return 0, "", fmt.Errorf("no price available: official: %v, live: %v", err, liveErr)
}

// sane rejects prices that cannot plausibly belong to the tracked
// instrument. With no history to compare against, only positivity is
// enforced.
func (u *CheckpointCapture) sane(ctx context.Context, price float64) (string, bool) {
	if price <= 0 {
		return fmt.Sprintf("non-positive price %.4f", price), false
	}

	bars, err := u.market.RecentHistory(ctx, 1)
	if err != nil || len(bars) == 0 {
		return "", true
	}
	lastClose := bars[len(bars)-1].Close
	if lastClose <= 0 {
		return "", true
	}
	if price < lastClose*sanityLowFactor || price > lastClose*sanityHighFactor {
		return fmt.Sprintf("price %.2f outside sanity band of last close %.2f", price, lastClose), false
	}
	return "", true
}

// finish emits the audit event and metrics, and converts the event into
// the caller-facing result. Audit failures are logged and counted, never
// propagated: the capture itself already happened.
func (u *CheckpointCapture) finish(ctx context.Context, date models.Date, cp models.Checkpoint, ev *models.CaptureEvent) *models.CaptureResult {
	if err := u.audit.Record(ctx, ev); err != nil {
		u.metrics.RecordError("audit_record")
		u.log.Error("audit record failed",
			logger.String("date", date.String()),
			logger.String("checkpoint", string(cp)),
			logger.Error(err))
	}
	u.metrics.RecordCapture(string(cp), string(ev.Provenance), string(ev.Outcome))

	if ev.Outcome != models.CaptureStored {
		u.log.Warn("capture not stored",
			logger.String("date", date.String()),
			logger.String("checkpoint", string(cp)),
			logger.String("outcome", string(ev.Outcome)),
			logger.String("reason", ev.Reason))
	} else {
		u.log.Info("captured",
			logger.String("date", date.String()),
			logger.String("checkpoint", string(cp)),
			logger.Float64("price", ev.Price),
			logger.String("provenance", string(ev.Provenance)))
	}

	return &models.CaptureResult{
		Date:       date,
		Checkpoint: cp,
		Outcome:    ev.Outcome,
		Price:      ev.Price,
		Provenance: ev.Provenance,
		Reason:     ev.Reason,
	}
}

// ensureRecord creates the day's skeleton row when the morning job has
// not run. Captures must never be lost to a missing forecast. The row
// carries no source until a band claim names one.
func (u *CheckpointCapture) ensureRecord(ctx context.Context, date models.Date) error {
	err := u.store.Create(ctx, &models.PredictionRecord{Date: date})
	if err != nil && !errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("create record for %s: %w", date, err)
	}
	return nil
}
