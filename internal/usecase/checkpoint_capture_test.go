package usecase

import (
	"context"
	"testing"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

func newCapture(store *memStore, market *fakeMarket, trail *memTrail) *CheckpointCapture {
	return NewCheckpointCapture(store, market, trail, nopMetrics{}, logger.Nop())
}

func TestCaptureOfficialPrice(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{}
	market := &fakeMarket{
		official: map[models.Checkpoint]float64{models.CheckpointOpen: 581.75},
		live:     582.00,
	}

	res, err := newCapture(store, market, trail).Run(context.Background(), "2026-03-02", models.CheckpointOpen, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != models.CaptureStored {
		t.Fatalf("outcome = %s, want stored: %s", res.Outcome, res.Reason)
	}
	if res.Price != 581.75 || res.Provenance != models.ProvenanceOfficial {
		t.Errorf("result = %.2f/%s, want 581.75/official", res.Price, res.Provenance)
	}

	rec, err := store.Get(context.Background(), "2026-03-02")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cp := rec.Checkpoints[models.CheckpointOpen]
	if cp.Price != 581.75 || cp.Provenance != models.ProvenanceOfficial {
		t.Errorf("stored = %+v", cp)
	}
	if got := trail.outcomes(); len(got) != 1 || got[0] != models.CaptureStored {
		t.Errorf("audit events = %v", got)
	}
}

func TestCaptureFallsBackToLiveQuote(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{}
	market := &fakeMarket{
		officialErr: models.ErrProviderUnavailable,
		live:        582.00,
	}

	res, err := newCapture(store, market, trail).Run(context.Background(), "2026-03-02", models.CheckpointNoon, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != models.CaptureStored || res.Provenance != models.ProvenanceLiveFallback {
		t.Fatalf("result = %s/%s, want stored/liveFallback", res.Outcome, res.Provenance)
	}

	rec, _ := store.Get(context.Background(), "2026-03-02")
	if cp := rec.Checkpoints[models.CheckpointNoon]; cp.Provenance != models.ProvenanceLiveFallback {
		t.Errorf("stored provenance = %s", cp.Provenance)
	}
}

func TestCaptureNoPriceLeavesSlotEmpty(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{}
	market := &fakeMarket{
		officialErr: models.ErrProviderUnavailable,
		liveErr:     models.ErrProviderUnavailable,
	}

	res, err := newCapture(store, market, trail).Run(context.Background(), "2026-03-02", models.CheckpointOpen, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != models.CaptureSkipped {
		t.Fatalf("outcome = %s, want skipped", res.Outcome)
	}

	rec, _ := store.Get(context.Background(), "2026-03-02")
	if _, ok := rec.Checkpoints[models.CheckpointOpen]; ok {
		t.Error("slot populated despite no price")
	}
	if got := trail.outcomes(); len(got) != 1 || got[0] != models.CaptureSkipped {
		t.Errorf("audit events = %v", got)
	}
}

func TestCaptureRejectsNonPositivePrice(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{}
	market := &fakeMarket{
		official: map[models.Checkpoint]float64{models.CheckpointOpen: -1},
		liveErr:  models.ErrProviderUnavailable,
	}

	// A non-positive official price falls through to the live quote, which
	// also fails here, so the capture is skipped entirely.
	res, err := newCapture(store, market, trail).Run(context.Background(), "2026-03-02", models.CheckpointOpen, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != models.CaptureSkipped {
		t.Fatalf("outcome = %s, want skipped", res.Outcome)
	}
}

func TestCaptureSanityRejection(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{}
	market := &fakeMarket{
		official: map[models.Checkpoint]float64{models.CheckpointOpen: 58.17}, // decimal slip
		history:  []models.DailyBar{{Date: "2026-02-27", Close: 581.50}},
	}

	res, err := newCapture(store, market, trail).Run(context.Background(), "2026-03-02", models.CheckpointOpen, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != models.CaptureRejected {
		t.Fatalf("outcome = %s, want rejected", res.Outcome)
	}

	rec, _ := store.Get(context.Background(), "2026-03-02")
	if _, ok := rec.Checkpoints[models.CheckpointOpen]; ok {
		t.Error("implausible price was stored")
	}
	if got := trail.outcomes(); len(got) != 1 || got[0] != models.CaptureRejected {
		t.Errorf("audit events = %v", got)
	}
}

func TestCaptureSanityPassesWithoutHistory(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{}
	market := &fakeMarket{
		official:   map[models.Checkpoint]float64{models.CheckpointOpen: 581.75},
		historyErr: models.ErrProviderUnavailable,
	}

	res, err := newCapture(store, market, trail).Run(context.Background(), "2026-03-02", models.CheckpointOpen, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != models.CaptureStored {
		t.Fatalf("outcome = %s, want stored", res.Outcome)
	}
}

func TestCaptureDuplicateSlotSkips(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{}
	market := &fakeMarket{
		official: map[models.Checkpoint]float64{models.CheckpointOpen: 581.75},
	}
	capture := newCapture(store, market, trail)

	if _, err := capture.Run(context.Background(), "2026-03-02", models.CheckpointOpen, false); err != nil {
		t.Fatalf("first: %v", err)
	}

	market.official[models.CheckpointOpen] = 999.99
	res, err := capture.Run(context.Background(), "2026-03-02", models.CheckpointOpen, false)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Outcome != models.CaptureSkipped {
		t.Fatalf("outcome = %s, want skipped", res.Outcome)
	}

	rec, _ := store.Get(context.Background(), "2026-03-02")
	if cp := rec.Checkpoints[models.CheckpointOpen]; cp.Price != 581.75 {
		t.Errorf("first capture overwritten: %+v", cp)
	}
}

func TestCaptureForceOverwrites(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{}
	market := &fakeMarket{
		officialErr: models.ErrNotFound,
		live:        582.00,
	}
	capture := newCapture(store, market, trail)

	if _, err := capture.Run(context.Background(), "2026-03-02", models.CheckpointOpen, false); err != nil {
		t.Fatalf("fallback capture: %v", err)
	}

	// The official print shows up later; force reconciles the slot.
	market.officialErr = nil
	market.official = map[models.Checkpoint]float64{models.CheckpointOpen: 581.75}
	res, err := capture.Run(context.Background(), "2026-03-02", models.CheckpointOpen, true)
	if err != nil {
		t.Fatalf("force: %v", err)
	}
	if res.Outcome != models.CaptureStored {
		t.Fatalf("outcome = %s, want stored", res.Outcome)
	}

	rec, _ := store.Get(context.Background(), "2026-03-02")
	cp := rec.Checkpoints[models.CheckpointOpen]
	if cp.Price != 581.75 || cp.Provenance != models.ProvenanceOfficial {
		t.Errorf("after force = %+v, want 581.75/official", cp)
	}
}

func TestCaptureAuditFailureDoesNotBlock(t *testing.T) {
	store := newMemStore()
	trail := &memTrail{err: models.ErrProviderUnavailable}
	market := &fakeMarket{
		official: map[models.Checkpoint]float64{models.CheckpointClose: 586.90},
	}

	res, err := newCapture(store, market, trail).Run(context.Background(), "2026-03-02", models.CheckpointClose, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Outcome != models.CaptureStored {
		t.Fatalf("outcome = %s, want stored despite audit failure", res.Outcome)
	}

	rec, _ := store.Get(context.Background(), "2026-03-02")
	if _, ok := rec.Checkpoints[models.CheckpointClose]; !ok {
		t.Error("capture lost to audit failure")
	}
}

func TestCaptureCreatesSkeletonRecord(t *testing.T) {
	store := newMemStore()
	market := &fakeMarket{
		official: map[models.Checkpoint]float64{models.CheckpointPreMarket: 580.20},
	}

	// No morning forecast ran; the capture still lands on a fresh row.
	if _, err := newCapture(store, market, &memTrail{}).Run(context.Background(), "2026-03-02", models.CheckpointPreMarket, false); err != nil {
		t.Fatalf("run: %v", err)
	}

	rec, err := store.Get(context.Background(), "2026-03-02")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Locked {
		t.Error("skeleton row should be unlocked")
	}
	if _, ok := rec.Band(); ok {
		t.Error("skeleton row should have no band")
	}
	if rec.Source != "" {
		t.Errorf("skeleton row tagged source %q, want none until a claim", rec.Source)
	}
}
