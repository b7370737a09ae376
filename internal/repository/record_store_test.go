package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	"github.com/carmandale/SPY-tracker-sub000/pkg/sqlite"
)

func newTestStore(t *testing.T) drepo.RecordStore {
	t.Helper()

	client, err := sqlite.NewClient(sqlite.WithPath(":memory:"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewSQLiteRecordStore(context.Background(), client)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func TestCreateRejectsDuplicateDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := &models.PredictionRecord{Date: "2026-03-02", Source: models.SourceForecast}

	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := store.Create(ctx, rec)
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("second create: got %v, want ErrConflict", err)
	}
}

func TestCreateConcurrentOnlyOneSucceeds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 16
	errs := make(chan error, writers)
	var start sync.WaitGroup
	start.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			start.Done()
			start.Wait() // line all writers up on the same date
			errs <- store.Create(ctx, &models.PredictionRecord{Date: "2026-03-02"})
		}()
	}

	var created, conflicts int
	for i := 0; i < writers; i++ {
		switch err := <-errs; {
		case err == nil:
			created++
		case errors.Is(err, models.ErrConflict):
			conflicts++
		default:
			t.Fatalf("create: %v", err)
		}
	}
	if created != 1 || conflicts != writers-1 {
		t.Fatalf("created = %d, conflicts = %d, want 1 and %d", created, conflicts, writers-1)
	}
}

func TestGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low, high := 580.0, 587.25
	rec := &models.PredictionRecord{
		Date:      "2026-03-02",
		PredLow:   &low,
		PredHigh:  &high,
		Bias:      "neutral",
		VolCtx:    "normal",
		DayType:   "range",
		KeyLevels: []float64{580, 585},
		Notes:     "fomc week",
		Source:    models.SourceHuman,
		Locked:    true,
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PredLow == nil || *got.PredLow != low {
		t.Errorf("pred low = %v, want %v", got.PredLow, low)
	}
	if got.PredHigh == nil || *got.PredHigh != high {
		t.Errorf("pred high = %v, want %v", got.PredHigh, high)
	}
	if got.Bias != "neutral" || got.VolCtx != "normal" || got.DayType != "range" {
		t.Errorf("context = %q/%q/%q", got.Bias, got.VolCtx, got.DayType)
	}
	if len(got.KeyLevels) != 2 || got.KeyLevels[0] != 580 {
		t.Errorf("key levels = %v", got.KeyLevels)
	}
	if !got.Locked {
		t.Error("locked flag lost")
	}
	if got.Source != models.SourceHuman {
		t.Errorf("source = %q", got.Source)
	}
	if len(got.Checkpoints) != 0 {
		t.Errorf("fresh record has checkpoints: %v", got.Checkpoints)
	}
	if got.Scored() {
		t.Error("fresh record reports scored")
	}
}

func TestGetMissingDate(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "2026-03-02")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestClaimBand(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, &models.PredictionRecord{Date: "2026-03-02"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claim := &models.BandClaim{
		Band:      models.Band{Low: 580, High: 587.25},
		Bias:      "bullish",
		VolCtx:    "low",
		DayType:   "trend",
		Sentiment: "constructive tape",
		Source:    models.SourceForecast,
	}
	if err := store.ClaimBand(ctx, "2026-03-02", claim); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := store.Get(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	band, ok := got.Band()
	if !ok || band.Low != 580 || band.High != 587.25 {
		t.Fatalf("band = %+v ok=%v", band, ok)
	}
	if !got.Locked {
		t.Error("claim did not lock the record")
	}

	// A second claim must not touch the locked row.
	err = store.ClaimBand(ctx, "2026-03-02", claim)
	if !errors.Is(err, models.ErrLocked) {
		t.Fatalf("second claim: got %v, want ErrLocked", err)
	}
}

func TestClaimBandMissingRecord(t *testing.T) {
	store := newTestStore(t)

	err := store.ClaimBand(context.Background(), "2026-03-02", &models.BandClaim{
		Band: models.Band{Low: 1, High: 2},
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestClaimBandUnlockedWithBand(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low, high := 580.0, 585.0
	if err := store.Create(ctx, &models.PredictionRecord{
		Date: "2026-03-02", PredLow: &low, PredHigh: &high,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := store.ClaimBand(ctx, "2026-03-02", &models.BandClaim{
		Band: models.Band{Low: 579, High: 586},
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestSetCheckpoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, &models.PredictionRecord{Date: "2026-03-02"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.SetCheckpoint(ctx, "2026-03-02", models.CheckpointOpen, 581.10, models.ProvenanceOfficial, false); err != nil {
		t.Fatalf("set open: %v", err)
	}

	// Repeat without force is a conflict and leaves the slot untouched.
	err := store.SetCheckpoint(ctx, "2026-03-02", models.CheckpointOpen, 999, models.ProvenanceLiveFallback, false)
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("repeat: got %v, want ErrConflict", err)
	}

	got, err := store.Get(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cp := got.Checkpoints[models.CheckpointOpen]
	if cp.Price != 581.10 || cp.Provenance != models.ProvenanceOfficial {
		t.Fatalf("open = %+v", cp)
	}

	// Force overwrites and records the new provenance.
	if err := store.SetCheckpoint(ctx, "2026-03-02", models.CheckpointOpen, 581.25, models.ProvenanceOfficial, true); err != nil {
		t.Fatalf("force: %v", err)
	}
	got, _ = store.Get(ctx, "2026-03-02")
	if cp := got.Checkpoints[models.CheckpointOpen]; cp.Price != 581.25 {
		t.Fatalf("after force = %+v", cp)
	}
}

func TestSetCheckpointMissingRecord(t *testing.T) {
	store := newTestStore(t)

	err := store.SetCheckpoint(context.Background(), "2026-03-02", models.CheckpointNoon, 582, models.ProvenanceOfficial, false)
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSetCheckpointUnknownName(t *testing.T) {
	store := newTestStore(t)

	err := store.SetCheckpoint(context.Background(), "2026-03-02", models.Checkpoint("lunch"), 582, models.ProvenanceOfficial, false)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestSetScoreAndRecentScored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dates := []models.Date{"2026-03-02", "2026-03-03", "2026-03-04"}
	for _, d := range dates {
		if err := store.Create(ctx, &models.PredictionRecord{Date: d}); err != nil {
			t.Fatalf("create %s: %v", d, err)
		}
		if err := store.ClaimBand(ctx, d, &models.BandClaim{
			Band: models.Band{Low: 580, High: 587}, Source: models.SourceForecast,
		}); err != nil {
			t.Fatalf("claim %s: %v", d, err)
		}
	}

	// Score only the first two; the third stays pending.
	now := time.Now()
	if err := store.SetScore(ctx, "2026-03-02", 581.1, 586.9, true, 3.275, now); err != nil {
		t.Fatalf("score: %v", err)
	}
	if err := store.SetScore(ctx, "2026-03-03", 578.0, 585.0, false, 5.1, now); err != nil {
		t.Fatalf("score: %v", err)
	}

	recs, err := store.RecentScored(ctx, 10)
	if err != nil {
		t.Fatalf("recent scored: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Most recent date first.
	if recs[0].Date != "2026-03-03" || recs[1].Date != "2026-03-02" {
		t.Fatalf("order = %s, %s", recs[0].Date, recs[1].Date)
	}
	if recs[0].RangeHit == nil || *recs[0].RangeHit {
		t.Errorf("2026-03-03 rangeHit = %v, want false", recs[0].RangeHit)
	}
	if recs[1].RangeHit == nil || !*recs[1].RangeHit {
		t.Errorf("2026-03-02 rangeHit = %v, want true", recs[1].RangeHit)
	}
	if recs[1].AbsErrorToClose == nil || *recs[1].AbsErrorToClose != 3.275 {
		t.Errorf("abs err = %v", recs[1].AbsErrorToClose)
	}

	// The limit caps the window.
	recs, err = store.RecentScored(ctx, 1)
	if err != nil {
		t.Fatalf("recent scored limit: %v", err)
	}
	if len(recs) != 1 || recs[0].Date != "2026-03-03" {
		t.Fatalf("limited window = %v", recs)
	}
}

func TestSetScoreMissingRecord(t *testing.T) {
	store := newTestStore(t)

	err := store.SetScore(context.Background(), "2026-03-02", 1, 2, true, 0, time.Now())
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
