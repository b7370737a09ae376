package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
)

// memStore is an in-memory RecordStore with the same conflict semantics
// as the SQLite implementation.
type memStore struct {
	mu      sync.Mutex
	records map[models.Date]*models.PredictionRecord
	failAll error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[models.Date]*models.PredictionRecord)}
}

func (s *memStore) Create(_ context.Context, rec *models.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	if _, ok := s.records[rec.Date]; ok {
		return fmt.Errorf("record for %s: %w", rec.Date, models.ErrConflict)
	}
	cp := *rec
	cp.Checkpoints = make(map[models.Checkpoint]models.CheckpointPrice)
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.records[rec.Date] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, date models.Date) (*models.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	rec, ok := s.records[date]
	if !ok {
		return nil, fmt.Errorf("record for %s: %w", date, models.ErrNotFound)
	}
	out := *rec
	out.Checkpoints = make(map[models.Checkpoint]models.CheckpointPrice, len(rec.Checkpoints))
	for k, v := range rec.Checkpoints {
		out.Checkpoints[k] = v
	}
	return &out, nil
}

func (s *memStore) ClaimBand(_ context.Context, date models.Date, claim *models.BandClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	rec, ok := s.records[date]
	if !ok {
		return fmt.Errorf("record for %s: %w", date, models.ErrNotFound)
	}
	if rec.Locked {
		return fmt.Errorf("record for %s: %w", date, models.ErrLocked)
	}
	if rec.PredLow != nil {
		return fmt.Errorf("band for %s: %w", date, models.ErrConflict)
	}
	low, high := claim.Band.Low, claim.Band.High
	rec.PredLow, rec.PredHigh = &low, &high
	rec.Bias = claim.Bias
	rec.VolCtx = claim.VolCtx
	rec.DayType = claim.DayType
	rec.Sentiment = claim.Sentiment
	rec.Notes = claim.Notes
	rec.Source = claim.Source
	rec.Locked = true
	return nil
}

func (s *memStore) SetCheckpoint(_ context.Context, date models.Date, cp models.Checkpoint, price float64, prov models.Provenance, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	rec, ok := s.records[date]
	if !ok {
		return fmt.Errorf("record for %s: %w", date, models.ErrNotFound)
	}
	if _, exists := rec.Checkpoints[cp]; exists && !force {
		return fmt.Errorf("checkpoint %s for %s already captured: %w", cp, date, models.ErrConflict)
	}
	rec.Checkpoints[cp] = models.CheckpointPrice{Price: price, Provenance: prov}
	return nil
}

func (s *memStore) SetScore(_ context.Context, date models.Date, realizedLow, realizedHigh float64, rangeHit bool, absErrToClose float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	rec, ok := s.records[date]
	if !ok {
		return fmt.Errorf("record for %s: %w", date, models.ErrNotFound)
	}
	rec.RealizedLow = &realizedLow
	rec.RealizedHigh = &realizedHigh
	rec.RangeHit = &rangeHit
	rec.AbsErrorToClose = &absErrToClose
	rec.ScoredAt = &at
	return nil
}

func (s *memStore) RecentScored(_ context.Context, limit int) ([]*models.PredictionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	var out []*models.PredictionRecord
	for _, rec := range s.records {
		if rec.Locked && rec.RangeHit != nil {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

// fakeMarket scripts the three provider calls.
type fakeMarket struct {
	official    map[models.Checkpoint]float64
	officialErr error
	live        float64
	liveErr     error
	history     []models.DailyBar
	historyErr  error
}

func (m *fakeMarket) OfficialCheckpointPrice(_ context.Context, _ models.Date, cp models.Checkpoint) (float64, error) {
	if m.officialErr != nil {
		return 0, m.officialErr
	}
	price, ok := m.official[cp]
	if !ok {
		return 0, models.ErrNotFound
	}
	return price, nil
}

func (m *fakeMarket) LivePrice(context.Context) (float64, error) {
	return m.live, m.liveErr
}

func (m *fakeMarket) RecentHistory(context.Context, int) ([]models.DailyBar, error) {
	return m.history, m.historyErr
}

// fakeForecaster returns a fixed forecast or error and keeps the
// requests it saw.
type fakeForecaster struct {
	forecast *models.DayForecast
	err      error
	calls    int
	reqs     []*models.ForecastRequest
}

func (f *fakeForecaster) Forecast(_ context.Context, req *models.ForecastRequest) (*models.DayForecast, error) {
	f.calls++
	f.reqs = append(f.reqs, req)
	return f.forecast, f.err
}

// memTrail collects audit events; err makes Record fail.
type memTrail struct {
	mu     sync.Mutex
	events []*models.CaptureEvent
	err    error
}

func (t *memTrail) Record(_ context.Context, ev *models.CaptureEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.events = append(t.events, ev)
	return nil
}

func (t *memTrail) Close() error { return nil }

func (t *memTrail) outcomes() []models.CaptureOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.CaptureOutcome, len(t.events))
	for i, ev := range t.events {
		out[i] = ev.Outcome
	}
	return out
}

// nopMetrics satisfies the metrics port.
type nopMetrics struct{}

func (nopMetrics) RecordCapture(string, string, string) {}
func (nopMetrics) RecordJobRun(string, string)          {}
func (nopMetrics) RecordJobDuration(string, float64)    {}
func (nopMetrics) RecordError(string)                   {}
func (nopMetrics) RecordLastPrice(float64)              {}
