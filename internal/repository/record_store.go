package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	"github.com/carmandale/SPY-tracker-sub000/pkg/sqlite"
)

// recordSchema is the single day-keyed table. The primary key on date is
// what turns "one record per day" from a convention into a guarantee.
var recordSchema = []string{
	`CREATE TABLE IF NOT EXISTS prediction_records (
		date                TEXT PRIMARY KEY,
		pred_low            REAL,
		pred_high           REAL,
		bias                TEXT NOT NULL DEFAULT '',
		vol_ctx             TEXT NOT NULL DEFAULT '',
		day_type            TEXT NOT NULL DEFAULT '',
		key_levels          TEXT NOT NULL DEFAULT '[]',
		notes               TEXT NOT NULL DEFAULT '',
		sentiment           TEXT NOT NULL DEFAULT '',
		source              TEXT NOT NULL DEFAULT '',
		locked              INTEGER NOT NULL DEFAULT 0,
		pre_market_price    REAL,
		pre_market_prov     TEXT,
		open_price          REAL,
		open_prov           TEXT,
		noon_price          REAL,
		noon_prov           TEXT,
		mid_afternoon_price REAL,
		mid_afternoon_prov  TEXT,
		close_price         REAL,
		close_prov          TEXT,
		realized_low        REAL,
		realized_high       REAL,
		range_hit           INTEGER,
		abs_err_close       REAL,
		scored_at           TIMESTAMP,
		created_at          TIMESTAMP NOT NULL,
		updated_at          TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_scored ON prediction_records (locked, range_hit, date)`,
}

// checkpoint column pairs, keyed by checkpoint name. Column names come
// from this table, never from request input.
var checkpointColumns = map[models.Checkpoint][2]string{
	models.CheckpointPreMarket:    {"pre_market_price", "pre_market_prov"},
	models.CheckpointOpen:         {"open_price", "open_prov"},
	models.CheckpointNoon:         {"noon_price", "noon_prov"},
	models.CheckpointMidAfternoon: {"mid_afternoon_price", "mid_afternoon_prov"},
	models.CheckpointClose:        {"close_price", "close_prov"},
}

// SQLiteRecordStore implements repository.RecordStore on SQLite. Every
// mutation is one date-keyed statement, so two concurrently fired jobs
// resolve through the database rather than through in-process locking.
type SQLiteRecordStore struct {
	db *sql.DB
}

// NewSQLiteRecordStore creates the store and ensures the schema exists.
func NewSQLiteRecordStore(ctx context.Context, client *sqlite.Client) (repository.RecordStore, error) {
	if err := client.InitSchema(ctx, recordSchema); err != nil {
		return nil, err
	}
	return &SQLiteRecordStore{db: client.DB()}, nil
}

func (s *SQLiteRecordStore) Create(ctx context.Context, rec *models.PredictionRecord) error {
	keyLevels, err := json.Marshal(rec.KeyLevels)
	if err != nil {
		return fmt.Errorf("marshal key levels: %w", err)
	}
	if rec.KeyLevels == nil {
		keyLevels = []byte("[]")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prediction_records
			(date, pred_low, pred_high, bias, vol_ctx, day_type, key_levels,
			 notes, sentiment, source, locked, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Date.String(),
		nullFloat(rec.PredLow),
		nullFloat(rec.PredHigh),
		rec.Bias,
		rec.VolCtx,
		rec.DayType,
		string(keyLevels),
		rec.Notes,
		rec.Sentiment,
		string(rec.Source),
		boolToInt(rec.Locked),
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record for %s: %w", rec.Date, models.ErrConflict)
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *SQLiteRecordStore) Get(ctx context.Context, date models.Date) (*models.PredictionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, pred_low, pred_high, bias, vol_ctx, day_type, key_levels,
		       notes, sentiment, source, locked,
		       pre_market_price, pre_market_prov,
		       open_price, open_prov,
		       noon_price, noon_prov,
		       mid_afternoon_price, mid_afternoon_prov,
		       close_price, close_prov,
		       realized_low, realized_high, range_hit, abs_err_close, scored_at,
		       created_at, updated_at
		FROM prediction_records WHERE date = ?`, date.String())

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record for %s: %w", date, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteRecordStore) ClaimBand(ctx context.Context, date models.Date, claim *models.BandClaim) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE prediction_records
		SET pred_low = ?, pred_high = ?, bias = ?, vol_ctx = ?, day_type = ?,
		    sentiment = ?, notes = ?, source = ?, locked = 1, updated_at = ?
		WHERE date = ? AND locked = 0 AND pred_low IS NULL`,
		claim.Band.Low,
		claim.Band.High,
		claim.Bias,
		claim.VolCtx,
		claim.DayType,
		claim.Sentiment,
		claim.Notes,
		string(claim.Source),
		time.Now().UTC(),
		date.String(),
	)
	if err != nil {
		return fmt.Errorf("claim band: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim band: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing matched: report the precise reason.
	var locked int
	var predLow sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT locked, pred_low FROM prediction_records WHERE date = ?`,
		date.String()).Scan(&locked, &predLow)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record for %s: %w", date, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("claim band: %w", err)
	}
	if locked != 0 {
		return fmt.Errorf("record for %s: %w", date, models.ErrLocked)
	}
	return fmt.Errorf("band for %s: %w", date, models.ErrConflict)
}

func (s *SQLiteRecordStore) SetCheckpoint(ctx context.Context, date models.Date, cp models.Checkpoint, price float64, prov models.Provenance, force bool) error {
	cols, ok := checkpointColumns[cp]
	if !ok {
		return fmt.Errorf("checkpoint %q: %w", cp, models.ErrValidation)
	}

	guard := fmt.Sprintf(" AND %s IS NULL", cols[0])
	if force {
		guard = ""
	}
	q := fmt.Sprintf(
		`UPDATE prediction_records SET %s = ?, %s = ?, updated_at = ? WHERE date = ?%s`,
		cols[0], cols[1], guard)

	res, err := s.db.ExecContext(ctx, q, price, string(prov), time.Now().UTC(), date.String())
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM prediction_records WHERE date = ?`, date.String()).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record for %s: %w", date, models.ErrNotFound)
		}
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return fmt.Errorf("checkpoint %s for %s already captured: %w", cp, date, models.ErrConflict)
}

func (s *SQLiteRecordStore) SetScore(ctx context.Context, date models.Date, realizedLow, realizedHigh float64, rangeHit bool, absErrToClose float64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE prediction_records
		SET realized_low = ?, realized_high = ?, range_hit = ?, abs_err_close = ?,
		    scored_at = ?, updated_at = ?
		WHERE date = ?`,
		realizedLow, realizedHigh, boolToInt(rangeHit), absErrToClose,
		at.UTC(), time.Now().UTC(), date.String(),
	)
	if err != nil {
		return fmt.Errorf("set score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set score: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record for %s: %w", date, models.ErrNotFound)
	}
	return nil
}

func (s *SQLiteRecordStore) RecentScored(ctx context.Context, limit int) ([]*models.PredictionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, pred_low, pred_high, bias, vol_ctx, day_type, key_levels,
		       notes, sentiment, source, locked,
		       pre_market_price, pre_market_prov,
		       open_price, open_prov,
		       noon_price, noon_prov,
		       mid_afternoon_price, mid_afternoon_prov,
		       close_price, close_prov,
		       realized_low, realized_high, range_hit, abs_err_close, scored_at,
		       created_at, updated_at
		FROM prediction_records
		WHERE locked = 1 AND range_hit IS NOT NULL
		ORDER BY date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent scored: %w", err)
	}
	defer rows.Close()

	var records []*models.PredictionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("recent scored: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteRecordStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteRecordStore) Close() error {
	return nil // handle owned by pkg/sqlite client
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.PredictionRecord, error) {
	var (
		rec       models.PredictionRecord
		date      string
		predLow   sql.NullFloat64
		predHigh  sql.NullFloat64
		keyLevels string
		source    string
		locked    int
		cpPrices  [5]sql.NullFloat64
		cpProvs   [5]sql.NullString
		rLow      sql.NullFloat64
		rHigh     sql.NullFloat64
		rangeHit  sql.NullInt64
		absErr    sql.NullFloat64
		scoredAt  sql.NullTime
	)

	err := row.Scan(
		&date, &predLow, &predHigh, &rec.Bias, &rec.VolCtx, &rec.DayType, &keyLevels,
		&rec.Notes, &rec.Sentiment, &source, &locked,
		&cpPrices[0], &cpProvs[0],
		&cpPrices[1], &cpProvs[1],
		&cpPrices[2], &cpProvs[2],
		&cpPrices[3], &cpProvs[3],
		&cpPrices[4], &cpProvs[4],
		&rLow, &rHigh, &rangeHit, &absErr, &scoredAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Date = models.Date(date)
	rec.Source = models.Source(source)
	rec.Locked = locked != 0
	rec.PredLow = floatPtr(predLow)
	rec.PredHigh = floatPtr(predHigh)
	rec.RealizedLow = floatPtr(rLow)
	rec.RealizedHigh = floatPtr(rHigh)
	rec.AbsErrorToClose = floatPtr(absErr)
	if rangeHit.Valid {
		hit := rangeHit.Int64 != 0
		rec.RangeHit = &hit
	}
	if scoredAt.Valid {
		t := scoredAt.Time
		rec.ScoredAt = &t
	}
	if err := json.Unmarshal([]byte(keyLevels), &rec.KeyLevels); err != nil {
		return nil, fmt.Errorf("unmarshal key levels: %w", err)
	}

	rec.Checkpoints = make(map[models.Checkpoint]models.CheckpointPrice)
	for i, cp := range models.Checkpoints() {
		if cpPrices[i].Valid {
			rec.Checkpoints[cp] = models.CheckpointPrice{
				Price:      cpPrices[i].Float64,
				Provenance: models.Provenance(cpProvs[i].String),
			}
		}
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
