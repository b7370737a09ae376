package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	"github.com/carmandale/SPY-tracker-sub000/pkg/clickhouse"
	pkgkafka "github.com/carmandale/SPY-tracker-sub000/pkg/kafka"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// auditSchema is the append-only capture log. MergeTree ordered by
// (date, checkpoint, captured_at) makes per-day fallback queries cheap.
var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS capture_events (
		date        Date,
		checkpoint  LowCardinality(String),
		price       Float64,
		provenance  LowCardinality(String),
		outcome     LowCardinality(String),
		reason      String,
		forced      UInt8,
		captured_at DateTime64(3)
	) ENGINE = MergeTree()
	ORDER BY (date, checkpoint, captured_at)`,
}

// ClickHouseAuditTrail writes capture events straight to ClickHouse.
type ClickHouseAuditTrail struct {
	db *sql.DB
}

// NewClickHouseAuditTrail creates the sink and ensures the table exists.
func NewClickHouseAuditTrail(ctx context.Context, client *clickhouse.Client) (repository.AuditTrail, error) {
	if err := client.InitSchema(ctx, auditSchema); err != nil {
		return nil, err
	}
	return &ClickHouseAuditTrail{db: client.DB()}, nil
}

func (t *ClickHouseAuditTrail) Record(ctx context.Context, ev *models.CaptureEvent) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO capture_events
			(date, checkpoint, price, provenance, outcome, reason, forced, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Date.String(),
		string(ev.Checkpoint),
		ev.Price,
		string(ev.Provenance),
		string(ev.Outcome),
		ev.Reason,
		boolToInt(ev.Forced),
		ev.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("insert capture event: %w", err)
	}
	return nil
}

func (t *ClickHouseAuditTrail) Close() error {
	return nil // handle owned by pkg/clickhouse client
}

// KafkaAuditTrail publishes capture events to a topic; a consumer on the
// other side lands them in ClickHouse. Events for one date share a key so
// they stay ordered.
type KafkaAuditTrail struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAuditTrail(producer *pkgkafka.Producer, topic string) repository.AuditTrail {
	return &KafkaAuditTrail{producer: producer, topic: topic}
}

func (t *KafkaAuditTrail) Record(ctx context.Context, ev *models.CaptureEvent) error {
	return t.producer.Publish(ctx, t.topic, []byte(ev.Date.String()), ev)
}

func (t *KafkaAuditTrail) Close() error {
	if t.producer != nil {
		return t.producer.Close()
	}
	return nil
}

// LogAuditTrail writes capture events to the structured log. It is the
// default sink for development setups with no ClickHouse or Kafka around.
type LogAuditTrail struct {
	log *logger.Logger
}

func NewLogAuditTrail(log *logger.Logger) repository.AuditTrail {
	return &LogAuditTrail{log: log.With("audit")}
}

func (t *LogAuditTrail) Record(_ context.Context, ev *models.CaptureEvent) error {
	t.log.Info("capture event",
		logger.String("date", ev.Date.String()),
		logger.String("checkpoint", string(ev.Checkpoint)),
		logger.Float64("price", ev.Price),
		logger.String("provenance", string(ev.Provenance)),
		logger.String("outcome", string(ev.Outcome)),
		logger.String("reason", ev.Reason),
		logger.Bool("forced", ev.Forced),
	)
	return nil
}

func (t *LogAuditTrail) Close() error {
	return nil
}
