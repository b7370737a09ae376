package usecase

import (
	"context"
	"encoding/json"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
)

// CaptureEventsHandler consumes capture events from Kafka and lands them
// in the durable audit trail. It closes the loop when the audit sink is
// kafka: captures publish, this consumer persists.
type CaptureEventsHandler struct {
	topic   string
	trail   drepo.AuditTrail
	metrics drepo.Metrics
}

func NewCaptureEventsHandler(topic string, trail drepo.AuditTrail, metrics drepo.Metrics) *CaptureEventsHandler {
	return &CaptureEventsHandler{topic: topic, trail: trail, metrics: metrics}
}

func (h *CaptureEventsHandler) Topic() string { return h.topic }

func (h *CaptureEventsHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.CaptureEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	if err := h.trail.Record(ctx, &ev); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}
