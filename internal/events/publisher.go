package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/saishivanagaram1324-cpu/admin-chiro/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

const TopicStatusChanged = "appointment.status.changed.v1"

type StatusChanged struct {
	AppointmentID         string `json:"appointment_id"`
	OldStatus             string `json:"old_status,omitempty"`
	NewStatus             string `json:"new_status"`
	NotificationDelivered bool   `json:"notification_delivered"`
	ChangedAt             string `json:"changed_at"`
}

// Publisher emits status-change events for downstream consumers (analytics,
// audit). Publishing is best-effort: failures are logged and dropped, they
// never reach the operator.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(brokers string, logger *slog.Logger) *Publisher {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		logger.Warn("status change events disabled (no kafka brokers configured)")
		return &Publisher{logger: logger}
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  list,
		Topic:    TopicStatusChanged,
		Balancer: &kafka.Hash{},
	})
	return &Publisher{writer: writer, logger: logger}
}

func (p *Publisher) Close() {
	if p.writer != nil {
		_ = p.writer.Close()
	}
}

func (p *Publisher) StatusChanged(ctx context.Context, ev StatusChanged) {
	if p.writer == nil {
		return
	}
	if ev.ChangedAt == "" {
		ev.ChangedAt = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("status change event marshal failed", "err", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.AppointmentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(TopicStatusChanged)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("status change event publish failed", "err", err, "appointment_id", ev.AppointmentID)
	}
}
