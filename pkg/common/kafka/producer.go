package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-health/chartcore/pkg/common/config"
	"github.com/meridian-health/chartcore/pkg/common/logger"
	"github.com/segmentio/kafka-go"
)

// AuditEvent is the advisory record published for every chart history write.
// The history log itself is the source of truth; the stream exists for
// downstream audit consumers.
type AuditEvent struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	EntryKind string    `json:"entry_kind"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(topic string) *Producer {
	cfg := config.Load()
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

func (p *Producer) PublishAudit(ctx context.Context, patientID, entryKind, summary string) error {
	event := AuditEvent{
		ID:        uuid.New().String(),
		PatientID: patientID,
		EntryKind: entryKind,
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.PatientID),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "entry-kind", Value: []byte(entryKind)},
			{Key: "patient-id", Value: []byte(patientID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"entry_kind": entryKind,
		}).Error("Failed to publish audit event")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"entry_kind": entryKind,
		"topic":      p.writer.Topic,
	}).Debug("Audit event published")

	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
