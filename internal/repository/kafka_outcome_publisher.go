package repository

import (
	"context"
	"strconv"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
	pkgkafka "RiskGraph/pkg/kafka"
)

// KafkaOutcomePublisher implements OutcomePublisher for Kafka.
type KafkaOutcomePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaOutcomePublisher creates Kafka publisher.
func NewKafkaOutcomePublisher(producer *pkgkafka.Producer, topic string) repository.OutcomePublisher {
	return &KafkaOutcomePublisher{producer: producer, topic: topic}
}

// Publish sends the outcome keyed by run id. Headers let consumers filter
// without decoding the body.
func (p *KafkaOutcomePublisher) Publish(ctx context.Context, outcome *models.ScenarioOutcome) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:   []byte(outcome.RunID),
		Value: outcome,
		Headers: map[string]string{
			pkgkafka.TraceHeader: outcome.RunID,
			"kind":               string(outcome.Kind),
			"applied":            strconv.FormatBool(outcome.Applied),
		},
	}})
}

func (p *KafkaOutcomePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopOutcomePublisher drops outcomes. Used when Kafka is disabled.
type NoopOutcomePublisher struct{}

func (NoopOutcomePublisher) Publish(ctx context.Context, outcome *models.ScenarioOutcome) error {
	return nil
}

func (NoopOutcomePublisher) Close() error { return nil }

// NoopSnapshotArchive discards history. Used when ClickHouse is disabled.
type NoopSnapshotArchive struct{}

func (NoopSnapshotArchive) Init(ctx context.Context) error { return nil }

func (NoopSnapshotArchive) StoreSnapshot(ctx context.Context, runID, label string, snap models.Snapshot) error {
	return nil
}

func (NoopSnapshotArchive) StoreDiff(ctx context.Context, runID string, kind models.ScenarioKind, report models.DiffReport) error {
	return nil
}

func (NoopSnapshotArchive) Health(ctx context.Context) error { return nil }

func (NoopSnapshotArchive) Close() error { return nil }
