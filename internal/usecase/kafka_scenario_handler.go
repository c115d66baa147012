package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"RiskGraph/internal/domain/models"
	domrepo "RiskGraph/internal/domain/repository"
	pkgkafka "RiskGraph/pkg/kafka"
	applogger "RiskGraph/pkg/logger"
)

// KafkaScenarioHandler runs scenario requests consumed from Kafka through
// the pipeline. Outcomes leave through the runner's publisher.
type KafkaScenarioHandler struct {
	topic   string
	runner  *ScenarioRunner
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewKafkaScenarioHandler(topic string, runner *ScenarioRunner, metrics domrepo.Metrics, logger *applogger.Logger) *KafkaScenarioHandler {
	return &KafkaScenarioHandler{topic: topic, runner: runner, metrics: metrics, logger: logger}
}

func (h *KafkaScenarioHandler) Topic() string { return h.topic }

// incoming message schema: models.ScenarioRequest
func (h *KafkaScenarioHandler) Handle(ctx context.Context, b []byte) error {
	var req models.ScenarioRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode scenario request: %w", err))
	}

	out, err := h.runner.Run(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidScenario):
		h.metrics.RecordError("consumer_invalid")
		return pkgkafka.Permanent(err)
	case errors.Is(err, models.ErrPipelineBusy):
		// retried with backoff by the consumer
		return err
	default:
		h.metrics.RecordError("consumer_scenario")
		return err
	}

	h.logger.Info("kafka scenario processed",
		applogger.String("run_id", out.RunID),
		applogger.String("scenario", out.Description),
		applogger.Bool("applied", out.Applied),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaScenarioHandler)(nil)
