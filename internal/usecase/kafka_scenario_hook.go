package usecase

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	domrepo "RiskGraph/internal/domain/repository"
	pkgkafka "RiskGraph/pkg/kafka"
	applogger "RiskGraph/pkg/logger"
)

var errEmptyScenario = errors.New("empty scenario message")

// ScenarioConsumerHook rejects empty messages before they reach the pipeline
// and records per-message latency. Chain it after pkgkafka.TraceHook.
type ScenarioConsumerHook struct {
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewScenarioConsumerHook(metrics domrepo.Metrics, logger *applogger.Logger) *ScenarioConsumerHook {
	return &ScenarioConsumerHook{metrics: metrics, logger: logger}
}

func (h *ScenarioConsumerHook) BeforeHandle(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return ctx, km, data, pkgkafka.Permanent(&pkgkafka.HookError{Code: "ERR_EMPTY", Err: errEmptyScenario})
	}
	return ctx, km, data, nil
}

func (h *ScenarioConsumerHook) AfterHandle(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	if start, ok := pkgkafka.StartTime(ctx); ok {
		h.metrics.RecordLatency("kafka_scenario", time.Since(start).Seconds())
	}
}

func (h *ScenarioConsumerHook) OnError(ctx context.Context, topic string, km kafka.Message, data []byte, err error) {
	h.logger.Warn("scenario message failed",
		applogger.String("topic", topic),
		applogger.Int64("offset", km.Offset),
		applogger.String("trace_id", pkgkafka.TraceID(ctx)),
		applogger.Bool("permanent", pkgkafka.IsPermanent(err)),
		applogger.Error(err),
	)
}

var _ pkgkafka.ConsumerHook = (*ScenarioConsumerHook)(nil)
