package usecase

import (
	"context"
	"encoding/json"

	"RiskGraph/pkg/queue"
)

// ScenarioJobType is the Redis queue message type carrying a ScenarioRequest.
const ScenarioJobType = "scenario"

// ScenarioJob feeds requests from the Redis queue into the same intake the
// Kafka consumer uses.
type ScenarioJob struct {
	handler *KafkaScenarioHandler
}

func NewScenarioJob(handler *KafkaScenarioHandler) *ScenarioJob {
	return &ScenarioJob{handler: handler}
}

func (j *ScenarioJob) Name() string { return "scenario-runner" }

func (j *ScenarioJob) Type() string { return ScenarioJobType }

func (j *ScenarioJob) Handle(ctx context.Context, payload json.RawMessage) error {
	return j.handler.Handle(ctx, payload)
}

var _ queue.Job = (*ScenarioJob)(nil)
