package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	msg, err := NewMessage("id-1", "scenario", map[string]string{"kind": "risk_event"}, now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"risk_event"}`, string(msg.Payload))
	assert.Equal(t, now, msg.Timestamp)
	assert.Zero(t, msg.Attempts)

	raw, err := NewMessage("id-2", "scenario", []byte(`{"kind":"acquisition"}`), now)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"acquisition"}`, string(raw.Payload))

	_, err = NewMessage("id-3", "scenario", []byte("{broken"), now)
	assert.Error(t, err)
}

func TestMessageRoundTripKeepsPayloadVerbatim(t *testing.T) {
	msg, err := NewMessage("id", "scenario", json.RawMessage(`{"a":1}`), time.Unix(0, 0).UTC())
	require.NoError(t, err)
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, `{"a":1}`, string(back.Payload))
	assert.Equal(t, "scenario", back.Type)
}

type failingJob struct{ err error }

func (j failingJob) Name() string { return "failing" }
func (j failingJob) Type() string { return "scenario" }
func (j failingJob) Handle(ctx context.Context, payload json.RawMessage) error {
	return j.err
}

func TestKeysAndJobRegistration(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, ModeConsumerOnly, WithKeyPrefix("test:q"))
	assert.Equal(t, "test:q:messages", q.QueueKey())
	assert.Equal(t, "test:q:retry", q.RetryKey())
	assert.Equal(t, "test:q:dlq", q.DeadLetterKey())
	assert.Equal(t, "test:q:processing", q.ProcessingKey())
	assert.Equal(t, 1, q.config.Workers)
	assert.Equal(t, 10*time.Second, q.config.RetryDelay)

	q.RegisterJob(failingJob{err: errors.New("x")})
	q.RegisterJob(failingJob{err: errors.New("y")})
	assert.Len(t, q.jobs, 1)

	p := NewRedisQueue(nil, nil, nil, ModeProducerOnly)
	p.RegisterJob(failingJob{})
	assert.Empty(t, p.jobs)
	assert.Equal(t, "producer-only", p.modeString())
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, ModeProducerOnly)
	_, err := q.Enqueue(context.Background(), "scenario", map[string]string{})
	assert.EqualError(t, err, "queue not running")
}

func TestStartFailsWithoutRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	q := NewRedisConsumer(nil, &QueueConfig{Workers: 2}, client, []Job{failingJob{}})
	err := q.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping")
	assert.NoError(t, q.Stop(context.Background()))

	_, err = q.Enqueue(context.Background(), "scenario", map[string]string{})
	assert.EqualError(t, err, "queue not running")
}
