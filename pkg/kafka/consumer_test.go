package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermanent(t *testing.T) {
	base := errors.New("bad payload")
	err := fmt.Errorf("handle: %w", Permanent(base))

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue("raw")
	assert.NoError(t, err)
	assert.Equal(t, []byte("raw"), b)

	b, err = encodeValue(map[string]int{"n": 1})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestNewConsumer(t *testing.T) {
	_, err := NewConsumer()
	assert.EqualError(t, err, "brokers are required")

	reg := prometheus.NewRegistry()
	c, err := NewConsumer(WithConsumerBrokers([]string{"k:9092"}), WithConsumerRegisterer(reg), WithConsumerWorkers(0))
	require.NoError(t, err)
	assert.Equal(t, 1, c.cfg.WorkerCount)
	assert.Nil(t, c.dlq)
	assert.EqualError(t, c.Start(), "no handlers registered")

	// a second consumer on the same registry reuses the collectors
	c2, err := NewConsumer(WithConsumerBrokers([]string{"k:9092"}), WithConsumerRegisterer(reg), WithConsumerDLQ("dlq"))
	require.NoError(t, err)
	assert.Same(t, c.metrics.failures, c2.metrics.failures)
	assert.NotNil(t, c2.dlq)
}

func TestRegisterHandler_FirstWins(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"k:9092"}), WithConsumerRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	first := stubHandler{topic: "scenarios"}
	c.RegisterHandler(first)
	c.RegisterHandler(stubHandler{topic: "scenarios", err: errors.New("second")})
	assert.Equal(t, first, c.handlers["scenarios"])
}

func TestLaneIndex_PinsPartitions(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"k:9092"}), WithConsumerRegisterer(prometheus.NewRegistry()), WithConsumerWorkers(4))
	require.NoError(t, err)
	require.Len(t, c.lanes, 4)

	seen := make(map[int]bool)
	for p := 0; p < 4; p++ {
		i := c.laneIndex("scenarios", p)
		assert.Equal(t, i, c.laneIndex("scenarios", p))
		seen[i] = true
	}
	assert.Len(t, seen, 4, "consecutive partitions spread over the lanes")
}

// orderedHandler records payloads per partition; the payload is "p:n".
type orderedHandler struct {
	mu  sync.Mutex
	got map[string][]int
}

func (h *orderedHandler) Topic() string { return "scenarios" }

func (h *orderedHandler) Handle(_ context.Context, b []byte) error {
	part, n, _ := strings.Cut(string(b), ":")
	v, err := strconv.Atoi(n)
	if err != nil {
		return Permanent(err)
	}
	time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
	h.mu.Lock()
	h.got[part] = append(h.got[part], v)
	h.mu.Unlock()
	return nil
}

func TestConsumer_KeepsPartitionOrderAcrossWorkers(t *testing.T) {
	c, err := NewConsumer(WithConsumerBrokers([]string{"k:9092"}), WithConsumerRegisterer(prometheus.NewRegistry()),
		WithConsumerWorkers(4), WithConsumerBufferSize(2))
	require.NoError(t, err)
	h := &orderedHandler{got: make(map[string][]int)}
	c.RegisterHandler(h)
	c.startWorkers()

	const perPartition = 50
	for n := 0; n < perPartition; n++ {
		for p := 0; p < 3; p++ {
			require.True(t, c.dispatch(&message{
				topic: "scenarios",
				km:    kafka.Message{Partition: p, Offset: int64(n), Value: []byte(fmt.Sprintf("%d:%d", p, n))},
			}))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	for p := 0; p < 3; p++ {
		got := h.got[strconv.Itoa(p)]
		require.Len(t, got, perPartition)
		assert.True(t, sort.IntsAreSorted(got), "partition %d handled out of order: %v", p, got)
	}
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "hook", failureKind(Permanent(&HookError{Code: "ERR_EMPTY"})))
	assert.Equal(t, "permanent", failureKind(Permanent(errors.New("x"))))
	assert.Equal(t, "exhausted", failureKind(errors.New("x")))
}

type stubHandler struct {
	topic string
	err   error
}

func (h stubHandler) Topic() string                         { return h.topic }
func (h stubHandler) Handle(context.Context, []byte) error { return h.err }
