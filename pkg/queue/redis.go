package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"RiskGraph/pkg/logger"
)

// QueueMode selects which half of the queue an instance runs.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

// promoteDue moves due retries back to the head of the work list in one step,
// so two consumers never promote the same message twice.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('RPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue is a reliable work queue on Redis lists. Producers LPUSH onto
// the work list; workers BLMOVE a message into the processing list and
// remove it once handled. Failed messages wait in a sorted set scored by
// their due time, exhausted or poison messages end in the dead letter list.
//
// Start requeues whatever a previous run left in the processing list, so run
// one consumer per key prefix.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	mode      QueueMode
	keyPrefix string
	now       func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the prefix of every key. Default "riskgraph:queue".
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}

	rq := &RedisQueue{
		logger:    lgr.With(logger.String("component", "redis_queue")),
		config:    config,
		client:    client,
		mode:      mode,
		keyPrefix: "riskgraph:queue",
		now:       time.Now,
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// NewRedisPublisher returns a started producer-only queue.
func NewRedisPublisher(lgr *logger.Logger, client *redis.Client, opts ...RedisQueueOption) (*RedisQueue, error) {
	q := NewRedisQueue(lgr, &QueueConfig{}, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		return nil, fmt.Errorf("redis publisher: %w", err)
	}
	return q, nil
}

// NewRedisConsumer returns a consumer-only queue with jobs registered. It is
// not started.
func NewRedisConsumer(lgr *logger.Logger, config *QueueConfig, client *redis.Client, jobs []Job, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, config, client, ModeConsumerOnly, opts...)
	q.RegisterJobs(jobs)
	return q
}

func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		r.RegisterJob(job)
	}
}

// RegisterJob binds job to its message type. Ignored on a producer-only
// queue; the first job of a type wins.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job already registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start pings Redis and, unless producer-only, requeues in-flight messages
// and launches the workers and the retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	if r.mode == ModeProducerOnly {
		r.logger.Info("redis publisher started", logger.String("addr", r.client.Options().Addr))
		return nil
	}

	requeued, err := r.requeueInFlight(ctx)
	if err != nil {
		r.cancel()
		r.running = false
		return err
	}
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.promoter()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.Int64("requeued", requeued),
		logger.String("prefix", r.keyPrefix),
		logger.String("mode", r.modeString()),
	)
	return nil
}

// Stop cancels the workers and waits for them. A message whose job was
// cancelled stays in the processing list and is requeued by the next Start.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes payload as a new message of msgType and returns its id.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return "", fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg, err := NewMessage(uuid.NewString(), msgType, payload, r.now())
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.QueueKey(), b).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	_, err := r.Enqueue(ctx, msgType, payload)
	return err
}

// Depth reports pending (including in-flight), scheduled-retry and
// dead-lettered message counts.
func (r *RedisQueue) Depth(ctx context.Context) (pending, retry, dead int64, err error) {
	pipe := r.client.Pipeline()
	p := pipe.LLen(ctx, r.QueueKey())
	inflight := pipe.LLen(ctx, r.ProcessingKey())
	rt := pipe.ZCard(ctx, r.RetryKey())
	d := pipe.LLen(ctx, r.DeadLetterKey())
	if _, err = pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return p.Val() + inflight.Val(), rt.Val(), d.Val(), nil
}

func (r *RedisQueue) requeueInFlight(ctx context.Context) (int64, error) {
	var n int64
	for {
		err := r.client.LMove(ctx, r.ProcessingKey(), r.QueueKey(), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeue in-flight: %w", err)
		}
		n++
	}
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		raw, err := r.client.BLMove(r.ctx, r.QueueKey(), r.ProcessingKey(), "RIGHT", "LEFT", time.Second).Result()
		switch {
		case err == nil:
			r.process(raw)
		case errors.Is(err, redis.Nil), r.ctx.Err() != nil:
		default:
			r.logger.Error("blmove", logger.Int("worker_id", id), logger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-r.ctx.Done():
			}
		}
	}
}

func (r *RedisQueue) process(raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.logger.Error("undecodable message", logger.Error(err))
		r.settle(raw, r.DeadLetterKey(), raw, 0)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message type", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.settle(raw, r.DeadLetterKey(), raw, 0)
		return
	}

	start := r.now()
	err := job.Handle(r.ctx, msg.Payload)
	elapsed := r.now().Sub(start)
	switch {
	case err == nil:
		r.settle(raw, "", "", 0)
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", elapsed),
		)
	case errors.Is(err, context.Canceled) && r.ctx.Err() != nil:
		// left in the processing list for the next Start
	default:
		r.fail(raw, msg, job, err)
	}
}

func (r *RedisQueue) fail(raw string, msg Message, job Job, err error) {
	log := r.logger.With(
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
	)
	retryable := r.config.Retryable == nil || r.config.Retryable(err)
	if !retryable || msg.Attempts >= r.config.RetryLimit {
		log.Error("message dead-lettered", logger.Bool("retryable", retryable), logger.Error(err))
		r.settle(raw, r.DeadLetterKey(), raw, 0)
		return
	}

	msg.Attempts++
	b, merr := json.Marshal(msg)
	if merr != nil {
		log.Error("marshal retry", logger.Error(merr))
		r.settle(raw, r.DeadLetterKey(), raw, 0)
		return
	}
	due := r.now().Add(r.config.RetryDelay)
	log.Warn("message failed, retry scheduled", logger.String("retry_at", due.Format(time.RFC3339)), logger.Error(err))
	r.settle(raw, r.RetryKey(), string(b), float64(due.UnixMilli()))
}

// settle removes raw from the processing list and, in the same transaction,
// pushes next onto dest: a list, or the retry set when score is non-zero.
func (r *RedisQueue) settle(raw, dest, next string, score float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, r.ProcessingKey(), 1, raw)
	switch {
	case dest == "":
	case score != 0:
		pipe.ZAdd(ctx, dest, redis.Z{Score: score, Member: next})
	default:
		pipe.LPush(ctx, dest, next)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("settle message", logger.String("dest", dest), logger.Error(err))
	}
}

func (r *RedisQueue) promoter() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			n, err := promoteDue.Run(r.ctx, r.client,
				[]string{r.RetryKey(), r.QueueKey()},
				strconv.FormatInt(r.now().UnixMilli(), 10), 100,
			).Int()
			if err != nil && r.ctx.Err() == nil {
				r.logger.Error("promote retries", logger.Error(err))
			} else if n > 0 {
				r.logger.Debug("retries promoted", logger.Int("count", n))
			}
		}
	}
}

func (r *RedisQueue) modeString() string {
	switch r.mode {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

func (r *RedisQueue) QueueKey() string { return r.keyPrefix + ":messages" }

func (r *RedisQueue) ProcessingKey() string { return r.keyPrefix + ":processing" }

func (r *RedisQueue) RetryKey() string { return r.keyPrefix + ":retry" }

func (r *RedisQueue) DeadLetterKey() string { return r.keyPrefix + ":dlq" }
