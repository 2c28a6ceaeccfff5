package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"zeth/zeth-prover/logging"

	"github.com/redis/go-redis/v9"
)

const (
	JoinSplitQueue           = "zk_joinsplit_queue"
	JoinSplitProcessingQueue = "zk_joinsplit_processing_queue"
	FailedQueue              = "zk_failed_queue"

	resultTTL = 1 * time.Hour
)

type RedisQueue struct {
	Client *redis.Client
	Ctx    context.Context
}

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 32
	opts.MinIdleConns = 2
	opts.DialTimeout = 10 * time.Second
	opts.ReadTimeout = 30 * time.Second
	opts.WriteTimeout = 10 * time.Second
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Logger().Info().
		Str("redis_addr", opts.Addr).
		Int("pool_size", opts.PoolSize).
		Dur("read_timeout", opts.ReadTimeout).
		Msg("Redis client configured")

	return &RedisQueue{Client: client, Ctx: context.Background()}, nil
}

func (rq *RedisQueue) Close() error {
	return rq.Client.Close()
}

func (rq *RedisQueue) EnqueueProof(queueName string, job *ProofJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := rq.Client.RPush(rq.Ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	logging.Logger().Info().
		Str("job_id", job.ID).
		Str("queue", queueName).
		Msg("Job enqueued")
	return nil
}

// DequeueProof blocks for up to timeout. It returns nil, nil when the queue stayed empty.
func (rq *RedisQueue) DequeueProof(queueName string, timeout time.Duration) (*ProofJob, error) {
	result, err := rq.Client.BLPop(rq.Ctx, timeout, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	if len(result) < 2 {
		return nil, fmt.Errorf("invalid result from Redis")
	}

	var job ProofJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

type JobMeta struct {
	Queue       string    `json:"queue"`
	Shape       string    `json:"shape"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	Error       string    `json:"error,omitempty"`
}

func jobMetaKey(jobID string) string {
	return fmt.Sprintf("zk_job_meta_%s", jobID)
}

func resultKey(jobID string) string {
	return fmt.Sprintf("zk_result_%s", jobID)
}

// StoreJobMeta records job state so the status endpoint can answer before a worker picks it up.
func (rq *RedisQueue) StoreJobMeta(jobID string, meta *JobMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal job meta: %w", err)
	}
	if err := rq.Client.Set(rq.Ctx, jobMetaKey(jobID), data, resultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job meta: %w", err)
	}
	return nil
}

// GetJobMeta returns nil, nil for unknown jobs.
func (rq *RedisQueue) GetJobMeta(jobID string) (*JobMeta, error) {
	result, err := rq.Client.Get(rq.Ctx, jobMetaKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job meta: %w", err)
	}

	var meta JobMeta
	if err := json.Unmarshal([]byte(result), &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job meta: %w", err)
	}
	return &meta, nil
}

func (rq *RedisQueue) DeleteJobMeta(jobID string) error {
	if err := rq.Client.Del(rq.Ctx, jobMetaKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to delete job meta: %w", err)
	}
	return nil
}

func (rq *RedisQueue) UpdateJobStatus(jobID string, status string, jobErr error) error {
	meta, err := rq.GetJobMeta(jobID)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = &JobMeta{Queue: JoinSplitQueue, SubmittedAt: time.Now()}
	}
	meta.Status = status
	if jobErr != nil {
		meta.Error = jobErr.Error()
	}
	return rq.StoreJobMeta(jobID, meta)
}

func (rq *RedisQueue) StoreResult(jobID string, result *ProofResult) error {
	resultData, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := rq.Client.Set(rq.Ctx, resultKey(jobID), resultData, resultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}

	logging.Logger().Info().Str("job_id", jobID).Msg("Result stored")
	return nil
}

// GetResult returns nil, nil while the job has no result.
func (rq *RedisQueue) GetResult(jobID string) (*ProofResult, error) {
	data, err := rq.Client.Get(rq.Ctx, resultKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result ProofResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		logging.Logger().Error().Str("job_id", jobID).Err(err).Msg("Failed to unmarshal result")
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

func (rq *RedisQueue) GetQueueStats() (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, queue := range []string{JoinSplitQueue, JoinSplitProcessingQueue, FailedQueue} {
		length, err := rq.Client.LLen(rq.Ctx, queue).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get length of %s: %w", queue, err)
		}
		stats[queue] = length
	}
	return stats, nil
}
