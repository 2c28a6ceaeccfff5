package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"zeth/zeth-prover/logging"
	"zeth/zeth-prover/prover"
)

type ProofJob struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type QueueWorker interface {
	Start()
	Stop()
}

var _ QueueWorker = (*JoinSplitQueueWorker)(nil)

// JoinSplitQueueWorker drains JoinSplitQueue and stores results for /prove/status.
type JoinSplitQueueWorker struct {
	queue               *RedisQueue
	provingSystems      []*prover.ProvingSystem
	stopChan            chan struct{}
	stopOnce            sync.Once
	done                chan struct{}
	queueName           string
	processingQueueName string
}

func NewJoinSplitQueueWorker(redisQueue *RedisQueue, provingSystems []*prover.ProvingSystem) *JoinSplitQueueWorker {
	return &JoinSplitQueueWorker{
		queue:               redisQueue,
		provingSystems:      provingSystems,
		stopChan:            make(chan struct{}),
		done:                make(chan struct{}),
		queueName:           JoinSplitQueue,
		processingQueueName: JoinSplitProcessingQueue,
	}
}

func (w *JoinSplitQueueWorker) Start() {
	defer close(w.done)
	logging.Logger().Info().Str("queue", w.queueName).Msg("Starting queue worker")

	for {
		select {
		case <-w.stopChan:
			logging.Logger().Info().Str("queue", w.queueName).Msg("Queue worker stopping")
			return
		default:
			w.processJobs()
		}
	}
}

// Stop returns once Start has finished its current job and exited.
func (w *JoinSplitQueueWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.done
}

func (w *JoinSplitQueueWorker) processJobs() {
	job, err := w.queue.DequeueProof(w.queueName, 2*time.Second)
	if err != nil {
		logging.Logger().Error().Err(err).Str("queue", w.queueName).Msg("Error dequeuing from queue")
		select {
		case <-w.stopChan:
		case <-time.After(2 * time.Second):
		}
		return
	}
	if job == nil {
		return
	}

	QueueWaitTime.Observe(time.Since(job.CreatedAt).Seconds())
	logging.Logger().Info().
		Str("job_id", job.ID).
		Str("queue", w.queueName).
		Msg("Processing proof job")

	if err := w.queue.EnqueueProof(w.processingQueueName, job); err != nil {
		logging.Logger().Warn().Err(err).Str("job_id", job.ID).Msg("Could not track job as processing")
	}
	if err := w.queue.UpdateJobStatus(job.ID, "processing", nil); err != nil {
		logging.Logger().Warn().Err(err).Str("job_id", job.ID).Msg("Could not update job status")
	}

	err = w.processProofJob(job)
	w.removeFromProcessingQueue(job.ID)
	RecordJobComplete(err == nil)

	if err != nil {
		logging.Logger().Error().
			Err(err).
			Str("job_id", job.ID).
			Msg("Failed to process proof job")
		w.addToFailedQueue(job, err)
	}
}

func (w *JoinSplitQueueWorker) processProofJob(job *ProofJob) error {
	result, proofErr := proveJoinSplit(w.provingSystems, job.Payload)
	if proofErr != nil {
		return fmt.Errorf("%s: %s", proofErr.Code, proofErr.Message)
	}
	if err := w.queue.StoreResult(job.ID, result); err != nil {
		return err
	}
	return w.queue.UpdateJobStatus(job.ID, "completed", nil)
}

func (w *JoinSplitQueueWorker) removeFromProcessingQueue(jobID string) {
	items, err := w.queue.Client.LRange(w.queue.Ctx, w.processingQueueName, 0, -1).Result()
	if err != nil {
		return
	}
	for _, item := range items {
		var job ProofJob
		if json.Unmarshal([]byte(item), &job) == nil && job.ID == jobID {
			w.queue.Client.LRem(w.queue.Ctx, w.processingQueueName, 1, item)
			return
		}
	}
}

func (w *JoinSplitQueueWorker) addToFailedQueue(job *ProofJob, jobErr error) {
	failedData, _ := json.Marshal(map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	})

	failedJob := &ProofJob{
		ID:        job.ID,
		Type:      "failed",
		Payload:   json.RawMessage(failedData),
		CreatedAt: time.Now(),
	}
	if err := w.queue.EnqueueProof(FailedQueue, failedJob); err != nil {
		logging.Logger().Error().Err(err).Str("job_id", job.ID).Msg("Could not record failed job")
	}
	if err := w.queue.UpdateJobStatus(job.ID, "failed", jobErr); err != nil {
		logging.Logger().Error().Err(err).Str("job_id", job.ID).Msg("Could not update job status")
	}
}
