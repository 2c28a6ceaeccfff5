package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"zeth/zeth-prover/logging"
	"zeth/zeth-prover/prover"

	"github.com/google/uuid"
)

// ProofResult is returned by /prove and accepted as-is by /verify.
type ProofResult struct {
	Proof        *prover.Proof                 `json:"proof"`
	PublicInputs *prover.JoinSplitPublicInputs `json:"public_inputs"`
	TreeDepth    uint32                        `json:"tree_depth"`
	DurationMs   int64                         `json:"proof_duration_ms,omitempty"`
}

func findProvingSystem(provingSystems []*prover.ProvingSystem, shape prover.CircuitShape) *prover.ProvingSystem {
	for _, ps := range provingSystems {
		if ps.CircuitShape == shape {
			return ps
		}
	}
	return nil
}

func parametersShape(params *prover.JoinSplitParameters) prover.CircuitShape {
	shape := prover.CircuitShape{
		NumberOfInputs:  params.NumberOfInputs(),
		NumberOfOutputs: params.NumberOfOutputs(),
	}
	if len(params.Inputs) > 0 {
		shape.TreeDepth = uint32(len(params.Inputs[0].PathElements))
	}
	return shape
}

// proveJoinSplit is shared by the synchronous handler and the queue worker.
func proveJoinSplit(provingSystems []*prover.ProvingSystem, buf []byte) (*ProofResult, *Error) {
	var params prover.JoinSplitParameters
	if err := json.Unmarshal(buf, &params); err != nil {
		return nil, malformedBodyError(err)
	}

	shape := parametersShape(&params)
	ps := findProvingSystem(provingSystems, shape)
	if ps == nil {
		return nil, provingError(fmt.Errorf("no proving system for shape %s", shape))
	}

	timer := StartProofTimer(shape.String())
	proof, err := ps.ProveJoinSplit(&params)
	if err != nil {
		if errors.Is(err, prover.ErrInvalidShape) || errors.Is(err, prover.ErrNotInField) {
			timer.ObserveError("invalid_shape")
			return nil, malformedBodyError(err)
		}
		timer.ObserveError("proof_generation")
		return nil, provingError(err)
	}
	elapsed := timer.ObserveDuration()

	public := params.PublicInputs()
	return &ProofResult{
		Proof:        proof,
		PublicInputs: &public,
		TreeDepth:    shape.TreeDepth,
		DurationMs:   elapsed.Milliseconds(),
	}, nil
}

type proveHandler struct {
	provingSystems []*prover.ProvingSystem
	redisQueue     *RedisQueue
	timeout        time.Duration
}

func (handler proveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		logging.Logger().Error().Err(err).Msg("Error reading request body")
		malformedBodyError(err).send(w)
		return
	}
	CircuitInputSize.Observe(float64(len(buf)))

	forceAsync := r.Header.Get("X-Async") == "true" || r.URL.Query().Get("async") == "true"
	useQueue := forceAsync && handler.redisQueue != nil

	logging.Logger().Info().
		Bool("force_async", forceAsync).
		Bool("use_queue", useQueue).
		Msg("Processing prove request")

	if useQueue {
		handler.handleAsyncProof(w, r, buf)
	} else {
		handler.handleSyncProof(w, r, buf)
	}
}

func (handler proveHandler) handleAsyncProof(w http.ResponseWriter, r *http.Request, buf []byte) {
	var params prover.JoinSplitParameters
	if err := json.Unmarshal(buf, &params); err != nil {
		malformedBodyError(err).send(w)
		return
	}
	shape := parametersShape(&params)
	if findProvingSystem(handler.provingSystems, shape) == nil {
		provingError(fmt.Errorf("no proving system for shape %s", shape)).send(w)
		return
	}

	jobID := uuid.New().String()
	job := &ProofJob{
		ID:        jobID,
		Type:      "joinsplit",
		Payload:   json.RawMessage(buf),
		CreatedAt: time.Now(),
	}

	err := handler.redisQueue.StoreJobMeta(jobID, &JobMeta{
		Queue:       JoinSplitQueue,
		Shape:       shape.String(),
		Status:      "queued",
		SubmittedAt: job.CreatedAt,
	})
	if err == nil {
		err = handler.redisQueue.EnqueueProof(JoinSplitQueue, job)
		if err != nil {
			// the job will be proven synchronously, so nothing may report it as queued
			if delErr := handler.redisQueue.DeleteJobMeta(jobID); delErr != nil {
				logging.Logger().Error().Err(delErr).Str("job_id", jobID).Msg("Could not remove job meta")
			}
		}
	}
	if err != nil {
		logging.Logger().Warn().Err(err).Msg("Queue failed, falling back to synchronous processing")
		handler.handleSyncProof(w, r, buf)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":     jobID,
		"status":     "queued",
		"shape":      shape.String(),
		"status_url": fmt.Sprintf("/prove/status?job_id=%s", jobID),
	})
}

func (handler proveHandler) handleSyncProof(w http.ResponseWriter, r *http.Request, buf []byte) {
	ctx, cancel := context.WithTimeout(r.Context(), handler.timeout)
	defer cancel()

	type proofResult struct {
		result *ProofResult
		err    *Error
	}
	resultChan := make(chan proofResult, 1)

	go func() {
		result, proofErr := proveJoinSplit(handler.provingSystems, buf)
		resultChan <- proofResult{result: result, err: proofErr}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			logging.Logger().Info().Str("code", res.err.Code).Msg(res.err.Message)
			res.err.send(w)
			return
		}
		writeJSON(w, http.StatusOK, res.result)

	case <-ctx.Done():
		(&Error{
			StatusCode: http.StatusRequestTimeout,
			Code:       "proof_timeout",
			Message:    fmt.Sprintf("Proof generation timed out after %s. Use asynchronous mode with the X-Async: true header.", handler.timeout),
		}).send(w)
		logging.Logger().Warn().Dur("timeout", handler.timeout).Msg("Synchronous proof timed out")
	}
}

type verifyHandler struct {
	provingSystems []*prover.ProvingSystem
}

func (handler verifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var request ProofResult
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		malformedBodyError(err).send(w)
		return
	}
	if request.Proof == nil || request.PublicInputs == nil {
		malformedBodyError(fmt.Errorf("proof and public_inputs are required")).send(w)
		return
	}

	shape := prover.CircuitShape{
		NumberOfInputs:  uint32(len(request.PublicInputs.Nullifiers)),
		NumberOfOutputs: uint32(len(request.PublicInputs.Commitments)),
		TreeDepth:       request.TreeDepth,
	}
	ps := findProvingSystem(handler.provingSystems, shape)
	if ps == nil {
		verificationError(fmt.Errorf("no proving system for shape %s", shape)).send(w)
		return
	}

	if err := ps.VerifyJoinSplit(request.PublicInputs, request.Proof); err != nil {
		RecordVerification(false)
		verificationError(err).send(w)
		return
	}
	RecordVerification(true)
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

type proofStatusHandler struct {
	redisQueue *RedisQueue
}

func isValidJobID(jobID string) bool {
	_, err := uuid.Parse(jobID)
	return err == nil
}

func (handler proofStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		malformedBodyError(fmt.Errorf("job_id parameter required")).send(w)
		return
	}
	if !isValidJobID(jobID) {
		(&Error{
			StatusCode: http.StatusBadRequest,
			Code:       "invalid_job_id",
			Message:    "Invalid job ID format. Job ID must be a valid UUID.",
		}).send(w)
		return
	}

	result, err := handler.redisQueue.GetResult(jobID)
	if err != nil {
		unexpectedError(err).send(w)
		return
	}
	if result != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job_id": jobID,
			"status": "completed",
			"result": result,
		})
		return
	}

	meta, err := handler.redisQueue.GetJobMeta(jobID)
	if err != nil {
		unexpectedError(err).send(w)
		return
	}
	if meta == nil {
		(&Error{
			StatusCode: http.StatusNotFound,
			Code:       "job_not_found",
			Message:    fmt.Sprintf("Job with ID %s not found. It may have expired or never existed.", jobID),
		}).send(w)
		return
	}

	response := map[string]interface{}{
		"job_id":       jobID,
		"status":       meta.Status,
		"shape":        meta.Shape,
		"submitted_at": meta.SubmittedAt,
	}
	if meta.Error != "" {
		response["error"] = meta.Error
	}
	writeJSON(w, http.StatusAccepted, response)
}

type queueStatsHandler struct {
	redisQueue *RedisQueue
}

func (handler queueStatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := handler.redisQueue.GetQueueStats()
	if err != nil {
		unexpectedError(err).send(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queues":        stats,
		"total_pending": stats[JoinSplitQueue],
		"total_active":  stats[JoinSplitProcessingQueue],
		"total_failed":  stats[FailedQueue],
		"timestamp":     time.Now().Unix(),
	})
}
