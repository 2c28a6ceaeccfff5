package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"zeth/zeth-prover/logging"
	"zeth/zeth-prover/prover"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func malformedBodyError(err error) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "malformed_body", Message: err.Error()}
}

func provingError(err error) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "proving_error", Message: err.Error()}
}

func verificationError(err error) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: "verification_error", Message: err.Error()}
}

func unexpectedError(err error) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: "unexpected_error", Message: err.Error()}
}

func (error *Error) Error() string {
	return fmt.Sprintf("%s: %s", error.Code, error.Message)
}

func (error *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"code":    error.Code,
		"message": error.Message,
	})
}

func (error *Error) send(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(error.StatusCode)
	jsonBytes, err := error.MarshalJSON()
	if err != nil {
		jsonBytes = []byte(`{"code": "unexpected_error", "message": "failed to marshal error"}`)
	}
	length, err := w.Write(jsonBytes)
	if err != nil || length != len(jsonBytes) {
		logging.Logger().Error().Err(err).Msg("error writing response")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Logger().Error().Err(err).Msg("error writing response")
	}
}

type Config struct {
	ProverAddress  string
	MetricsAddress string
	APIKey         string
	// ProofTimeout bounds synchronous /prove requests.
	ProofTimeout time.Duration
}

const defaultProofTimeout = 60 * time.Second

func spawnServerJob(server *http.Server, label string) RunningJob {
	start := func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			panic(fmt.Sprintf("%s failed: %s", label, err))
		}
	}
	shutdown := func() {
		logging.Logger().Info().Msgf("shutting down %s", label)
		err := server.Shutdown(context.Background())
		if err != nil {
			logging.Logger().Error().Err(err).Msgf("error when shutting down %s", label)
		}
		logging.Logger().Info().Msgf("%s shut down", label)
	}
	return SpawnJob(start, shutdown)
}

// NewHandler builds the prover API. redisQueue may be nil, which disables asynchronous proving.
func NewHandler(config *Config, redisQueue *RedisQueue, provingSystems []*prover.ProvingSystem) http.Handler {
	timeout := config.ProofTimeout
	if timeout <= 0 {
		timeout = defaultProofTimeout
	}

	proverMux := http.NewServeMux()
	proverMux.Handle("/prove", proveHandler{
		provingSystems: provingSystems,
		redisQueue:     redisQueue,
		timeout:        timeout,
	})
	proverMux.Handle("/verify", verifyHandler{provingSystems: provingSystems})
	proverMux.Handle("/health", healthHandler{})
	if redisQueue != nil {
		proverMux.Handle("/prove/status", proofStatusHandler{redisQueue: redisQueue})
		proverMux.Handle("/queue/stats", queueStatsHandler{redisQueue: redisQueue})
	}

	corsHandler := handlers.CORS(
		handlers.AllowedHeaders([]string{
			"X-Requested-With",
			"Content-Type",
			"Authorization",
			"X-API-Key",
			"X-Async",
			"X-Sync",
		}),
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
	)
	return corsHandler(NewAPIKeyMiddleware(config.APIKey)(proverMux))
}

func Run(config *Config, redisQueue *RedisQueue, provingSystems []*prover.ProvingSystem) RunningJob {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: config.MetricsAddress, Handler: metricsMux}
	metricsJob := spawnServerJob(metricsServer, "metrics server")
	logging.Logger().Info().Str("addr", config.MetricsAddress).Msg("metrics server started")

	proverServer := &http.Server{Addr: config.ProverAddress, Handler: NewHandler(config, redisQueue, provingSystems)}
	proverJob := spawnServerJob(proverServer, "prover server")
	logging.Logger().Info().
		Str("addr", config.ProverAddress).
		Bool("queue_enabled", redisQueue != nil).
		Msg("prover server started")

	if redisQueue == nil {
		return CombineJobs(metricsJob, proverJob)
	}

	worker := NewJoinSplitQueueWorker(redisQueue, provingSystems)
	workerJob := SpawnJob(worker.Start, worker.Stop)
	return CombineJobs(metricsJob, proverJob, workerJob)
}

type healthHandler struct {
}

func (handler healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	logging.Logger().Debug().Msg("received health check request")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
