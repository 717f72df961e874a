package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"watercheck/db"
	"watercheck/ml"
	"watercheck/monitoring"
)

var errInvalidBody = errors.New("Invalid input format. Request body must be a JSON object of numeric or numeric string values.")

// Predictor turns an ordered feature vector into a verdict.
type Predictor interface {
	Predict(ctx context.Context, features []float64) (ml.Label, error)
}

// Publisher receives every record after it has been stored.
type Publisher interface {
	Publish(messageType monitoring.MessageType, data any)
}

type HandlerOptions struct {
	Predictor Predictor
	Store     db.LogStore
	Publisher Publisher
	// Stream serves GET /logs/stream when set.
	Stream http.Handler
	// Metrics serves GET /metrics when set.
	Metrics      http.Handler
	DefaultLimit int
	Logger       *zap.Logger
	Now          func() time.Time
}

type Handler struct {
	predictor    Predictor
	store        db.LogStore
	publisher    Publisher
	stream       http.Handler
	metrics      http.Handler
	defaultLimit int
	logger       *zap.Logger
	now          func() time.Time
}

func NewHandler(opts HandlerOptions) *Handler {
	h := &Handler{
		predictor:    opts.Predictor,
		store:        opts.Store,
		publisher:    opts.Publisher,
		stream:       opts.Stream,
		metrics:      opts.Metrics,
		defaultLimit: opts.DefaultLimit,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /logs", h.handleLogs)
	mux.HandleFunc("GET /logs/download", h.handleLogsDownload)
	if h.stream != nil {
		mux.Handle("GET /logs/stream", h.stream)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := h.logger.With(zap.String("request_id", GetRequestID(r.Context())))

	raw, err := decodeObject(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		} else {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		monitoring.ObservePrediction(time.Since(start), monitoring.OutcomeValidationError, "")
		return
	}

	reading, err := ml.NormalizeFeatures(raw)
	if err != nil {
		logger.Info("predict input rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		monitoring.ObservePrediction(time.Since(start), monitoring.OutcomeValidationError, "")
		return
	}

	label, err := h.predictor.Predict(r.Context(), reading.Vector())
	if err != nil {
		logger.Warn("inference failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		monitoring.ObservePrediction(time.Since(start), monitoring.OutcomeInferenceError, "")
		return
	}

	record, err := db.NewLogRecord(h.now(), reading.Inputs(), string(label))
	if err != nil {
		logger.Error("log record not encodable", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		monitoring.ObservePrediction(time.Since(start), monitoring.OutcomeStorageError, "")
		return
	}

	// The verdict is only reported once the record is durable.
	if err := h.store.Append(r.Context(), record); err != nil {
		logger.Error("prediction log write failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		monitoring.ObservePrediction(time.Since(start), monitoring.OutcomeStorageError, "")
		return
	}

	writeJSON(w, http.StatusOK, record)
	monitoring.ObservePrediction(time.Since(start), monitoring.OutcomeSuccess, record.Result)
	logger.Debug("prediction logged", zap.String("timestamp", record.Timestamp), zap.String("result", record.Result))

	if h.publisher != nil {
		h.publisher.Publish(monitoring.PredictionLogged, record)
	}
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	h.serveLogs(w, r, false)
}

func (h *Handler) handleLogsDownload(w http.ResponseWriter, r *http.Request) {
	h.serveLogs(w, r, true)
}

func (h *Handler) serveLogs(w http.ResponseWriter, r *http.Request, attachment bool) {
	limit, err := h.parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.store.ReadAll(r.Context(), limit)
	if err != nil {
		h.logger.Error("prediction log read failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		monitoring.ObserveLogRead(monitoring.OutcomeStorageError)
		return
	}

	if records == nil {
		records = []db.LogRecord{}
	}
	if attachment {
		w.Header().Set("Content-Disposition", `attachment; filename="logs.json"`)
	}
	writeJSON(w, http.StatusOK, records)
	monitoring.ObserveLogRead(monitoring.OutcomeSuccess)
}

func (h *Handler) parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return h.defaultLimit, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit %q: must be a positive integer", limitStr)
	}
	return limit, nil
}

func decodeObject(r *http.Request) (map[string]any, error) {
	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()

	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errInvalidBody
	}
	if raw == nil {
		return nil, errInvalidBody
	}
	// Exactly one JSON value is allowed.
	if _, err := decoder.Token(); err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, errInvalidBody
	}
	return raw, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
