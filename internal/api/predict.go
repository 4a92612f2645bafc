package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/fraud-detection/internal/audit"
	"github.com/JakeFAU/fraud-detection/internal/clock"
	"github.com/JakeFAU/fraud-detection/internal/features"
	"github.com/JakeFAU/fraud-detection/internal/ids"
	"github.com/JakeFAU/fraud-detection/internal/model"
	"github.com/JakeFAU/fraud-detection/internal/ratelimit"
	"github.com/JakeFAU/fraud-detection/internal/telemetry"
)

// Prediction labels returned by POST /predict.
const (
	LabelFraud    = "Fraud"
	LabelNotFraud = "Not Fraud"
)

const maxPredictBody = 1 << 20

// Label maps a class to its response label.
func Label(class int) string {
	if class == 1 {
		return LabelFraud
	}
	return LabelNotFraud
}

// PredictRequest is any JSON object carrying features.RequiredFeatures.
type PredictRequest map[string]any

// PredictResponse is the POST /predict success body.
type PredictResponse struct {
	Prediction   string  `json:"prediction"`
	Probability  float64 `json:"probability"`
	PredictionID string  `json:"prediction_id"`
	ModelVersion string  `json:"model_version"`
}

// ModelInfo is the GET /v1/model body.
type ModelInfo struct {
	Kind         model.Kind `json:"kind"`
	Version      string     `json:"version"`
	FeatureNames []string   `json:"feature_names"`
	TrainedAt    time.Time  `json:"trained_at"`
	Threshold    float64    `json:"threshold,omitempty"`
}

// PredictDeps are the collaborators of the prediction service.
type PredictDeps struct {
	// Model may be nil; the service then reports not ready and answers 503.
	Model  model.Classifier
	IDs    ids.Generator
	Clock  clock.Clock
	Audit  audit.Emitter
	Tracer trace.Tracer
}

// PredictServer serves the fraud classifier over HTTP.
type PredictServer struct {
	router chi.Router
	model  model.Classifier
	ids    ids.Generator
	clock  clock.Clock
	audit  audit.Emitter
	tracer trace.Tracer
	logger *zap.Logger
}

// NewPredictServer validates the model's feature order and wires routes.
func NewPredictServer(deps PredictDeps, opts Options) (*PredictServer, error) {
	if deps.Model != nil {
		if err := features.CheckNames(deps.Model.FeatureNames()); err != nil {
			return nil, err
		}
	}
	s := &PredictServer{
		model:  deps.Model,
		ids:    deps.IDs,
		clock:  deps.Clock,
		audit:  deps.Audit,
		tracer: deps.Tracer,
		logger: opts.logger().Named("predict"),
	}
	if s.ids == nil {
		s.ids = ids.NewUUIDv7()
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.tracer == nil {
		s.tracer = telemetry.Tracer("fraud-detection/api")
	}
	s.router = NewRouter(opts, s.ready, func(r chi.Router) {
		r.Get("/", s.home)
		r.Post("/predict", s.predict)
		r.Get("/v1/model", s.modelInfo)
	})
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *PredictServer) Handler() http.Handler {
	return s.router
}

func (s *PredictServer) ready() bool {
	return s.model != nil
}

func (s *PredictServer) home(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("Home endpoint was reached")
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Fraud Detection API is running!"})
}

func (s *PredictServer) modelInfo(w http.ResponseWriter, _ *http.Request) {
	if s.model == nil {
		WriteError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	art := s.model.Artifact()
	WriteJSON(w, http.StatusOK, ModelInfo{
		Kind:         art.Kind,
		Version:      art.Version,
		FeatureNames: art.FeatureNames,
		TrainedAt:    art.TrainedAt,
		Threshold:    art.Threshold,
	})
}

func (s *PredictServer) predict(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()
	_, span := s.tracer.Start(r.Context(), "predict")
	defer span.End()

	if s.model == nil {
		WriteError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	client := ratelimit.ClientKey(r)
	reject := func(status int, reason, msg string) {
		span.SetStatus(codes.Error, reason)
		s.audit.Emit(audit.Event{
			TS:      s.clock.Now(),
			Outcome: audit.OutcomeRejected,
			Reason:  reason,
			Latency: s.clock.Now().Sub(start),
			Client:  client,
		})
		WriteError(w, status, msg)
	}

	payload, err := DecodeObject(r.Body)
	if err != nil {
		reject(http.StatusBadRequest, "invalid_json", "invalid JSON")
		return
	}
	vec, err := features.Extract(payload)
	if err != nil {
		var invalid *features.InvalidFeatureError
		switch {
		case errors.Is(err, features.ErrMissingFeatures):
			s.logger.Error("Missing one or more required features in the request", zap.Error(err))
			reject(http.StatusBadRequest, "missing_features", "Missing one or more required features")
		case errors.As(err, &invalid):
			s.logger.Warn("invalid feature value", zap.String("feature", invalid.Name), zap.Error(err))
			reject(http.StatusBadRequest, "invalid_feature", "invalid value for feature "+invalid.Name)
		default:
			reject(http.StatusBadRequest, "invalid_features", err.Error())
		}
		return
	}

	class, err := s.model.Predict(vec)
	if err != nil {
		s.logger.Error("prediction failed", zap.Error(err))
		span.RecordError(err)
		WriteError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	proba, err := s.model.PredictProba(vec)
	if err != nil {
		s.logger.Error("probability failed", zap.Error(err))
		span.RecordError(err)
		WriteError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Error("prediction id failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	label := Label(class)
	version := s.model.Artifact().Version
	s.logger.Info("Prediction made", zap.Int("class", class), zap.Float64("probability", proba), zap.Stringer("prediction_id", id))
	s.logger.Info("Based on the data the user is: " + label)
	span.SetAttributes(
		attribute.String("prediction.label", label),
		attribute.Float64("prediction.probability", proba),
		attribute.String("model.version", version),
	)

	s.audit.Emit(audit.Event{
		PredictionID: id,
		TS:           s.clock.Now(),
		Outcome:      audit.OutcomePredicted,
		Label:        label,
		Fraud:        class == 1,
		Probability:  proba,
		ModelVersion: version,
		Latency:      s.clock.Now().Sub(start),
		Client:       client,
	})
	WriteJSON(w, http.StatusOK, PredictResponse{
		Prediction:   label,
		Probability:  proba,
		PredictionID: id.String(),
		ModelVersion: version,
	})
}

// DecodeObject reads a single JSON object, keeping numbers as json.Number.
func DecodeObject(body io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPredictBody))
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return payload, nil
}
