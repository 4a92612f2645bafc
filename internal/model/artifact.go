package model

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/fraud-detection/internal/storage"
)

// Artifact is the serialized form of a trained classifier.
type Artifact struct {
	Kind Kind `json:"kind"`
	// Version is the hex SHA-256 of the artifact's fitted parameters.
	Version      string            `json:"version"`
	FeatureNames []string          `json:"feature_names"`
	Means        []float64         `json:"means,omitempty"`
	Scales       []float64         `json:"scales,omitempty"`
	Coefficients []float64         `json:"coefficients,omitempty"`
	Intercept    float64           `json:"intercept"`
	Threshold    float64           `json:"threshold"`
	Prior        float64           `json:"prior"`
	TrainedAt    time.Time         `json:"trained_at"`
	Params       map[string]string `json:"params,omitempty"`
}

// Validate checks internal consistency.
func (a Artifact) Validate() error {
	n := len(a.FeatureNames)
	if n == 0 {
		return fmt.Errorf("artifact has no feature names")
	}
	switch a.Kind {
	case KindLogisticRegression:
		if len(a.Means) != n || len(a.Scales) != n || len(a.Coefficients) != n {
			return fmt.Errorf("logistic artifact needs %d means, scales and coefficients", n)
		}
		for i, s := range a.Scales {
			if s == 0 {
				return fmt.Errorf("scale for %s is zero", a.FeatureNames[i])
			}
		}
		if a.Threshold <= 0 || a.Threshold >= 1 {
			return fmt.Errorf("threshold must be in (0, 1), got %v", a.Threshold)
		}
	case KindMajority:
		if a.Prior < 0 || a.Prior > 1 {
			return fmt.Errorf("prior must be in [0, 1], got %v", a.Prior)
		}
	default:
		return fmt.Errorf("unknown model kind %q", a.Kind)
	}
	return nil
}

// Fingerprint hashes the fitted parameters. TrainedAt, Params and Version
// are excluded so retraining on identical data yields the same version.
func (a Artifact) Fingerprint() (string, error) {
	core := a
	core.Version = ""
	core.TrainedAt = time.Time{}
	core.Params = nil
	data, err := json.Marshal(core)
	if err != nil {
		return "", fmt.Errorf("marshal artifact: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (a Artifact) withVersion() (Artifact, error) {
	v, err := a.Fingerprint()
	if err != nil {
		return a, err
	}
	a.Version = v
	return a, nil
}

// FromArtifact rebuilds a classifier.
func FromArtifact(a Artifact) (Classifier, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.Version == "" {
		var err error
		if a, err = a.withVersion(); err != nil {
			return nil, err
		}
	}
	switch a.Kind {
	case KindLogisticRegression:
		return &Logistic{art: a}, nil
	default:
		return &Majority{art: a}, nil
	}
}

// Encode serializes a classifier's artifact as indented JSON.
func Encode(c Classifier) ([]byte, error) {
	data, err := json.MarshalIndent(c.Artifact(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	return data, nil
}

// Decode parses an artifact and rebuilds its classifier.
func Decode(data []byte) (Classifier, error) {
	var a Artifact
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return FromArtifact(a)
}

// Save writes the artifact to blob storage and returns its URI.
func Save(ctx context.Context, w storage.Writer, path string, c Classifier) (string, error) {
	data, err := Encode(c)
	if err != nil {
		return "", err
	}
	uri, err := w.PutObject(ctx, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return uri, nil
}

// Load reads an artifact from blob storage.
func Load(ctx context.Context, r storage.Reader, path string) (Classifier, error) {
	data, err := storage.ReadAll(ctx, r, path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	c, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return c, nil
}
