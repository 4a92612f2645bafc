package harness

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/fraud-detection/internal/model"
)

// Experiment describes one training session.
type Experiment struct {
	Name    string        `yaml:"name"`
	Dataset DatasetSpec   `yaml:"dataset"`
	Models  []ModelSpec   `yaml:"models"`
	Export  *ExportSpec   `yaml:"export"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatasetSpec locates the CSV and controls the split.
type DatasetSpec struct {
	// Name labels runs; defaults to the file name without extension.
	Name         string  `yaml:"name"`
	Path         string  `yaml:"path"`
	TestFraction float64 `yaml:"test_fraction"`
	Seed         uint64  `yaml:"seed"`
}

// ModelSpec names a trainer and its hyperparameters.
type ModelSpec struct {
	Name   string         `yaml:"name"`
	Kind   model.Kind     `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

// ExportSpec selects the model saved as the serving artifact.
type ExportSpec struct {
	Model string `yaml:"model"`
	Path  string `yaml:"path"`
}

// LoadExperiment decodes and validates a YAML experiment, applying defaults.
func LoadExperiment(r io.Reader) (Experiment, error) {
	var exp Experiment
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&exp); err != nil {
		if errors.Is(err, io.EOF) {
			return Experiment{}, errors.New("experiment file is empty")
		}
		return Experiment{}, fmt.Errorf("decode experiment: %w", err)
	}
	exp.applyDefaults()
	if err := exp.Validate(); err != nil {
		return Experiment{}, err
	}
	return exp, nil
}

func (e *Experiment) applyDefaults() {
	if e.Dataset.TestFraction == 0 {
		e.Dataset.TestFraction = 0.2
	}
	if e.Dataset.Seed == 0 {
		e.Dataset.Seed = 42
	}
	if e.Dataset.Name == "" && e.Dataset.Path != "" {
		base := path.Base(e.Dataset.Path)
		e.Dataset.Name = strings.TrimSuffix(base, path.Ext(base))
	}
	if e.Workers == 0 {
		e.Workers = 2
	}
}

// Validate enforces required fields.
func (e Experiment) Validate() error {
	if e.Dataset.Path == "" {
		return errors.New("dataset.path is required")
	}
	if e.Dataset.TestFraction <= 0 || e.Dataset.TestFraction >= 1 {
		return errors.New("dataset.test_fraction must be in (0, 1)")
	}
	if len(e.Models) == 0 {
		return errors.New("at least one model is required")
	}
	if e.Workers < 0 {
		return errors.New("workers must be >= 0")
	}
	seen := make(map[string]bool, len(e.Models))
	for i, m := range e.Models {
		if m.Name == "" {
			return fmt.Errorf("models[%d].name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model name %q", m.Name)
		}
		seen[m.Name] = true
	}
	if e.Export != nil {
		if !seen[e.Export.Model] {
			return fmt.Errorf("export.model %q is not a configured model", e.Export.Model)
		}
		if e.Export.Path == "" {
			return errors.New("export.path is required")
		}
	}
	return nil
}

// Trainers builds one trainer per configured model.
func (e Experiment) Trainers(now func() time.Time) (map[string]model.Trainer, error) {
	out := make(map[string]model.Trainer, len(e.Models))
	for _, m := range e.Models {
		kind := m.Kind
		if kind == "" {
			kind = model.Kind(m.Name)
		}
		t, err := model.NewTrainer(kind, m.Params, now)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		out[m.Name] = t
	}
	return out, nil
}
