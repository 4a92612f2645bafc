package explain

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/JakeFAU/fraud-detection/internal/model"
	"github.com/JakeFAU/fraud-detection/internal/storage"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html.tmpl").Funcs(template.FuncMap{
	"bars":        bars,
	"chartHeight": chartHeight,
}).ParseFS(templateFS, "templates/report.html.tmpl"))

// Report bundles the global and local explanations for one model.
type Report struct {
	ModelKind    model.Kind `json:"model_kind"`
	ModelVersion string     `json:"model_version"`
	GeneratedAt  time.Time  `json:"generated_at"`
	// Global is nil for models without linear structure.
	Global *GlobalExplanation `json:"global,omitempty"`
	Local  LocalExplanation   `json:"local"`
}

// Options controls report generation.
type Options struct {
	Lime LimeConfig
	// Seed picks the locally explained test instance.
	Seed uint64
	// InstanceIndex overrides the random pick when >= 0. It must fall
	// inside the test set.
	InstanceIndex int
	// MaxGlobalRows caps how many test rows get per-instance SHAP values.
	MaxGlobalRows int
	Now           time.Time
}

// ErrInstanceOutOfRange reports an explicit instance index past the test set.
var ErrInstanceOutOfRange = errors.New("instance index out of range")

// Build computes the report for the given train/test matrices.
func Build(ctx context.Context, m model.Classifier, train, test [][]float64, opts Options) (Report, error) {
	if len(test) == 0 {
		return Report{}, errors.New("test set is empty")
	}
	if opts.InstanceIndex >= len(test) {
		return Report{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInstanceOutOfRange, opts.InstanceIndex, len(test))
	}
	art := m.Artifact()
	rep := Report{ModelKind: art.Kind, ModelVersion: art.Version, GeneratedAt: opts.Now}

	global := test
	if opts.MaxGlobalRows > 0 && len(global) > opts.MaxGlobalRows {
		global = global[:opts.MaxGlobalRows]
	}
	g, err := LinearSHAP(m, train, global)
	switch {
	case errors.Is(err, ErrNotLinear):
	case err != nil:
		return Report{}, fmt.Errorf("shap: %w", err)
	default:
		rep.Global = &g
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	idx := opts.InstanceIndex
	if idx < 0 {
		idx = rand.New(rand.NewPCG(opts.Seed, opts.Seed^0xdeadbeef)).IntN(len(test))
	}
	limeCfg := opts.Lime
	if limeCfg.Seed == 0 {
		limeCfg.Seed = opts.Seed
	}
	local, err := Lime(m, train, test[idx], limeCfg)
	if err != nil {
		return Report{}, fmt.Errorf("lime: %w", err)
	}
	local.InstanceIndex = idx
	rep.Local = local
	return rep, nil
}

// JSON renders the report as indented JSON.
func (r Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// HTML renders the report with inline SVG bar charts.
func (r Report) HTML(w io.Writer) error {
	if err := reportTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// Bar is one row of a horizontal bar chart.
type Bar struct {
	Label    string
	Value    float64
	X        float64
	Y        float64
	Width    float64
	Positive bool
}

const (
	chartWidth = 360.0
	rowHeight  = 22.0
)

// bars lays out attributions around a zero axis in the middle of the chart.
func bars(attrs []Attribution) []Bar {
	maxAbs := 0.0
	for _, a := range attrs {
		maxAbs = math.Max(maxAbs, math.Abs(a.Value))
	}
	out := make([]Bar, len(attrs))
	mid := chartWidth / 2
	for i, a := range attrs {
		width := 0.0
		if maxAbs > 0 {
			width = math.Abs(a.Value) / maxAbs * mid
		}
		x := mid
		if a.Value < 0 {
			x = mid - width
		}
		out[i] = Bar{Label: a.Feature, Value: a.Value, X: x, Y: float64(i) * rowHeight, Width: width, Positive: a.Value >= 0}
	}
	return out
}

func chartHeight(rows []Bar) int {
	return int(float64(len(rows))*rowHeight) + 8
}

// Artifacts lists where a saved report landed.
type Artifacts struct {
	JSON string
	HTML string
	PNG  string
	PDF  string
}

// Renderer turns report HTML into an image or document.
type Renderer interface {
	Render(ctx context.Context, html []byte, format Format) ([]byte, error)
}

// Format is a rendered output type.
type Format string

// Supported render formats.
const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPNG, FormatPDF:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported render format %q", s)
}

// Save writes JSON and HTML under prefix, plus each requested rendering.
func Save(ctx context.Context, w storage.Writer, prefix string, r Report, renderer Renderer, formats ...Format) (Artifacts, error) {
	var out Artifacts
	data, err := r.JSON()
	if err != nil {
		return out, err
	}
	if out.JSON, err = w.PutObject(ctx, prefix+"/explanation.json", "application/json", bytes.NewReader(data)); err != nil {
		return out, fmt.Errorf("write json report: %w", err)
	}

	var html bytes.Buffer
	if err := r.HTML(&html); err != nil {
		return out, err
	}
	if out.HTML, err = w.PutObject(ctx, prefix+"/explanation.html", "text/html; charset=utf-8", bytes.NewReader(html.Bytes())); err != nil {
		return out, fmt.Errorf("write html report: %w", err)
	}

	for _, f := range formats {
		if renderer == nil {
			return out, errors.New("a renderer is required for png/pdf output")
		}
		img, err := renderer.Render(ctx, html.Bytes(), f)
		if err != nil {
			return out, fmt.Errorf("render %s: %w", f, err)
		}
		contentType := "image/png"
		if f == FormatPDF {
			contentType = "application/pdf"
		}
		uri, err := w.PutObject(ctx, prefix+"/explanation."+string(f), contentType, bytes.NewReader(img))
		if err != nil {
			return out, fmt.Errorf("write %s report: %w", f, err)
		}
		if f == FormatPDF {
			out.PDF = uri
		} else {
			out.PNG = uri
		}
	}
	return out, nil
}
