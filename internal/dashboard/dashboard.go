// Package dashboard serves the browser dashboard. The page is rendered from
// the statistics service on every load; predictions are forwarded to the
// prediction service.
package dashboard

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/JakeFAU/fraud-detection/internal/api"
	"github.com/JakeFAU/fraud-detection/internal/client"
	"github.com/JakeFAU/fraud-detection/internal/config"
	"github.com/JakeFAU/fraud-detection/internal/features"
	"github.com/JakeFAU/fraud-detection/internal/metrics"
	"github.com/JakeFAU/fraud-detection/internal/stats"
)

// Result texts returned by POST /predict.
const (
	ResultFraud      = "Fraud Detected ⚠️"
	ResultLegitimate = "Legitimate Transaction ✅"
)

const (
	upstreamStats   = "stats"
	upstreamPredict = "predict"
	maxFormBody     = 1 << 20
)

var (
	//go:embed assets/* templates/*
	embedFS embed.FS
)

// StatsSource is the subset of the statistics client the page needs.
type StatsSource interface {
	Summary(ctx context.Context) (stats.Summary, error)
	FraudTrends(ctx context.Context) (map[string]int, error)
	FraudBrowserSource(ctx context.Context) (stats.BrowserSource, error)
}

// Predictor forwards a prediction request.
type Predictor interface {
	Predict(ctx context.Context, payload map[string]any) (api.PredictResponse, error)
}

// PredictResult is the POST /predict success body.
type PredictResult struct {
	Result string `json:"result"`
	Fraud  bool   `json:"fraud"`
}

// Server renders the dashboard.
type Server struct {
	router    chi.Router
	tmpl      *template.Template
	stats     StatsSource
	predictor Predictor
	printer   *message.Printer
	logger    *zap.Logger
}

// New parses the embedded templates and wires routes.
func New(statsSrc StatsSource, predictor Predictor, opts api.Options) (*Server, error) {
	if statsSrc == nil || predictor == nil {
		return nil, fmt.Errorf("dashboard: stats source and predictor are required")
	}
	tmpl, err := template.New("").ParseFS(embedFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(embedFS, "assets")
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tmpl:      tmpl,
		stats:     statsSrc,
		predictor: predictor,
		printer:   message.NewPrinter(language.English),
		logger:    logger.Named("dashboard"),
	}
	// Browsers cannot send the API key, so the page is never gated on it.
	// The upstream clients attach it instead.
	opts.Auth = config.AuthConfig{}
	s.router = api.NewRouter(opts, nil, func(r chi.Router) {
		r.Get("/", s.index)
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))
		r.Get("/data/fraud_browser_source", s.browserSource)
		r.Post("/predict", s.predict)
	})
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type card struct {
	Title string
	Value string
	Class string
}

type field struct {
	Name        string
	Placeholder string
	Type        string
}

type page struct {
	Error  string
	Cards  []card
	Trend  trendChart
	Fields []field
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	var (
		summary stats.Summary
		trends  map[string]int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		summary, err = s.stats.Summary(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		trends, err = s.stats.FraudTrends(ctx)
		return err
	})

	data := page{Fields: formFields()}
	if err := g.Wait(); err != nil {
		s.logger.Error("stats service unavailable", zap.Error(err))
		metrics.ObserveUpstreamError(upstreamStats)
		data.Error = "Statistics are unavailable: " + err.Error()
	} else {
		data.Cards = s.cards(summary)
		data.Trend = newTrendChart(trends)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Error("render dashboard", zap.Error(err))
	}
}

func (s *Server) cards(summary stats.Summary) []card {
	return []card{
		{Title: "Total Transactions", Value: s.printer.Sprintf("%d", summary.TotalTransactions), Class: "primary"},
		{Title: "Total Fraud Cases", Value: s.printer.Sprintf("%d", summary.TotalFraudCases), Class: "danger"},
		{Title: "Fraud Percentage", Value: formatPercent(summary.FraudPercentage), Class: "warning"},
	}
}

// formatPercent keeps at least one decimal so whole numbers read as "10.0%".
func formatPercent(v float64) string {
	out := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(out, ".NI") {
		out += ".0"
	}
	return out + "%"
}

func (s *Server) browserSource(w http.ResponseWriter, r *http.Request) {
	bs, err := s.stats.FraudBrowserSource(r.Context())
	if err != nil {
		s.logger.Error("fraud by browser and source", zap.Error(err))
		metrics.ObserveUpstreamError(upstreamStats)
		api.WriteError(w, http.StatusBadGateway, "statistics service unavailable")
		return
	}
	api.WriteJSON(w, http.StatusOK, bs)
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	payload, err := readForm(w, r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.predictor.Predict(r.Context(), payload)
	if err != nil {
		if se, ok := client.ClientError(err); ok {
			msg := se.Message
			if msg == "" {
				msg = http.StatusText(se.Code)
			}
			api.WriteError(w, se.Code, msg)
			return
		}
		s.logger.Error("prediction service unavailable", zap.Error(err))
		metrics.ObserveUpstreamError(upstreamPredict)
		api.WriteError(w, http.StatusBadGateway, "prediction service unavailable")
		return
	}
	out := PredictResult{Result: ResultLegitimate}
	if resp.Prediction == api.LabelFraud {
		out = PredictResult{Result: ResultFraud, Fraud: true}
	}
	api.WriteJSON(w, http.StatusOK, out)
}

// readForm accepts JSON or form-encoded input and keeps only the model's
// features. Blank inputs become null so the prediction service rejects them.
func readForm(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	raw := map[string]any{}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		obj, err := api.DecodeObject(r.Body)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON")
		}
		raw = obj
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form")
		}
		for _, name := range features.RequiredFeatures {
			if _, ok := r.PostForm[name]; ok {
				raw[name] = r.PostForm.Get(name)
			}
		}
	}

	out := make(map[string]any, len(features.RequiredFeatures))
	for _, name := range features.RequiredFeatures {
		v, ok := raw[name]
		if !ok {
			continue
		}
		out[name] = convertInput(name, v)
	}
	return out, nil
}

func convertInput(name string, v any) any {
	str, ok := v.(string)
	if !ok {
		return v
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}
	if features.Timestamp(name) {
		return str
	}
	if f, err := strconv.ParseFloat(str, 64); err == nil {
		return f
	}
	return str
}

func formFields() []field {
	out := make([]field, 0, len(features.RequiredFeatures))
	for _, name := range features.RequiredFeatures {
		f := field{Name: name, Type: "number", Placeholder: placeholders[name]}
		if features.Timestamp(name) {
			f.Type = "text"
		}
		out = append(out, f)
	}
	return out
}

var placeholders = map[string]string{
	features.UserID:           "User ID",
	features.SignupTime:       "Signup Time",
	features.PurchaseTime:     "Purchase Time",
	features.PurchaseValue:    "Purchase Value",
	features.Age:              "Age",
	features.IPInt:            "IP Address (Integer)",
	features.TransactionCount: "Transaction Count",
	features.TimeDiff:         "Time Difference",
	features.HourOfDay:        "Hour of Day",
	features.DayOfWeek:        "Day of Week",
	features.SourceDirect:     "Source Direct (1 or 0)",
	features.SourceSEO:        "Source SEO (1 or 0)",
	features.BrowserFireFox:   "Browser FireFox (1 or 0)",
	features.BrowserIE:        "Browser IE (1 or 0)",
	features.BrowserOpera:     "Browser Opera (1 or 0)",
	features.BrowserSafari:    "Browser Safari (1 or 0)",
	features.SexM:             "Sex M (1 or 0)",
}

const (
	chartWidth  = 720
	chartHeight = 240
	chartPad    = 32
)

type trendPoint struct {
	Month string
	Count int
	X, Y  float64
}

type trendChart struct {
	Width, Height int
	Points        []trendPoint
	Polyline      string
	Max           int
}

func newTrendChart(trends map[string]int) trendChart {
	months := make([]string, 0, len(trends))
	for m := range trends {
		months = append(months, m)
	}
	sort.Strings(months)

	c := trendChart{Width: chartWidth, Height: chartHeight}
	for _, m := range months {
		c.Max = max(c.Max, trends[m])
	}
	if len(months) == 0 {
		return c
	}
	span := float64(chartWidth - 2*chartPad)
	step := 0.0
	if len(months) > 1 {
		step = span / float64(len(months)-1)
	}
	plotH := float64(chartHeight - 2*chartPad)
	coords := make([]string, 0, len(months))
	for i, m := range months {
		y := float64(chartHeight - chartPad)
		if c.Max > 0 {
			y -= plotH * float64(trends[m]) / float64(c.Max)
		}
		p := trendPoint{Month: m, Count: trends[m], X: float64(chartPad) + step*float64(i), Y: y}
		c.Points = append(c.Points, p)
		coords = append(coords, strconv.FormatFloat(p.X, 'f', 1, 64)+","+strconv.FormatFloat(p.Y, 'f', 1, 64))
	}
	c.Polyline = strings.Join(coords, " ")
	return c
}
