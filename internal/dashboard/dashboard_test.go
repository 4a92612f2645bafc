package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fraud-detection/internal/api"
	"github.com/JakeFAU/fraud-detection/internal/client"
	"github.com/JakeFAU/fraud-detection/internal/config"
	"github.com/JakeFAU/fraud-detection/internal/features"
	"github.com/JakeFAU/fraud-detection/internal/stats"
)

type fakeStats struct {
	summary stats.Summary
	trends  map[string]int
	bs      stats.BrowserSource
	err     error
}

func (f *fakeStats) Summary(context.Context) (stats.Summary, error) { return f.summary, f.err }

func (f *fakeStats) FraudTrends(context.Context) (map[string]int, error) { return f.trends, f.err }

func (f *fakeStats) FraudBrowserSource(context.Context) (stats.BrowserSource, error) {
	return f.bs, f.err
}

type fakePredictor struct {
	got  map[string]any
	resp api.PredictResponse
	err  error
}

func (f *fakePredictor) Predict(_ context.Context, payload map[string]any) (api.PredictResponse, error) {
	f.got = payload
	return f.resp, f.err
}

func newTestServer(t *testing.T, st StatsSource, p Predictor) *Server {
	t.Helper()
	srv, err := New(st, p, api.Options{})
	require.NoError(t, err)
	return srv
}

func TestIndexRendersCardsAndTrend(t *testing.T) {
	st := &fakeStats{
		summary: stats.Summary{TotalTransactions: 151112, TotalFraudCases: 14151, FraudPercentage: 9.36},
		trends:  map[string]int{"2015-02": 4, "2015-01": 10},
	}
	srv := newTestServer(t, st, &fakePredictor{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "151,112")
	assert.Contains(t, body, "14,151")
	assert.Contains(t, body, "9.36%")
	assert.Contains(t, body, "Fraud by Source &amp; Browser")
	assert.Contains(t, body, "Refresh Data")
	assert.Less(t, strings.Index(body, "2015-01: 10"), strings.Index(body, "2015-02: 4"))
	for _, name := range features.RequiredFeatures {
		assert.Contains(t, body, `name="`+name+`"`)
	}
}

func TestIndexShowsBannerWhenStatsFail(t *testing.T) {
	srv := newTestServer(t, &fakeStats{err: errors.New("connection refused")}, &fakePredictor{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Statistics are unavailable")
	assert.NotContains(t, rr.Body.String(), "Total Transactions")
}

func TestBrowserSourceProxy(t *testing.T) {
	st := &fakeStats{bs: stats.BrowserSource{
		BrowserFraud: []stats.BrowserCount{{Browser: "Chrome", FraudCases: 3}},
		SourceFraud:  []stats.SourceCount{{Source: "Ads", FraudCases: 3}},
	}}
	srv := newTestServer(t, st, &fakePredictor{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/data/fraud_browser_source", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"browser_fraud":[{"browser":"Chrome","fraud_cases":3}],"source_fraud":[{"source":"Ads","fraud_cases":3}]}`, rr.Body.String())

	st.err = errors.New("down")
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/data/fraud_browser_source", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestPredictJSON(t *testing.T) {
	p := &fakePredictor{resp: api.PredictResponse{Prediction: api.LabelFraud}}
	srv := newTestServer(t, &fakeStats{}, p)

	req := httptest.NewRequest(http.MethodPost, "/predict",
		strings.NewReader(`{"age":"42","signup_time":"2015-02-24 22:55:49","sex_M":"","bogus":1}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result":"Fraud Detected ⚠️","fraud":true}`, rr.Body.String())
	assert.InDelta(t, 42.0, p.got["age"], 1e-9)
	assert.Equal(t, "2015-02-24 22:55:49", p.got["signup_time"])
	v, ok := p.got["sex_M"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.NotContains(t, p.got, "bogus")
}

func TestPredictForm(t *testing.T) {
	p := &fakePredictor{resp: api.PredictResponse{Prediction: api.LabelNotFraud}}
	srv := newTestServer(t, &fakeStats{}, p)

	form := url.Values{"age": {"30"}, "purchase_value": {""}}
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"result":"Legitimate Transaction ✅","fraud":false}`, rr.Body.String())
	assert.InDelta(t, 30.0, p.got["age"], 1e-9)
	assert.Nil(t, p.got["purchase_value"])
}

func TestPredictPassesUpstreamClientErrors(t *testing.T) {
	p := &fakePredictor{err: &client.StatusError{Code: http.StatusBadRequest, Message: "Missing one or more required features"}}
	srv := newTestServer(t, &fakeStats{}, p)

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Missing one or more required features"}`, rr.Body.String())
}

func TestPredictUpstreamDown(t *testing.T) {
	srv := newTestServer(t, &fakeStats{}, &fakePredictor{err: errors.New("dial tcp: refused")})

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, &fakeStats{}, &fakePredictor{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/dashboard.js", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "fraud_browser_source")
}

func TestNewTrendChart(t *testing.T) {
	c := newTrendChart(map[string]int{"2015-03": 0, "2015-01": 8, "2015-02": 4})
	require.Len(t, c.Points, 3)
	assert.Equal(t, "2015-01", c.Points[0].Month)
	assert.Equal(t, 8, c.Max)
	assert.InDelta(t, float64(chartPad), c.Points[0].Y, 1e-9)
	assert.InDelta(t, float64(chartHeight-chartPad), c.Points[2].Y, 1e-9)

	empty := newTrendChart(nil)
	assert.Empty(t, empty.Points)
}

func TestDashboardRoutesStayOpenWhenAuthEnabled(t *testing.T) {
	st := &fakeStats{
		summary: stats.Summary{TotalTransactions: 10, TotalFraudCases: 1, FraudPercentage: 10},
		trends:  map[string]int{"2015-01": 1},
	}
	p := &fakePredictor{resp: api.PredictResponse{Prediction: api.LabelNotFraud}}
	srv, err := New(st, p, api.Options{Auth: config.AuthConfig{Enabled: true, APIKey: "k"}})
	require.NoError(t, err)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/", nil),
		httptest.NewRequest(http.MethodGet, "/static/dashboard.js", nil),
		httptest.NewRequest(http.MethodGet, "/static/dashboard.css", nil),
		httptest.NewRequest(http.MethodGet, "/data/fraud_browser_source", nil),
		jsonRequest(`{"age":"42"}`),
	} {
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "%s %s", req.Method, req.URL.Path)
	}
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestFormatPercent(t *testing.T) {
	for in, want := range map[float64]string{
		10:    "10.0%",
		0:     "0.0%",
		9.36:  "9.36%",
		0.12:  "0.12%",
		100:   "100.0%",
		12.5:  "12.5%",
	} {
		assert.Equal(t, want, formatPercent(in), "%v", in)
	}
}
