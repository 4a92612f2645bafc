// Package api hosts the HTTP servers, middleware, and JSON handlers for the
// fraud services. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /predict on the model API.
//   - GET /api/summary, /api/fraud_trends, /api/fraud_browser_source on the
//     stats API, plus /api/runs for training runs via tracking.Repository.
package api
