package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fraud-detection/internal/config"
	"github.com/JakeFAU/fraud-detection/internal/server"
)

func writeFixtures(t *testing.T) (dir string, configPath string) {
	t.Helper()
	dir = t.TempDir()

	var csv strings.Builder
	csv.WriteString("user_id,signup_time,purchase_time,purchase_value,device_id,source,browser,sex,age,ip_address,class\n")
	for i := range 24 {
		class := 0
		purchase := "2015-04-18 02:47:11"
		if i%3 == 0 {
			class = 1
			purchase = "2015-01-01 18:52:45"
		}
		fmt.Fprintf(&csv, "%d,2015-01-01 18:52:44,%s,%d,DEV%02d,SEO,Chrome,M,%d,%d.5,%d\n",
			1000+i, purchase, 10+i, i%5, 20+i, 700000000+i, class)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "fraud.csv"), []byte(csv.String()), 0o600))

	experiment := `name: smoke
dataset:
  path: data/fraud.csv
  test_fraction: 0.25
  seed: 7
models:
  - name: logistic_regression
    params:
      max_iter: 200
  - name: majority
export:
  model: logistic_regression
  path: models/fraud_model.json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiment.yaml"), []byte(experiment), 0o600))

	cfg := fmt.Sprintf(`logging:
  level: error
model_api:
  model_path: models/fraud_model.json
stats_api:
  dataset_path: data/fraud.csv
storage:
  backend: local
  local:
    base_dir: %s
tracking:
  backend: memory
audit:
  enabled: false
explain:
  output_prefix: reports
`, dir)
	configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o600))
	return dir, configPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrainExportsModelAndExplainWritesReport(t *testing.T) {
	dir, configPath := writeFixtures(t)

	out, err := execute(t, "train", "--config", configPath, "--experiment", filepath.Join(dir, "experiment.yaml"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "logistic_regression on fraud: Accuracy=")
	assert.Contains(t, out, "majority on fraud: Accuracy=")
	assert.FileExists(t, filepath.Join(dir, "models", "fraud_model.json"))

	out, err = execute(t, "explain", "--config", configPath, "--seed", "7", "--test-fraction", "0.25", "--lime-samples", "200")
	require.NoError(t, err, out)
	reports, err := filepath.Glob(filepath.Join(dir, "reports", "*", "explanation.json"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.FileExists(t, filepath.Join(filepath.Dir(reports[0]), "explanation.html"))

	_, err = execute(t, "explain", "--config", configPath, "--seed", "7", "--test-fraction", "0.25", "--instance", "1000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance index out of range")
}

func TestExplainRejectsUnknownFormat(t *testing.T) {
	_, configPath := writeFixtures(t)
	_, err := execute(t, "explain", "--config", configPath, "--format", "gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported render format")
}

func TestTrainMissingExperiment(t *testing.T) {
	dir, configPath := writeFixtures(t)
	_, err := execute(t, "train", "--config", configPath, "--experiment", filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open experiment")
}

func TestReplayAgainstModelAPI(t *testing.T) {
	dir, configPath := writeFixtures(t)
	_, err := execute(t, "train", "--config", configPath, "--experiment", filepath.Join(dir, "experiment.yaml"))
	require.NoError(t, err)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	app, err := server.BuildModelAPI(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	t.Setenv("FRAUD_DASHBOARD_MODEL_API_URL", srv.URL)

	out, err := execute(t, "replay", "--config", configPath, "--limit", "10", "--concurrency", "2")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Actual Fraud")
	assert.Contains(t, out, "Sent=10, Errors=0")
}

func TestBadConfigFails(t *testing.T) {
	_, err := execute(t, "train", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}
