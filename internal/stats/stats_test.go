package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fraud-detection/internal/dataset"
)

func tx(month time.Month, browser, source string, class int) dataset.Transaction {
	return dataset.Transaction{
		PurchaseTime: time.Date(2015, month, 10, 12, 0, 0, 0, time.UTC),
		Browser:      browser,
		Source:       source,
		Class:        class,
	}
}

func TestComputeSummary(t *testing.T) {
	t.Parallel()

	ds := dataset.New([]dataset.Transaction{
		tx(time.January, "Chrome", "SEO", 1),
		tx(time.January, "Chrome", "Ads", 0),
		tx(time.March, "Safari", "Ads", 1),
	})
	snap := Compute(ds, time.Unix(0, 0))

	assert.Equal(t, Summary{TotalTransactions: 3, TotalFraudCases: 2, FraudPercentage: 66.67}, snap.Summary())
}

func TestComputeRoundsHalfToEven(t *testing.T) {
	t.Parallel()

	rows := make([]dataset.Transaction, 800)
	for i := range rows {
		rows[i] = tx(time.February, "Chrome", "SEO", 0)
	}
	rows[0].Class = 1
	snap := Compute(dataset.New(rows), time.Unix(0, 0))

	assert.Equal(t, Summary{TotalTransactions: 800, TotalFraudCases: 1, FraudPercentage: 0.12}, snap.Summary())
}

func TestComputeEmptyDataset(t *testing.T) {
	t.Parallel()

	snap := Compute(dataset.New(nil), time.Unix(0, 0))
	assert.Equal(t, Summary{}, snap.Summary())
	assert.Empty(t, snap.FraudTrends())

	body, err := json.Marshal(snap.FraudByBrowserSource())
	require.NoError(t, err)
	assert.JSONEq(t, `{"browser_fraud":[],"source_fraud":[]}`, string(body))
}

func TestFraudTrendsMonthlyAndSorted(t *testing.T) {
	t.Parallel()

	ds := dataset.New([]dataset.Transaction{
		tx(time.March, "IE", "SEO", 1),
		tx(time.January, "IE", "SEO", 1),
		tx(time.January, "IE", "SEO", 1),
		tx(time.February, "IE", "SEO", 0),
	})
	snap := Compute(ds, time.Unix(0, 0))

	assert.Equal(t, map[string]int{"2015-01": 2, "2015-03": 1}, snap.FraudTrends())
	assert.Equal(t, []string{"2015-01", "2015-03"}, snap.Months())

	body, err := json.Marshal(snap.FraudTrends())
	require.NoError(t, err)
	assert.Equal(t, `{"2015-01":2,"2015-03":1}`, string(body))
}

func TestFraudByBrowserSourceCountsFraudOnly(t *testing.T) {
	t.Parallel()

	ds := dataset.New([]dataset.Transaction{
		tx(time.January, "Safari", "SEO", 1),
		tx(time.January, "Chrome", "Ads", 1),
		tx(time.January, "Chrome", "Ads", 1),
		tx(time.January, "Opera", "Direct", 0),
	})
	got := Compute(ds, time.Unix(0, 0)).FraudByBrowserSource()

	assert.Equal(t, []BrowserCount{{"Chrome", 2}, {"Safari", 1}}, got.BrowserFraud)
	assert.Equal(t, []SourceCount{{"Ads", 2}, {"SEO", 1}}, got.SourceFraud)
}

func TestRound2(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 9.36, Round2(9.3646))
	assert.Equal(t, 0.0, Round2(0))
	// 1 fraud in 800 rows is exactly 0.125%.
	assert.Equal(t, 0.12, Round2(float64(1)/float64(800)*100))
	assert.Equal(t, 0.38, Round2(0.375))
}
