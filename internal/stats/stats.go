// Package stats computes the aggregate fraud statistics served to the
// dashboard. Everything is derived once from an immutable dataset.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/JakeFAU/fraud-detection/internal/dataset"
)

// Summary is the headline count card data.
type Summary struct {
	TotalTransactions int     `json:"total_transactions"`
	TotalFraudCases   int     `json:"total_fraud_cases"`
	FraudPercentage   float64 `json:"fraud_percentage"`
}

// BrowserCount is the number of fraud cases seen on a browser.
type BrowserCount struct {
	Browser    string `json:"browser"`
	FraudCases int    `json:"fraud_cases"`
}

// SourceCount is the number of fraud cases attributed to a traffic source.
type SourceCount struct {
	Source     string `json:"source"`
	FraudCases int    `json:"fraud_cases"`
}

// BrowserSource groups fraud cases by browser and by source.
type BrowserSource struct {
	BrowserFraud []BrowserCount `json:"browser_fraud"`
	SourceFraud  []SourceCount  `json:"source_fraud"`
}

// Snapshot holds precomputed statistics. It is safe for concurrent reads.
type Snapshot struct {
	summary       Summary
	trends        map[string]int
	browserSource BrowserSource
	computedAt    time.Time
}

// Compute scans the dataset once.
func Compute(ds *dataset.Dataset, now time.Time) *Snapshot {
	s := &Snapshot{
		trends:     make(map[string]int),
		computedAt: now,
	}
	byBrowser := make(map[string]int)
	bySource := make(map[string]int)

	for _, tx := range ds.Rows() {
		s.summary.TotalTransactions++
		if !tx.IsFraud() {
			continue
		}
		s.summary.TotalFraudCases++
		s.trends[tx.PurchaseTime.Format("2006-01")]++
		byBrowser[tx.Browser]++
		bySource[tx.Source]++
	}

	if s.summary.TotalTransactions > 0 {
		pct := float64(s.summary.TotalFraudCases) / float64(s.summary.TotalTransactions) * 100
		s.summary.FraudPercentage = Round2(pct)
	}

	s.browserSource.BrowserFraud = make([]BrowserCount, 0, len(byBrowser))
	for _, name := range sortedKeys(byBrowser) {
		s.browserSource.BrowserFraud = append(s.browserSource.BrowserFraud, BrowserCount{Browser: name, FraudCases: byBrowser[name]})
	}
	s.browserSource.SourceFraud = make([]SourceCount, 0, len(bySource))
	for _, name := range sortedKeys(bySource) {
		s.browserSource.SourceFraud = append(s.browserSource.SourceFraud, SourceCount{Source: name, FraudCases: bySource[name]})
	}
	return s
}

// Round2 rounds to two decimal places, halves to even.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// Summary returns the headline counts.
func (s *Snapshot) Summary() Summary {
	return s.summary
}

// FraudTrends maps "YYYY-MM" of purchase_time to fraud counts. Months without
// fraud are absent. The returned map is a copy.
func (s *Snapshot) FraudTrends() map[string]int {
	out := make(map[string]int, len(s.trends))
	for k, v := range s.trends {
		out[k] = v
	}
	return out
}

// Months lists the trend keys in ascending order.
func (s *Snapshot) Months() []string {
	return sortedKeys(s.trends)
}

// FraudByBrowserSource returns the fraud-only breakdown by browser and source.
func (s *Snapshot) FraudByBrowserSource() BrowserSource {
	return BrowserSource{
		BrowserFraud: append([]BrowserCount{}, s.browserSource.BrowserFraud...),
		SourceFraud:  append([]SourceCount{}, s.browserSource.SourceFraud...),
	}
}

// ComputedAt is when the snapshot was built.
func (s *Snapshot) ComputedAt() time.Time {
	return s.computedAt
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
