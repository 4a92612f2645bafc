// Package dataset loads the labeled fraud transaction CSV.
//
// The file carries one transaction per row with the columns user_id,
// signup_time, purchase_time, purchase_value, device_id, source, browser,
// sex, age, ip_address and class. Extra columns are ignored; missing ones
// fail the load.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/fraud-detection/internal/storage"
)

// Column names in the source CSV.
const (
	ColUserID        = "user_id"
	ColSignupTime    = "signup_time"
	ColPurchaseTime  = "purchase_time"
	ColPurchaseValue = "purchase_value"
	ColDeviceID      = "device_id"
	ColSource        = "source"
	ColBrowser       = "browser"
	ColSex           = "sex"
	ColAge           = "age"
	ColIPAddress     = "ip_address"
	ColClass         = "class"
)

var requiredColumns = []string{
	ColUserID, ColSignupTime, ColPurchaseTime, ColPurchaseValue, ColDeviceID,
	ColSource, ColBrowser, ColSex, ColAge, ColIPAddress, ColClass,
}

// ErrMissingColumn reports a header without one of the required columns.
var ErrMissingColumn = errors.New("missing column")

// Transaction is one labeled row.
type Transaction struct {
	UserID        int64
	SignupTime    time.Time
	PurchaseTime  time.Time
	PurchaseValue float64
	DeviceID      string
	Source        string
	Browser       string
	Sex           string
	Age           int
	IPAddress     float64
	// Class is 1 for fraud, 0 otherwise.
	Class int
}

// IsFraud reports whether the row is labeled fraudulent.
func (t Transaction) IsFraud() bool { return t.Class == 1 }

// Dataset is an immutable, ordered collection of transactions.
type Dataset struct {
	rows []Transaction
}

// New wraps rows without copying them.
func New(rows []Transaction) *Dataset {
	return &Dataset{rows: rows}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// Rows exposes the rows. Callers must not modify the slice.
func (d *Dataset) Rows() []Transaction {
	if d == nil {
		return nil
	}
	return d.rows
}

// DeviceCounts counts transactions per device_id.
func (d *Dataset) DeviceCounts() map[string]int {
	counts := make(map[string]int)
	for _, row := range d.Rows() {
		counts[row.DeviceID]++
	}
	return counts
}

// Open reads and parses a CSV object from blob storage.
func Open(ctx context.Context, blobs storage.Reader, path string) (*Dataset, error) {
	rc, err := blobs.GetObject(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer rc.Close() //nolint:errcheck // read-only handle

	ds, err := Load(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	return ds, nil
}

// Load parses CSV content. A malformed row fails the whole load with its line number.
func Load(ctx context.Context, r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header: empty input")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var rows []Transaction
	for line := 2; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		tx, err := parseRecord(record, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, tx)
	}
	return New(rows), nil
}

func indexColumns(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		idx[name] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRecord(record []string, idx map[string]int) (Transaction, error) {
	field := func(col string) string {
		return strings.TrimSpace(record[idx[col]])
	}

	var tx Transaction
	var err error

	userID, err := parseFloat(ColUserID, field(ColUserID))
	if err != nil {
		return tx, err
	}
	tx.UserID = int64(userID)

	if tx.SignupTime, err = parseTime(ColSignupTime, field(ColSignupTime)); err != nil {
		return tx, err
	}
	if tx.PurchaseTime, err = parseTime(ColPurchaseTime, field(ColPurchaseTime)); err != nil {
		return tx, err
	}
	if tx.PurchaseValue, err = parseFloat(ColPurchaseValue, field(ColPurchaseValue)); err != nil {
		return tx, err
	}
	age, err := parseFloat(ColAge, field(ColAge))
	if err != nil {
		return tx, err
	}
	tx.Age = int(age)
	if tx.IPAddress, err = parseFloat(ColIPAddress, field(ColIPAddress)); err != nil {
		return tx, err
	}

	class, err := parseFloat(ColClass, field(ColClass))
	if err != nil {
		return tx, err
	}
	if class != 0 && class != 1 {
		return tx, fmt.Errorf("%s: expected 0 or 1, got %v", ColClass, class)
	}
	tx.Class = int(class)

	tx.DeviceID = field(ColDeviceID)
	tx.Source = field(ColSource)
	tx.Browser = field(ColBrowser)
	tx.Sex = field(ColSex)
	return tx, nil
}

func parseFloat(col, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", col, raw)
	}
	return v, nil
}

func parseTime(col, raw string) (time.Time, error) {
	t, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", col, err)
	}
	return t, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the dataset layout, RFC 3339 and bare dates.
// Values without a zone are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
}
