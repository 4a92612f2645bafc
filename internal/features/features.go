// Package features defines the ordered feature vector consumed by the
// fraud classifier and converts request payloads and dataset rows into it.
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/fraud-detection/internal/dataset"
)

// Feature names in model order.
const (
	UserID           = "user_id"
	SignupTime       = "signup_time"
	PurchaseTime     = "purchase_time"
	PurchaseValue    = "purchase_value"
	Age              = "age"
	IPInt            = "ip_int"
	TransactionCount = "transaction_count"
	TimeDiff         = "time_diff"
	HourOfDay        = "hour_of_day"
	DayOfWeek        = "day_of_week"
	SourceDirect     = "source_Direct"
	SourceSEO        = "source_SEO"
	BrowserFireFox   = "browser_FireFox"
	BrowserIE        = "browser_IE"
	BrowserOpera     = "browser_Opera"
	BrowserSafari    = "browser_Safari"
	SexM             = "sex_M"
)

// RequiredFeatures lists every key a prediction request must carry, in the
// order the model consumes them.
var RequiredFeatures = []string{
	UserID, SignupTime, PurchaseTime, PurchaseValue, Age, IPInt,
	TransactionCount, TimeDiff, HourOfDay, DayOfWeek, SourceDirect, SourceSEO,
	BrowserFireFox, BrowserIE, BrowserOpera, BrowserSafari, SexM,
}

// Names returns a copy of RequiredFeatures.
func Names() []string {
	return append([]string(nil), RequiredFeatures...)
}

// Count is the vector length.
func Count() int { return len(RequiredFeatures) }

// Timestamp reports whether the feature carries a point in time.
func Timestamp(name string) bool {
	return name == SignupTime || name == PurchaseTime
}

// CheckNames returns an error unless names equals RequiredFeatures in order.
func CheckNames(names []string) error {
	if len(names) != len(RequiredFeatures) {
		return fmt.Errorf("model expects %d features, service provides %d", len(names), len(RequiredFeatures))
	}
	for i, name := range names {
		if name != RequiredFeatures[i] {
			return fmt.Errorf("feature %d is %q, want %q", i, name, RequiredFeatures[i])
		}
	}
	return nil
}

var (
	// ErrMissingFeatures is matched by MissingFeaturesError.
	ErrMissingFeatures = errors.New("missing one or more required features")
	// ErrInvalidFeature is matched by InvalidFeatureError.
	ErrInvalidFeature = errors.New("invalid feature value")
)

// MissingFeaturesError names the absent keys in model order.
type MissingFeaturesError struct {
	Names []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("missing required features: %s", strings.Join(e.Names, ", "))
}

// Is matches ErrMissingFeatures.
func (e *MissingFeaturesError) Is(target error) bool { return target == ErrMissingFeatures }

// InvalidFeatureError reports a value that cannot be coerced to a number.
type InvalidFeatureError struct {
	Name  string
	Value any
	Err   error
}

func (e *InvalidFeatureError) Error() string {
	return fmt.Sprintf("invalid value for feature %s: %v", e.Name, e.Err)
}

// Is matches ErrInvalidFeature.
func (e *InvalidFeatureError) Is(target error) bool { return target == ErrInvalidFeature }

func (e *InvalidFeatureError) Unwrap() error { return e.Err }

// Extract validates a decoded JSON object and returns its vector. Every key
// in RequiredFeatures must be present; extra keys are ignored.
func Extract(payload map[string]any) ([]float64, error) {
	var missing []string
	for _, name := range RequiredFeatures {
		if _, ok := payload[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFeaturesError{Names: missing}
	}

	vec := make([]float64, len(RequiredFeatures))
	for i, name := range RequiredFeatures {
		v, err := toFloat(payload[name])
		if err != nil {
			return nil, &InvalidFeatureError{Name: name, Value: payload[name], Err: err}
		}
		vec[i] = v
	}
	return vec, nil
}

func toFloat(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, errors.New("value is null")
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v.String())
		}
		f = parsed
	case string:
		return parseString(v)
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("value is not finite")
	}
	return f, nil
}

func parseString(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errors.New("value is empty")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, errors.New("value is not finite")
		}
		return f, nil
	}
	switch strings.ToLower(s) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	t, err := dataset.ParseTimestamp(s)
	if err != nil {
		return 0, fmt.Errorf("not a number or timestamp: %q", raw)
	}
	return UnixSeconds(t), nil
}

// UnixSeconds is the numeric encoding used for timestamp features.
func UnixSeconds(t time.Time) float64 {
	return float64(t.Unix())
}

// DayIndex maps Monday to 0 and Sunday to 6.
func DayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func indicator(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// FromTransaction derives the vector for a dataset row. deviceCounts maps
// device_id to the number of transactions that device made.
func FromTransaction(tx dataset.Transaction, deviceCounts map[string]int) []float64 {
	vec := make([]float64, 0, len(RequiredFeatures))
	vec = append(vec,
		float64(tx.UserID),
		UnixSeconds(tx.SignupTime),
		UnixSeconds(tx.PurchaseTime),
		tx.PurchaseValue,
		float64(tx.Age),
		math.Floor(tx.IPAddress),
		float64(deviceCounts[tx.DeviceID]),
		tx.PurchaseTime.Sub(tx.SignupTime).Seconds(),
		float64(tx.PurchaseTime.Hour()),
		float64(DayIndex(tx.PurchaseTime.Weekday())),
		indicator(tx.Source == "Direct"),
		indicator(tx.Source == "SEO"),
		indicator(tx.Browser == "FireFox"),
		indicator(tx.Browser == "IE"),
		indicator(tx.Browser == "Opera"),
		indicator(tx.Browser == "Safari"),
		indicator(tx.Sex == "M"),
	)
	return vec
}

// Matrix builds the design matrix and labels for a dataset. Device counts
// are taken from counts when non-nil, otherwise from ds itself.
func Matrix(ds *dataset.Dataset, counts map[string]int) ([][]float64, []int) {
	if counts == nil {
		counts = ds.DeviceCounts()
	}
	rows := ds.Rows()
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, tx := range rows {
		x[i] = FromTransaction(tx, counts)
		y[i] = tx.Class
	}
	return x, y
}

// Payload renders a vector as a request body keyed by feature name.
func Payload(vec []float64) (map[string]any, error) {
	if len(vec) != len(RequiredFeatures) {
		return nil, fmt.Errorf("vector has %d values, want %d", len(vec), len(RequiredFeatures))
	}
	out := make(map[string]any, len(vec))
	for i, name := range RequiredFeatures {
		out[name] = vec[i]
	}
	return out, nil
}
