package features

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fraud-detection/internal/dataset"
)

func validPayload() map[string]any {
	payload := make(map[string]any, len(RequiredFeatures))
	for _, name := range RequiredFeatures {
		payload[name] = 1.0
	}
	payload[SignupTime] = "2015-02-24 22:55:49"
	payload[PurchaseTime] = "2015-04-18 02:47:11"
	return payload
}

func TestRequiredFeaturesOrder(t *testing.T) {
	t.Parallel()

	require.Len(t, RequiredFeatures, 17)
	assert.Equal(t, "user_id", RequiredFeatures[0])
	assert.Equal(t, "sex_M", RequiredFeatures[16])

	names := Names()
	names[0] = "mutated"
	assert.Equal(t, "user_id", RequiredFeatures[0])
}

func TestExtractConvertsTimestampsAndNumbers(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	payload[PurchaseValue] = json.Number("34.5")
	payload[SexM] = true
	payload[Age] = "39"
	payload["extra"] = "ignored"

	vec, err := Extract(payload)
	require.NoError(t, err)
	require.Len(t, vec, 17)
	assert.Equal(t, float64(time.Date(2015, 2, 24, 22, 55, 49, 0, time.UTC).Unix()), vec[1])
	assert.Equal(t, 34.5, vec[3])
	assert.Equal(t, 39.0, vec[4])
	assert.Equal(t, 1.0, vec[16])
}

func TestExtractMissingFeatures(t *testing.T) {
	t.Parallel()

	payload := validPayload()
	delete(payload, Age)
	delete(payload, SexM)

	_, err := Extract(payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFeatures))

	var missing *MissingFeaturesError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{Age, SexM}, missing.Names)
}

func TestExtractInvalidValues(t *testing.T) {
	t.Parallel()

	for name, value := range map[string]any{
		"null":   nil,
		"word":   "abc",
		"object": map[string]any{"a": 1},
		"empty":  "  ",
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			payload := validPayload()
			payload[PurchaseValue] = value

			_, err := Extract(payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFeature))
			var invalid *InvalidFeatureError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, PurchaseValue, invalid.Name)
		})
	}
}

func TestFromTransaction(t *testing.T) {
	t.Parallel()

	tx := dataset.Transaction{
		UserID:        22058,
		SignupTime:    time.Date(2015, 2, 24, 22, 55, 49, 0, time.UTC),
		PurchaseTime:  time.Date(2015, 4, 18, 2, 47, 11, 0, time.UTC),
		PurchaseValue: 34,
		DeviceID:      "QVPSPJUOCKZAR",
		Source:        "SEO",
		Browser:       "Safari",
		Sex:           "M",
		Age:           39,
		IPAddress:     732758368.79972,
	}
	vec := FromTransaction(tx, map[string]int{"QVPSPJUOCKZAR": 3})
	require.Len(t, vec, len(RequiredFeatures))

	get := func(name string) float64 {
		for i, n := range RequiredFeatures {
			if n == name {
				return vec[i]
			}
		}
		t.Fatalf("unknown feature %s", name)
		return 0
	}

	assert.Equal(t, 732758368.0, get(IPInt))
	assert.Equal(t, 3.0, get(TransactionCount))
	assert.Equal(t, tx.PurchaseTime.Sub(tx.SignupTime).Seconds(), get(TimeDiff))
	assert.Equal(t, 2.0, get(HourOfDay))
	// 2015-04-18 was a Saturday.
	assert.Equal(t, 5.0, get(DayOfWeek))
	assert.Equal(t, 1.0, get(SourceSEO))
	assert.Equal(t, 0.0, get(SourceDirect))
	assert.Equal(t, 1.0, get(BrowserSafari))
	assert.Equal(t, 0.0, get(BrowserIE))
	assert.Equal(t, 1.0, get(SexM))
}

func TestPayloadRoundTripsThroughExtract(t *testing.T) {
	t.Parallel()

	vec := make([]float64, len(RequiredFeatures))
	for i := range vec {
		vec[i] = float64(i)
	}
	payload, err := Payload(vec)
	require.NoError(t, err)
	got, err := Extract(payload)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = Payload(vec[:3])
	assert.Error(t, err)
}

func TestDayIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, DayIndex(time.Monday))
	assert.Equal(t, 6, DayIndex(time.Sunday))
}

func TestCheckNames(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckNames(Names()))
	assert.Error(t, CheckNames(Names()[:5]))

	swapped := Names()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	assert.ErrorContains(t, CheckNames(swapped), "feature 0")
}
