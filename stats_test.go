package curlfuzz

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeComputesEverySlot(t *testing.T) {
	samples := []*Response{
		{StatusCode: 200, Body: []byte("ok"), Elapsed: 10 * time.Millisecond},
		{StatusCode: 200, Body: []byte("ok"), Elapsed: 30 * time.Millisecond},
		{StatusCode: 500, Body: []byte("boom!"), Elapsed: 20 * time.Millisecond},
	}

	stats := Summarize(samples, 0)
	require.NoError(t, stats.Validate())
	assert.Equal(t, 200, stats.StatusCode.Value)
	assert.Equal(t, 20*time.Millisecond, stats.ResponseTime.Value)
	assert.Equal(t, int64(3), stats.BodySize.Value)
	assert.Equal(t, samples[0].Hash(), stats.BodyHash.Value)
	assert.False(t, stats.Stable)
	assert.Equal(t, "ok", stats.Sample)
}

func TestSummarizeDistrustsHashAfterFailures(t *testing.T) {
	samples := []*Response{{StatusCode: 200, Body: []byte("ok"), Elapsed: time.Millisecond}}

	stats := Summarize(samples, 1)
	assert.Equal(t, []string{"body_hash"}, stats.Missing())

	var baselineErr *BaselineUnavailableError
	require.True(t, errors.As(stats.Validate(), &baselineErr))
	assert.Equal(t, []string{"body_hash"}, baselineErr.Missing)
}

func TestSummarizeWithoutSamples(t *testing.T) {
	stats := Summarize(nil, 10)
	assert.Equal(t, []string{"status_code", "response_time", "body_hash", "body_size"}, stats.Missing())
	assert.Error(t, stats.Validate())
}

func TestSummarizeTruncatesSample(t *testing.T) {
	body := []byte(strings.Repeat("a", sampleLimit+10))
	stats := Summarize([]*Response{{StatusCode: 200, Body: body}}, 0)
	assert.Len(t, stats.Sample, sampleLimit)
	assert.True(t, stats.Stable)
}

func TestStatisticsWithEmptyHashIsUnavailable(t *testing.T) {
	stats := &Statistics{
		StatusCode:   Some(200),
		ResponseTime: Some(time.Duration(0)),
		BodySize:     Some(int64(512)),
	}

	err := stats.Validate()
	require.Error(t, err)
	assert.Equal(t, "unable to retrieve stats: missing body_hash", err.Error())
}

func TestNilStatisticsAreUnavailable(t *testing.T) {
	var stats *Statistics
	assert.Len(t, stats.Missing(), 4)
	assert.Error(t, stats.Validate())
}

func TestMostCommonBreaksTiesWithSmallestKey(t *testing.T) {
	assert.Equal(t, 200, mostCommon(map[int]int{500: 2, 200: 2, 404: 1}))
	assert.Equal(t, "a", mostCommon(map[string]int{"b": 1, "a": 1}))
}

func TestBaselineUnavailableErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &BaselineUnavailableError{Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "unable to retrieve stats: connection refused", err.Error())
}
