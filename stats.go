package curlfuzz

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Slot is one baseline metric. A slot that isn't Valid was never measured.
type Slot[T any] struct {
	Value T    `json:"value"`
	Valid bool `json:"valid"`
}

// Some returns a valid slot holding value.
func Some[T any](value T) Slot[T] {
	return Slot[T]{Value: value, Valid: true}
}

const sampleLimit = 4096

// Statistics is the fingerprint of the unmodified request.
// Every slot must be valid before any worker starts: without a reference there is nothing to deviate from.
type Statistics struct {
	StatusCode   Slot[int]           `json:"status_code"`
	ResponseTime Slot[time.Duration] `json:"response_time"`
	BodyHash     Slot[string]        `json:"body_hash"`
	BodySize     Slot[int64]         `json:"body_size"`

	// Stable is true when every probe returned the same body.
	Stable bool `json:"stable"`
	// Sample is the start of a baseline body.
	Sample string `json:"sample"`
}

// Missing returns the names of the slots that hold no value, in slot order.
func (s *Statistics) Missing() []string {
	if s == nil {
		return []string{"status_code", "response_time", "body_hash", "body_size"}
	}

	missing := []string{}
	if !s.StatusCode.Valid {
		missing = append(missing, "status_code")
	}
	if !s.ResponseTime.Valid {
		missing = append(missing, "response_time")
	}
	if !s.BodyHash.Valid {
		missing = append(missing, "body_hash")
	}
	if !s.BodySize.Valid {
		missing = append(missing, "body_size")
	}
	return missing
}

// Validate returns a *BaselineUnavailableError unless every slot holds a value.
func (s *Statistics) Validate() error {
	if missing := s.Missing(); len(missing) > 0 {
		return &BaselineUnavailableError{Missing: missing}
	}
	return nil
}

func (s *Statistics) String() string {
	return fmt.Sprintf("(%d, %s, %s, %d)", s.StatusCode.Value, s.ResponseTime.Value, s.BodyHash.Value, s.BodySize.Value)
}

// BaselineUnavailableError means the campaign has no usable baseline, either because a slot is empty or because probing failed.
type BaselineUnavailableError struct {
	Missing []string
	Err     error
}

func (e *BaselineUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unable to retrieve stats: %v", e.Err)
	}
	return fmt.Sprintf("unable to retrieve stats: missing %s", strings.Join(e.Missing, ", "))
}

func (e *BaselineUnavailableError) Unwrap() error {
	return e.Err
}

// Summarize computes statistics from the responses to the baseline probes.
// The body hash is only trusted when no probe failed.
func Summarize(samples []*Response, failures int) *Statistics {
	stats := &Statistics{}
	if len(samples) == 0 {
		return stats
	}

	statusCounts := map[int]int{}
	hashCounts := map[string]int{}
	var totalTime time.Duration
	var totalSize int64
	for _, sample := range samples {
		statusCounts[sample.StatusCode]++
		hashCounts[sample.Hash()]++
		totalTime += sample.Elapsed
		totalSize += sample.Size()
	}

	stats.StatusCode = Some(mostCommon(statusCounts))
	stats.ResponseTime = Some(totalTime / time.Duration(len(samples)))
	stats.BodySize = Some(totalSize / int64(len(samples)))
	if failures == 0 {
		stats.BodyHash = Some(mostCommon(hashCounts))
	}
	stats.Stable = len(hashCounts) == 1

	sample := samples[0].Body
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}
	stats.Sample = string(sample)
	return stats
}

// mostCommon returns the key seen most often, breaking ties with the smallest key.
func mostCommon[K int | string](counts map[K]int) K {
	keys := make([]K, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var best K
	bestCount := 0
	for _, key := range keys {
		if counts[key] > bestCount {
			best, bestCount = key, counts[key]
		}
	}
	return best
}
