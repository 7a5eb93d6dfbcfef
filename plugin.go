package curlfuzz

import (
	"fmt"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Plugin decides whether a fuzzed response deviates from the baseline.
type Plugin interface {
	Inspect(result *Result, baseline *Statistics) (reason string, deviates bool)
	Name() string
}

// Result is a fuzzed request, its response and the payload that produced it.
type Result struct {
	Request  *Request
	Response *Response
	Payload  string
	Position int
}

// Finding is a response that a plugin flagged as a candidate vulnerability.
type Finding struct {
	Plugin     string        `json:"plugin"`
	Reason     string        `json:"reason"`
	Payload    string        `json:"payload"`
	Position   int           `json:"position"`
	StatusCode int           `json:"status_code"`
	Size       int64         `json:"size"`
	Elapsed    time.Duration `json:"elapsed"`
	// Distance is the Levenshtein distance between the baseline sample and the start of this body.
	Distance int `json:"distance"`
}

// DefaultPlugins returns the plugins every worker runs unless told otherwise.
func DefaultPlugins() []Plugin {
	return []Plugin{
		StatusCodePlugin{},
		SizePlugin{Tolerance: 0.5, Minimum: 32},
		SlowdownPlugin{Factor: 10, Minimum: time.Second},
	}
}

// Inspect runs every plugin against a result and returns a finding for each deviation.
func Inspect(plugins []Plugin, result *Result, baseline *Statistics) []*Finding {
	var findings []*Finding
	distance := -1
	for _, plugin := range plugins {
		reason, deviates := plugin.Inspect(result, baseline)
		if !deviates {
			continue
		}

		if distance < 0 {
			distance = bodyDistance(baseline.Sample, result.Response.Body)
		}
		findings = append(findings, &Finding{
			Plugin:     plugin.Name(),
			Reason:     reason,
			Payload:    result.Payload,
			Position:   result.Position,
			StatusCode: result.Response.StatusCode,
			Size:       result.Response.Size(),
			Elapsed:    result.Response.Elapsed,
			Distance:   distance,
		})
	}
	return findings
}

func bodyDistance(sample string, body []byte) int {
	if len(body) > sampleLimit {
		body = body[:sampleLimit]
	}
	dmp := diffmatchpatch.New()
	return dmp.DiffLevenshtein(dmp.DiffMain(sample, string(body), false))
}

// StatusCodePlugin flags any status code other than the baseline's.
type StatusCodePlugin struct{}

func (StatusCodePlugin) Name() string { return "status-code" }

func (StatusCodePlugin) Inspect(result *Result, baseline *Statistics) (string, bool) {
	if result.Response.StatusCode == baseline.StatusCode.Value {
		return "", false
	}
	return fmt.Sprintf("status %d, baseline %d", result.Response.StatusCode, baseline.StatusCode.Value), true
}

// SizePlugin flags bodies whose size is off the baseline by more than Tolerance (a fraction of the baseline size)
// and by at least Minimum bytes.
type SizePlugin struct {
	Tolerance float64
	Minimum   int64
}

func (SizePlugin) Name() string { return "body-size" }

func (p SizePlugin) Inspect(result *Result, baseline *Statistics) (string, bool) {
	size := result.Response.Size()
	diff := size - baseline.BodySize.Value
	if diff < 0 {
		diff = -diff
	}

	if diff < p.Minimum || float64(diff) <= float64(baseline.BodySize.Value)*p.Tolerance {
		return "", false
	}
	return fmt.Sprintf("body %d bytes, baseline %d", size, baseline.BodySize.Value), true
}

// SlowdownPlugin flags responses Factor times slower than the baseline, ignoring anything faster than Minimum.
type SlowdownPlugin struct {
	Factor  float64
	Minimum time.Duration
}

func (SlowdownPlugin) Name() string { return "slowdown" }

func (p SlowdownPlugin) Inspect(result *Result, baseline *Statistics) (string, bool) {
	elapsed := result.Response.Elapsed
	if elapsed < p.Minimum || float64(elapsed) <= float64(baseline.ResponseTime.Value)*p.Factor {
		return "", false
	}
	return fmt.Sprintf("took %s, baseline %s", elapsed, baseline.ResponseTime.Value), true
}
