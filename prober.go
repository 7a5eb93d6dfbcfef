package curlfuzz

import (
	"context"

	"github.com/rs/zerolog"
)

// DefaultProbeCount is how many unmodified requests make up a baseline.
const DefaultProbeCount = 10

// Prober computes the baseline statistics of a template.
type Prober interface {
	Probe(ctx context.Context, template *RequestTemplate, secure bool) (*Statistics, error)
}

// HTTPProber sends the template with its injection points untouched Count times, one after another.
// Failed probes leave slots empty rather than failing the probe.
type HTTPProber struct {
	Sender Sender
	Count  int
	Logger zerolog.Logger
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, template *RequestTemplate, secure bool) (*Statistics, error) {
	raw, err := template.Baseline()
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest(raw)
	if err != nil {
		return nil, err
	}

	count := p.Count
	if count <= 0 {
		count = DefaultProbeCount
	}

	target := template.Target(secure)
	samples := make([]*Response, 0, count)
	failures := 0
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := p.Sender.Do(target, req)
		if err != nil {
			failures++
			p.Logger.Warn().Err(err).Int("probe", i).Str("target", target.URL()).Msg("Baseline probe failed")
			continue
		}
		p.Logger.Debug().Int("probe", i).Int("status", resp.StatusCode).Dur("elapsed", resp.Elapsed).Msg("Baseline probe")
		samples = append(samples, resp)
	}

	stats := Summarize(samples, failures)
	p.Logger.Info().Stringer("statistics", stats).Int("failures", failures).Bool("stable", stats.Stable).Msg("Baseline computed")
	return stats, nil
}
