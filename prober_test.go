package curlfuzz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProberSendsTheUnmodifiedTemplate(t *testing.T) {
	sender := &stubSender{respond: respondWith(201, "created")}
	prober := &HTTPProber{Sender: sender, Count: 4, Logger: testLogger(t)}

	stats, err := prober.Probe(context.Background(), vipsTemplate(t), false)
	require.NoError(t, err)
	require.NoError(t, stats.Validate())
	assert.Equal(t, 201, stats.StatusCode.Value)
	assert.Equal(t, int64(len("created")), stats.BodySize.Value)
	assert.True(t, stats.Stable)

	require.Equal(t, 4, sender.Count())
	for _, req := range sender.requests {
		assert.Equal(t, vipsBody, string(req.RawBody))
	}
}

func TestHTTPProberDefaultCount(t *testing.T) {
	sender := &stubSender{respond: respondWith(200, "ok")}
	prober := &HTTPProber{Sender: sender, Logger: testLogger(t)}

	_, err := prober.Probe(context.Background(), vipsTemplate(t), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultProbeCount, sender.Count())
}

func TestHTTPProberLeavesSlotsEmptyWhenTargetIsDown(t *testing.T) {
	sender := &stubSender{respond: func(*Request) (*Response, error) {
		return nil, errors.New("connection refused")
	}}
	prober := &HTTPProber{Sender: sender, Count: 3, Logger: testLogger(t)}

	stats, err := prober.Probe(context.Background(), vipsTemplate(t), false)
	require.NoError(t, err)
	assert.Len(t, stats.Missing(), 4)
}

func TestHTTPProberStopsWhenCancelled(t *testing.T) {
	sender := &stubSender{respond: respondWith(200, "ok")}
	prober := &HTTPProber{Sender: sender, Count: 3, Logger: testLogger(t)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := prober.Probe(ctx, vipsTemplate(t), false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sender.Count())
}
