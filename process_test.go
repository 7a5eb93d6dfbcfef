package curlfuzz

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperProcessEnv = "CURLFUZZ_HELPER_PROCESS"

// TestWorkerHelperProcess is the worker binary for the ProcessPool tests. It fuzzes a stub target until killed.
func TestWorkerHelperProcess(t *testing.T) {
	if os.Getenv(helperProcessEnv) != "1" {
		return
	}

	newSender := func(time.Duration) Sender { return &stubSender{respond: respondWith(200, "ok")} }
	err := ServeWorker(context.Background(), os.Stdin, os.Stdout, newSender, zerolog.Nop())
	if err != nil {
		os.Exit(2)
	}
}

func helperPool(t *testing.T) *ProcessPool {
	return &ProcessPool{
		Path:   os.Args[0],
		Args:   []string{"-test.run=TestWorkerHelperProcess"},
		Env:    []string{helperProcessEnv + "=1"},
		Stderr: testWriter{t},
		Logger: testLogger(t),
	}
}

func TestProcessPoolSpawnsAndKillsWorkers(t *testing.T) {
	results := NewQueue()
	handles, err := helperPool(t).Spawn(context.Background(), testPoolSpec(t, 2), results)
	require.NoError(t, err)
	require.Len(t, handles, 2)

	started := map[string]bool{}
	require.Eventually(t, func() bool {
		for {
			message, ok := results.TryGet()
			if !ok {
				break
			}
			if message.Kind == StatusMessage && strings.HasPrefix(message.Text, "fuzzing ") {
				started[message.Worker] = true
			}
		}
		return len(started) == 2
	}, 30*time.Second, 10*time.Millisecond)

	for _, handle := range handles {
		assert.True(t, started[handle.ID()])
		process := handle.(*processHandle)
		assert.NotZero(t, process.Pid())
		require.NoError(t, handle.Kill())
	}

	for _, handle := range handles {
		select {
		case <-handle.(*processHandle).Exited():
		case <-time.After(10 * time.Second):
			t.Fatalf("%s survived Kill", handle.ID())
		}
		assert.NoError(t, handle.Kill())
	}
}

func TestProcessPoolMissingBinary(t *testing.T) {
	pool := &ProcessPool{Path: "./notfound", Logger: testLogger(t)}

	handles, err := pool.Spawn(context.Background(), testPoolSpec(t, 2), NewQueue())
	assert.Nil(t, handles)

	var poolErr *PoolError
	require.ErrorAs(t, err, &poolErr)
	assert.Zero(t, poolErr.Started)
}

type lockedBuffer struct {
	mux sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mux.Lock()
	defer b.mux.Unlock()
	return b.buf.String()
}

func TestServeWorkerWritesJSONLines(t *testing.T) {
	spec := testWorkerSpec(t)
	encoded, err := json.Marshal(spec)
	require.NoError(t, err)

	sender := &stubSender{respond: respondWith(500, "boom")}
	out := &lockedBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ServeWorker(ctx, bytes.NewReader(encoded), out, func(time.Duration) Sender { return sender }, testLogger(t))
	}()

	require.Eventually(t, func() bool { return strings.Count(out.String(), "\n") >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	var messages []Message
	for scanner.Scan() {
		var message Message
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &message))
		messages = append(messages, message)
	}

	require.NotEmpty(t, messages)
	assert.Equal(t, StatusMessage, messages[0].Kind)
	assert.Equal(t, spec.ID, messages[0].Worker)
	assert.Equal(t, FindingMessage, messages[1].Kind)
	require.NotNil(t, messages[1].Finding)
	assert.Equal(t, 500, messages[1].Finding.StatusCode)
}

func TestServeWorkerRejectsGarbage(t *testing.T) {
	err := ServeWorker(context.Background(), strings.NewReader("not json"), &lockedBuffer{}, nil, testLogger(t))
	assert.Error(t, err)
}
