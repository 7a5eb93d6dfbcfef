package curlfuzz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// PoolSpec describes a worker pool: Processes workers, each a copy of WorkerSpec with its own ID.
type PoolSpec struct {
	WorkerSpec
	Processes int
}

// WorkerHandle identifies a running worker and kills it.
// Kill must not wait for the worker to exit, and calling it twice is harmless.
type WorkerHandle interface {
	ID() string
	Kill() error
}

// Pool starts workers that put their messages on results.
type Pool interface {
	Spawn(ctx context.Context, spec PoolSpec, results *Queue) ([]WorkerHandle, error)
}

// PoolError is returned when a pool can't start all of its workers.
// Workers that did start have already been killed.
type PoolError struct {
	Started int
	Err     error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("starting worker pool (%d started): %v", e.Started, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// SenderFactory builds the Sender a worker uses.
type SenderFactory func(timeout time.Duration) Sender

// DefaultSenderFactory returns a rawhttp backed Client.
func DefaultSenderFactory(timeout time.Duration) Sender {
	return NewClient(timeout)
}

func workerSpecAt(spec PoolSpec, index int) WorkerSpec {
	worker := spec.WorkerSpec
	worker.ID = fmt.Sprintf("worker-%d-%s", index, uuid.NewString()[:8])
	if worker.Seed != 0 {
		worker.Seed += int64(index)
	}
	return worker
}

// GoroutinePool runs every worker as a goroutine in this process.
// Killing a worker cancels its context; a thread blocked on the network stops once its request times out.
type GoroutinePool struct {
	NewSender SenderFactory
	Logger    zerolog.Logger
}

// Spawn implements Pool.
func (p *GoroutinePool) Spawn(ctx context.Context, spec PoolSpec, results *Queue) ([]WorkerHandle, error) {
	newSender := p.NewSender
	if newSender == nil {
		newSender = DefaultSenderFactory
	}

	handles := make([]WorkerHandle, 0, spec.Processes)
	for i := 0; i < spec.Processes; i++ {
		if err := ctx.Err(); err != nil {
			killAll(handles)
			return nil, &PoolError{Started: len(handles), Err: err}
		}

		workerSpec := workerSpecAt(spec, i)
		fuzzer := NewFuzzer(&workerSpec, newSender(workerSpec.Timeout), results.Put, p.Logger)

		// Workers outlive the spawning context. Only Kill stops them.
		workerCtx, cancel := context.WithCancel(context.Background())
		handle := &goroutineHandle{id: workerSpec.ID, cancel: cancel, done: make(chan struct{})}
		var wg conc.WaitGroup
		wg.Go(func() {
			if err := fuzzer.Run(workerCtx); err != nil {
				p.Logger.Error().Err(err).Str("worker", handle.id).Msg("Worker stopped")
				results.Put(Message{Worker: handle.id, Kind: ErrorMessage, Text: fmt.Sprintf("worker stopped: %v", err), Time: time.Now()})
			}
		})
		go func() {
			defer close(handle.done)
			// A panicking worker dies alone, like a crashed worker process.
			if recovered := wg.WaitAndRecover(); recovered != nil {
				value := panicValue(recovered)
				p.Logger.Error().Interface("panic", value).Str("worker", handle.id).Msg("Worker panicked")
				results.Put(Message{Worker: handle.id, Kind: ErrorMessage, Text: fmt.Sprintf("worker panicked: %v", value), Time: time.Now()})
			}
		}()
		handles = append(handles, handle)
	}

	p.Logger.Debug().Int("workers", len(handles)).Msg("Started goroutine workers")
	return handles, nil
}

type goroutineHandle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *goroutineHandle) ID() string { return h.id }

func (h *goroutineHandle) Kill() error {
	h.cancel()
	return nil
}

// Done is closed once the worker goroutine has returned.
func (h *goroutineHandle) Done() <-chan struct{} {
	return h.done
}

// panicValue unwraps panics that conc re-raised from the fuzzer's own thread pool.
func panicValue(recovered *panics.Recovered) interface{} {
	value := recovered.Value
	for {
		inner, ok := value.(*panics.Recovered)
		if !ok {
			return value
		}
		value = inner.Value
	}
}

func killAll(handles []WorkerHandle) {
	for _, handle := range handles {
		_ = handle.Kill()
	}
}
