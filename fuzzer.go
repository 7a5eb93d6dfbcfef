package curlfuzz

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

// WorkerSpec is everything a single worker needs to fuzz a template.
// It is sent as JSON to worker processes.
type WorkerSpec struct {
	ID            string           `json:"id"`
	Template      *RequestTemplate `json:"template"`
	Target        Target           `json:"target"`
	Baseline      *Statistics      `json:"baseline"`
	Threads       int              `json:"threads"`
	StrongFuzz    bool             `json:"strong_fuzz"`
	Payloads      []string         `json:"payloads,omitempty"`
	RateLimit     float64          `json:"rate_limit"`
	Timeout       time.Duration    `json:"timeout"`
	ProgressEvery int              `json:"progress_every"`
	Seed          int64            `json:"seed"`
}

// Emitter receives the messages produced by a worker.
type Emitter func(Message)

// Job is one mutated request waiting to be sent.
type Job struct {
	Raw      string
	Payload  string
	Position int
}

// Fuzzer is a single worker. A generator goroutine keeps mutating the template's injection points
// while Threads goroutines send the results and compare the responses with the baseline.
// It runs until its context is cancelled.
type Fuzzer struct {
	*WorkerSpec
	Sender  Sender
	Mutator Mutator
	Plugins []Plugin
	Emit    Emitter
	Logger  zerolog.Logger

	limiter *rate.Limiter
	sent    atomic.Int64
	failed  atomic.Int64
}

// NewFuzzer returns a Fuzzer for spec with the default mutator and plugins.
func NewFuzzer(spec *WorkerSpec, sender Sender, emit Emitter, logger zerolog.Logger) *Fuzzer {
	seed := spec.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	fuzzer := &Fuzzer{
		WorkerSpec: spec,
		Sender:     sender,
		Mutator:    NewJSONMutator(spec.StrongFuzz, spec.Payloads, seed),
		Plugins:    DefaultPlugins(),
		Emit:       emit,
		Logger:     logger.With().Str("worker", spec.ID).Logger(),
	}
	if spec.RateLimit > 0 {
		fuzzer.limiter = rate.NewLimiter(rate.Limit(spec.RateLimit), 1)
	}
	return fuzzer
}

// Sent returns how many requests this worker has sent so far.
func (f *Fuzzer) Sent() int64 {
	return f.sent.Load()
}

// Run fuzzes until ctx is cancelled.
func (f *Fuzzer) Run(ctx context.Context) error {
	if f.Baseline == nil {
		return errors.New("worker started without a baseline")
	}

	seeds, err := f.Template.InjectionPoints()
	if err != nil {
		return err
	}
	if len(seeds) == 0 {
		return errors.New("template has no injection points")
	}

	threads := f.Threads
	if threads < 1 {
		threads = 1
	}

	f.emit(Message{Kind: StatusMessage, Text: fmt.Sprintf("fuzzing %s with %d threads", f.Target.URL(), threads)})
	jobs := f.GenerateJobs(ctx, seeds)
	return f.ProcessJobs(ctx, jobs, threads)
}

// GenerateJobs mutates the injection points round robin and sends the rendered requests into the returned channel.
// The channel is closed once ctx is done.
func (f *Fuzzer) GenerateJobs(ctx context.Context, seeds []string) <-chan *Job {
	jobs := make(chan *Job)

	go func(jobs chan<- *Job) {
		defer close(jobs)
		for position := 0; ; position = (position + 1) % len(seeds) {
			payload := f.Mutator.Mutate(seeds[position])
			raw, err := f.Template.Inject(position, payload)
			if err != nil {
				f.Logger.Error().Err(err).Int("position", position).Msg("Error injecting payload")
				return
			}

			select {
			case jobs <- &Job{Raw: raw, Payload: payload, Position: position}:
			case <-ctx.Done():
				return
			}
		}
	}(jobs)

	return jobs
}

// ProcessJobs sends jobs from threads goroutines until the channel closes or ctx is done.
func (f *Fuzzer) ProcessJobs(ctx context.Context, jobs <-chan *Job, threads int) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(threads)
	for thread := 0; thread < threads; thread++ {
		p.Go(func(ctx context.Context) error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					f.requestWorker(ctx, job)
				}
			}
		})
	}
	return p.Wait()
}

func (f *Fuzzer) requestWorker(ctx context.Context, job *Job) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return
		}
	}

	req, err := ParseRequest(job.Raw)
	if err != nil {
		f.fail(job, err)
		return
	}

	resp, err := f.Sender.Do(f.Target, req)
	sent := f.sent.Add(1)
	if err != nil {
		f.fail(job, err)
		return
	}

	result := &Result{Request: req, Response: resp, Payload: job.Payload, Position: job.Position}
	for _, finding := range Inspect(f.Plugins, result, f.Baseline) {
		f.emit(Message{
			Kind:    FindingMessage,
			Text:    fmt.Sprintf("%s: %s, payload %q", finding.Plugin, finding.Reason, truncate(finding.Payload, 120)),
			Finding: finding,
		})
	}

	if f.ProgressEvery > 0 && sent%int64(f.ProgressEvery) == 0 {
		f.emit(Message{Kind: ProgressMessage, Text: fmt.Sprintf("%d requests sent, %d failed", sent, f.failed.Load())})
	}
}

// fail reports the first failure and then one in every ProgressEvery, so a dead target doesn't flood the reporter.
func (f *Fuzzer) fail(job *Job, err error) {
	failed := f.failed.Add(1)
	f.Logger.Debug().Err(err).Int("position", job.Position).Msg("Error sending request")

	every := int64(f.ProgressEvery)
	if failed == 1 || (every > 0 && failed%every == 0) {
		f.emit(Message{Kind: ErrorMessage, Text: fmt.Sprintf("request failed (%d so far): %v", failed, err)})
	}
}

func (f *Fuzzer) emit(message Message) {
	message.Worker = f.ID
	message.Time = time.Now()
	if f.Emit != nil {
		f.Emit(message)
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
