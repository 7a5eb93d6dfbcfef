package curlfuzz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a step in the life of a campaign.
type State int

const (
	StateIdle State = iota
	StateTranslating
	StateProbing
	StateAborted
	StatePoolLaunched
	StateDraining
	StateTerminating
	StateDone
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateTranslating:  "translating",
	StateProbing:      "probing",
	StateAborted:      "aborted",
	StatePoolLaunched: "pool-launched",
	StateDraining:     "draining",
	StateTerminating:  "terminating",
	StateDone:         "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is how a campaign ended.
type Outcome struct {
	ID string
	// State is StateAborted or StateDone.
	State State
	// Err is a *TranslationError, *BaselineUnavailableError or *PoolError when the campaign aborted.
	Err        error
	Cancelled  bool
	Workers    int
	Forwarded  int
	Statistics *Statistics
}

// Campaign fuzzes a single captured request: translate, probe the baseline, start the workers,
// forward their messages to the reporter and kill them all once cancelled.
// Nothing but cancellation ends a campaign that got as far as starting its workers.
type Campaign struct {
	Config     *Config
	Translator Translator
	Prober     Prober
	Pool       Pool
	Reporter   Reporter
	// Payloads is handed to every worker. Empty means the built in payloads.
	Payloads []string
	Logger   zerolog.Logger
	// OnTransition is called after every state change.
	OnTransition func(from, to State)

	id    string
	queue *Queue

	mux             sync.Mutex
	state           State
	handles         []WorkerHandle
	killed          map[string]bool
	cancel          context.CancelFunc
	cancelRequested bool
}

// NewCampaign returns an idle campaign.
func NewCampaign(config *Config, translator Translator, prober Prober, pool Pool, reporter Reporter, logger zerolog.Logger) *Campaign {
	id := "campaign-" + uuid.NewString()[:8]
	return &Campaign{
		Config:     config,
		Translator: translator,
		Prober:     prober,
		Pool:       pool,
		Reporter:   reporter,
		Logger:     logger.With().Str("campaign", id).Logger(),
		id:         id,
		queue:      NewQueue(),
		killed:     map[string]bool{},
	}
}

// ID returns the campaign's identifier.
func (c *Campaign) ID() string {
	return c.id
}

// State returns the current state.
func (c *Campaign) State() State {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.state
}

// Results is the queue workers put their messages on.
func (c *Campaign) Results() *Queue {
	return c.queue
}

// Handles returns the workers started by this campaign.
func (c *Campaign) Handles() []WorkerHandle {
	c.mux.Lock()
	defer c.mux.Unlock()
	return append([]WorkerHandle(nil), c.handles...)
}

// Cancel asks Run to tear the campaign down. It can be called any number of times, before or during Run.
func (c *Campaign) Cancel() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.cancelRequested = true
	if c.cancel != nil {
		c.cancel()
	}
}

// Run drives the campaign until it aborts or ctx is cancelled (or Cancel is called).
// Failures before the workers start are reported and returned in the Outcome; they never spawn a worker.
func (c *Campaign) Run(ctx context.Context, capture string) *Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mux.Lock()
	c.cancel = cancel
	if c.cancelRequested {
		cancel()
	}
	c.mux.Unlock()

	outcome := &Outcome{ID: c.id}
	c.report(Status("Starting curlfuzz campaign %s", c.id))

	c.transition(StateTranslating)
	parsed, err := c.Translator.Translate(capture)
	if err != nil {
		return c.abort(outcome, err)
	}
	template := BuildTemplate(parsed)
	secure := c.Config.Secure || parsed.Secure()
	target := template.Target(secure)
	c.Logger.Info().Str("method", parsed.Method).Str("target", target.URL()).Str("path", parsed.URL.RequestURI()).Msg("Capture translated")

	c.transition(StateProbing)
	stats, err := c.probe(ctx, template, secure)
	if err == nil {
		err = stats.Validate()
	}
	if err != nil {
		c.report(Status("Unable to retrieve stats :("))
		return c.abort(outcome, asBaselineError(stats, err))
	}
	outcome.Statistics = stats
	c.report(Status("Baseline %s: %s", target.URL(), stats))

	c.transition(StatePoolLaunched)
	c.report(Status("Start fuzzing in a few seconds..."))
	handles, err := c.Pool.Spawn(ctx, c.poolSpec(template, target, stats), c.queue)
	if err != nil {
		return c.abort(outcome, err)
	}

	c.mux.Lock()
	c.handles = handles
	c.mux.Unlock()
	outcome.Workers = len(handles)
	c.Logger.Info().Int("workers", len(handles)).Int("threads", c.Config.ThreadsPerProcess).Bool("strong", c.Config.StrongFuzz).Msg("Worker pool started")

	c.transition(StateDraining)
	outcome.Forwarded = c.drain(ctx)

	c.report(Status("Killing all processes, please wait..."))
	c.transition(StateTerminating)
	c.Terminate()

	c.transition(StateDone)
	outcome.State = StateDone
	outcome.Cancelled = true
	c.report(Status("Bye!"))
	return outcome
}

func (c *Campaign) poolSpec(template *RequestTemplate, target Target, stats *Statistics) PoolSpec {
	return PoolSpec{
		WorkerSpec: WorkerSpec{
			Template:      template,
			Target:        target,
			Baseline:      stats,
			Threads:       c.Config.ThreadsPerProcess,
			StrongFuzz:    c.Config.StrongFuzz,
			Payloads:      c.Payloads,
			RateLimit:     c.Config.RateLimit,
			Timeout:       c.Config.Timeout,
			ProgressEvery: c.Config.ProgressEvery,
		},
		Processes: c.Config.ProcessCount,
	}
}

// probe turns a panicking prober into an error: a half formed baseline must never reach the workers.
func (c *Campaign) probe(ctx context.Context, template *RequestTemplate, secure bool) (stats *Statistics, err error) {
	defer func() {
		if r := recover(); r != nil {
			stats, err = nil, fmt.Errorf("baseline probe panicked: %v", r)
		}
	}()
	return c.Prober.Probe(ctx, template, secure)
}

func asBaselineError(stats *Statistics, err error) error {
	var baselineErr *BaselineUnavailableError
	if errors.As(err, &baselineErr) {
		return err
	}
	return &BaselineUnavailableError{Missing: stats.Missing(), Err: err}
}

func (c *Campaign) abort(outcome *Outcome, err error) *Outcome {
	c.Logger.Error().Err(err).Msg("Campaign aborted")
	c.report(Message{Kind: ErrorMessage, Text: err.Error(), Time: time.Now()})
	c.transition(StateAborted)
	outcome.State = StateAborted
	outcome.Err = err
	return outcome
}

// drain forwards queued messages to the reporter until ctx is done, waking on every Put and at least once per PollInterval.
// Messages already queued when ctx is done are forwarded before it returns.
func (c *Campaign) drain(ctx context.Context) int {
	interval := c.Config.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	forwarded := 0
	for {
		forwarded += c.forwardPending()
		select {
		case <-ctx.Done():
			return forwarded + c.forwardPending()
		case <-c.queue.Ready():
		case <-ticker.C:
		}
	}
}

// forwardPending forwards the messages queued right now, not the ones that arrive meanwhile,
// so a busy pool can't keep the drain loop from seeing a cancellation.
func (c *Campaign) forwardPending() int {
	pending := c.queue.Len()
	for i := 0; i < pending; i++ {
		message, ok := c.queue.TryGet()
		if !ok {
			return i
		}
		c.report(message)
	}
	return pending
}

// Terminate kills every worker that hasn't been killed yet without waiting for any of them to exit.
// Calling it again only affects workers started since the last call.
func (c *Campaign) Terminate() {
	c.mux.Lock()
	pending := make([]WorkerHandle, 0, len(c.handles))
	for _, handle := range c.handles {
		if !c.killed[handle.ID()] {
			c.killed[handle.ID()] = true
			pending = append(pending, handle)
		}
	}
	c.mux.Unlock()

	for _, handle := range pending {
		if err := handle.Kill(); err != nil {
			c.Logger.Warn().Err(err).Str("worker", handle.ID()).Msg("Error killing worker")
		}
	}
	c.Logger.Info().Int("killed", len(pending)).Msg("Workers terminated")
}

func (c *Campaign) transition(to State) {
	c.mux.Lock()
	from := c.state
	c.state = to
	c.mux.Unlock()

	c.Logger.Debug().Stringer("from", from).Stringer("to", to).Msg("Campaign state")
	if c.OnTransition != nil {
		c.OnTransition(from, to)
	}
}

func (c *Campaign) report(message Message) {
	if c.Reporter == nil {
		return
	}
	if message.Worker == "" {
		message.Worker = c.id
	}
	c.Reporter.Report(message)
}
