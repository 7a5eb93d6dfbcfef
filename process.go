package curlfuzz

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WorkerCommand is the argument that turns the curlfuzz binary into a worker process.
const WorkerCommand = "worker"

// ProcessPool runs every worker as a child process: the current executable re-run with WorkerCommand.
// The worker reads its WorkerSpec as JSON on stdin and writes one JSON Message per line on stdout.
// Kill sends SIGKILL, so a worker stuck on the network dies immediately.
type ProcessPool struct {
	// Path defaults to the running executable.
	Path string
	// Args default to WorkerCommand.
	Args []string
	// Env is appended to the environment of this process.
	Env    []string
	Stderr io.Writer
	Logger zerolog.Logger
}

// Spawn implements Pool.
func (p *ProcessPool) Spawn(ctx context.Context, spec PoolSpec, results *Queue) ([]WorkerHandle, error) {
	path := p.Path
	if path == "" {
		executable, err := os.Executable()
		if err != nil {
			return nil, &PoolError{Err: err}
		}
		path = executable
	}

	handles := make([]WorkerHandle, 0, spec.Processes)
	for i := 0; i < spec.Processes; i++ {
		if err := ctx.Err(); err != nil {
			killAll(handles)
			return nil, &PoolError{Started: len(handles), Err: err}
		}

		handle, err := p.start(path, workerSpecAt(spec, i), results)
		if err != nil {
			killAll(handles)
			return nil, &PoolError{Started: len(handles), Err: err}
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

func (p *ProcessPool) start(path string, spec WorkerSpec, results *Queue) (*processHandle, error) {
	encoded, err := json.Marshal(&spec)
	if err != nil {
		return nil, err
	}

	args := p.Args
	if len(args) == 0 {
		args = []string{WorkerCommand}
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stdin = bytes.NewReader(encoded)
	cmd.Stderr = p.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", spec.ID, err)
	}

	handle := &processHandle{id: spec.ID, cmd: cmd, exited: make(chan struct{})}
	p.Logger.Debug().Str("worker", spec.ID).Int("pid", cmd.Process.Pid).Msg("Started worker process")
	go p.relay(handle, stdout, results)
	return handle, nil
}

// relay moves a worker's messages onto the queue and reaps the process once its stdout closes.
func (p *ProcessPool) relay(handle *processHandle, stdout io.Reader, results *Queue) {
	defer close(handle.exited)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var message Message
		if err := json.Unmarshal(scanner.Bytes(), &message); err != nil {
			message = Message{Kind: ErrorMessage, Text: scanner.Text(), Time: time.Now()}
		}
		if message.Worker == "" {
			message.Worker = handle.id
		}
		results.Put(message)
	}

	err := handle.cmd.Wait()
	p.Logger.Debug().Err(err).Str("worker", handle.id).Msg("Worker process exited")
}

type processHandle struct {
	id     string
	cmd    *exec.Cmd
	exited chan struct{}

	once    sync.Once
	killErr error
}

func (h *processHandle) ID() string { return h.id }

// Pid returns the operating system process id of the worker.
func (h *processHandle) Pid() int { return h.cmd.Process.Pid }

func (h *processHandle) Kill() error {
	h.once.Do(func() {
		err := h.cmd.Process.Kill()
		if err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.killErr = err
		}
	})
	return h.killErr
}

// Exited is closed once the worker process has been reaped.
func (h *processHandle) Exited() <-chan struct{} {
	return h.exited
}

// ServeWorker is the body of a worker process. It reads a WorkerSpec from in and fuzzes until ctx is cancelled
// or the process is killed, writing each Message to out as a line of JSON.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, newSender SenderFactory, logger zerolog.Logger) error {
	var spec WorkerSpec
	if err := json.NewDecoder(in).Decode(&spec); err != nil {
		return fmt.Errorf("reading worker spec: %w", err)
	}

	if newSender == nil {
		newSender = DefaultSenderFactory
	}

	var mux sync.Mutex
	encoder := json.NewEncoder(out)
	emit := func(message Message) {
		mux.Lock()
		defer mux.Unlock()
		if err := encoder.Encode(message); err != nil {
			logger.Error().Err(err).Msg("Error writing message")
		}
	}

	fuzzer := NewFuzzer(&spec, newSender(spec.Timeout), emit, logger)
	return fuzzer.Run(ctx)
}
