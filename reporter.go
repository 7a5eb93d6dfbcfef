package curlfuzz

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Reporter is where campaign output goes. Report must never block the caller.
type Reporter interface {
	Report(message Message)
}

// DefaultReportBuffer is how many messages a ConsoleReporter holds before it starts dropping progress messages.
const DefaultReportBuffer = 1024

var (
	statusColor   = color.New(color.FgCyan)
	progressColor = color.New(color.FgBlue)
	findingColor  = color.New(color.FgRed, color.Bold)
	errorColor    = color.New(color.FgYellow)
)

// ConsoleReporter prints messages in the order they were reported, from its own goroutine.
// Once Buffer messages are waiting, new progress messages are counted and dropped.
// Status, error and finding messages are always printed.
type ConsoleReporter struct {
	Out    io.Writer
	Buffer int

	pending *Queue
	closing chan struct{}
	done    chan struct{}
	dropped atomic.Int64

	mux    sync.RWMutex
	closed bool

	counts   map[MessageKind]int
	findings map[string]int
}

// NewConsoleReporter starts a reporter that writes to out.
func NewConsoleReporter(out io.Writer, buffer int) *ConsoleReporter {
	if buffer <= 0 {
		buffer = DefaultReportBuffer
	}

	r := &ConsoleReporter{
		Out:      out,
		Buffer:   buffer,
		pending:  NewQueue(),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		counts:   map[MessageKind]int{},
		findings: map[string]int{},
	}
	go r.print()
	return r
}

// Report implements Reporter.
func (r *ConsoleReporter) Report(message Message) {
	r.mux.RLock()
	defer r.mux.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}

	if message.Kind == ProgressMessage && r.pending.Len() >= r.Buffer {
		r.dropped.Add(1)
		return
	}
	r.pending.Put(message)
}

// Dropped returns how many messages were discarded.
func (r *ConsoleReporter) Dropped() int64 {
	return r.dropped.Load()
}

func (r *ConsoleReporter) print() {
	defer close(r.done)
	for {
		if message, ok := r.pending.TryGet(); ok {
			r.write(message)
			continue
		}

		select {
		case <-r.pending.Ready():
		case <-r.closing:
			for {
				message, ok := r.pending.TryGet()
				if !ok {
					return
				}
				r.write(message)
			}
		}
	}
}

func (r *ConsoleReporter) write(message Message) {
	r.counts[message.Kind]++
	if message.Finding != nil {
		r.findings[message.Finding.Plugin]++
	}

	switch message.Kind {
	case FindingMessage:
		findingColor.Fprintf(r.Out, "[!] %s\n", message)
	case ErrorMessage:
		errorColor.Fprintf(r.Out, "[-] %s\n", message)
	case ProgressMessage:
		progressColor.Fprintf(r.Out, "[~] %s\n", message)
	default:
		statusColor.Fprintf(r.Out, "[*] %s\n", message)
	}
}

// Close prints every pending message and then a summary table. Later reports are dropped.
func (r *ConsoleReporter) Close() {
	r.mux.Lock()
	if r.closed {
		r.mux.Unlock()
		return
	}
	r.closed = true
	close(r.closing)
	r.mux.Unlock()

	<-r.done
	r.summary()
}

func (r *ConsoleReporter) summary() {
	table := tablewriter.NewWriter(r.Out)
	table.SetHeader([]string{"Messages", "Count"})
	for _, kind := range []MessageKind{StatusMessage, ProgressMessage, FindingMessage, ErrorMessage} {
		table.Append([]string{string(kind), strconv.Itoa(r.counts[kind])})
	}

	plugins := make([]string, 0, len(r.findings))
	for plugin := range r.findings {
		plugins = append(plugins, plugin)
	}
	sort.Strings(plugins)
	for _, plugin := range plugins {
		table.Append([]string{fmt.Sprintf("finding: %s", plugin), strconv.Itoa(r.findings[plugin])})
	}

	table.Append([]string{"dropped", strconv.FormatInt(r.dropped.Load(), 10)})
	table.Render()
}
