package curlfuzz

import (
	"fmt"
	"sync"
	"time"
)

// MessageKind says what a Message carries.
type MessageKind string

const (
	StatusMessage   MessageKind = "status"
	ProgressMessage MessageKind = "progress"
	FindingMessage  MessageKind = "finding"
	ErrorMessage    MessageKind = "error"
)

// Message is a unit of output from a worker or from the coordinator itself.
// Messages from one worker keep their order; messages from different workers interleave freely.
type Message struct {
	Worker  string      `json:"worker,omitempty"`
	Kind    MessageKind `json:"kind"`
	Text    string      `json:"text"`
	Finding *Finding    `json:"finding,omitempty"`
	Time    time.Time   `json:"time"`
}

// Status returns a status message with the current time.
func Status(format string, args ...interface{}) Message {
	return Message{Kind: StatusMessage, Text: fmt.Sprintf(format, args...), Time: time.Now()}
}

func (m Message) String() string {
	if m.Worker == "" {
		return m.Text
	}
	return fmt.Sprintf("[%s] %s", m.Worker, m.Text)
}

// Queue is an unbounded multi-producer, single-consumer message queue.
// Put never blocks, so a worker never stalls waiting for the coordinator.
type Queue struct {
	mux   sync.Mutex
	items []Message
	ready chan struct{}
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Put appends a message and wakes up the consumer.
func (q *Queue) Put(message Message) {
	q.mux.Lock()
	q.items = append(q.items, message)
	q.mux.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryGet pops the oldest message without blocking.
func (q *Queue) TryGet() (Message, bool) {
	q.mux.Lock()
	defer q.mux.Unlock()
	if len(q.items) == 0 {
		return Message{}, false
	}

	message := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	return message, true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mux.Lock()
	defer q.mux.Unlock()
	return len(q.items)
}

// Ready receives a value after a Put. A receive doesn't guarantee the queue is still non-empty.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
