package jobs

import (
	"sync"
	"time"

	"video-transcriber/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeLog    EventType = "log"
	EventTypeResult EventType = "result"
	EventTypeError  EventType = "error"
)

// Event is one sequenced notification for the window. Status and Progress
// reflect the job right after the change it reports.
type Event struct {
	Seq         int64            `json:"seq"`
	Timestamp   time.Time        `json:"timestamp"`
	JobID       string           `json:"jobId"`
	Type        EventType        `json:"type"`
	Status      domain.JobStatus `json:"status,omitempty"`
	Progress    int              `json:"progress"`
	Message     string           `json:"message,omitempty"`
	SourcePath  string           `json:"sourcePath,omitempty"`
	Command     string           `json:"command,omitempty"`
	Args        []string         `json:"args,omitempty"`
	ExitCode    int              `json:"exitCode,omitempty"`
	Stderr      string           `json:"stderr,omitempty"`
	FullText    string           `json:"fullText,omitempty"`
	DisplayText string           `json:"displayText,omitempty"`
	Language    string           `json:"language,omitempty"`
}

// EventBus keeps the most recent events in a fixed ring so a window that
// reloads can catch up with Since.
type EventBus struct {
	mu    sync.RWMutex
	seq   int64
	ring  []Event
	head  int
	count int
	now   func() time.Time
}

// NewEventBus creates a bus holding at most capacity events.
func NewEventBus(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = 500
	}
	return &EventBus{
		ring: make([]Event, capacity),
		now:  time.Now,
	}
}

// Publish stamps the event with the next sequence number and a UTC time
// when none is set, then stores it, evicting the oldest entry when full.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	event.Seq = b.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}

	idx := (b.head + b.count) % len(b.ring)
	b.ring[idx] = event
	if b.count < len(b.ring) {
		b.count++
	} else {
		b.head = (b.head + 1) % len(b.ring)
	}
	return event
}

// Since returns retained events with a sequence above seq, oldest first.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for i := 0; i < b.count; i++ {
		event := b.ring[(b.head+i)%len(b.ring)]
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Latest returns the newest retained event of eventType for jobID.
func (b *EventBus) Latest(jobID string, eventType EventType) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := b.count - 1; i >= 0; i-- {
		event := b.ring[(b.head+i)%len(b.ring)]
		if event.JobID == jobID && event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
