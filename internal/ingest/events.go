package ingest

import (
	"log/slog"
	"sync"
	"time"
)

// EventType identifies a pipeline event.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventRunPlanned    EventType = "run_planned"
	EventItemStarted   EventType = "item_started"
	EventItemStage     EventType = "item_stage"
	EventItemCompleted EventType = "item_completed"
	EventItemFailed    EventType = "item_failed"
	EventRunFinished   EventType = "run_finished"
)

// Item stages.
const (
	StageAcquire = "acquire"
	StageIndex   = "index"
	StageAnalyze = "analyze"
	StagePersist = "persist"
)

// Counts summarizes a run. Completed and Failed count this run's items only.
type Counts struct {
	Discovered int `json:"discovered"`
	Planned    int `json:"planned"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
}

// Event is a single observation emitted while a run progresses.
type Event struct {
	Type     EventType `json:"type"`
	RunID    string    `json:"run_id"`
	Tag      string    `json:"tag"`
	DryRun   bool      `json:"dry_run,omitempty"`
	Seq      int       `json:"seq,omitempty"`
	Total    int       `json:"total,omitempty"`
	Slug     string    `json:"slug,omitempty"`
	Title    string    `json:"title,omitempty"`
	Stage    string    `json:"stage,omitempty"`
	AssetID  string    `json:"asset_id,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Degraded bool      `json:"analysis_degraded,omitempty"`
	Duration float64   `json:"duration_seconds,omitempty"`
	Status   Status    `json:"status,omitempty"`
	Error    string    `json:"error,omitempty"`
	Counts   *Counts   `json:"counts,omitempty"`
	Plan     *Plan     `json:"-"`
	Time     time.Time `json:"time"`
}

// Observer receives pipeline events. Observe is called synchronously from
// the run goroutine and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Broadcaster fans events out to a changeable set of observers.
type Broadcaster struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
}

func NewBroadcaster(logger *slog.Logger, observers ...Observer) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{observers: observers, logger: logger}
}

// Add registers an observer.
func (b *Broadcaster) Add(o Observer) {
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

// Observe delivers e to every observer. A panicking observer is logged and
// skipped.
func (b *Broadcaster) Observe(e Event) {
	b.mu.RLock()
	observers := append([]Observer(nil), b.observers...)
	b.mu.RUnlock()

	for _, o := range observers {
		b.deliver(o, e)
	}
}

func (b *Broadcaster) deliver(o Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event observer panicked", "event", e.Type, "panic", r)
		}
	}()
	o.Observe(e)
}
