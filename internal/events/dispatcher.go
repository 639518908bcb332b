package events

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"stockroute/internal/domain"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Source is the event log the dispatcher reads from.
type Source interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Sink receives events in log order. A failed delivery is retried on the next tick.
type Sink interface {
	Name() string
	Accepts(evtType string) bool
	Deliver(ctx context.Context, evt domain.Event) error
}

// Dispatcher forwards newly appended events to its sinks. Each sink keeps its own
// cursor, starting at the newest event present when the sink is first polled.
type Dispatcher struct {
	Source   Source
	Sinks    []Sink
	Interval time.Duration
	Batch    int
	Logger   *log.Logger

	mu      sync.Mutex
	cursors map[int]int64
}

func NewDispatcher(src Source, sinks ...Sink) *Dispatcher {
	return &Dispatcher{Source: src, Sinks: sinks, cursors: make(map[int]int64)}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Run polls until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers one batch to every sink.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	for i, sink := range d.Sinks {
		d.dispatch(ctx, i, sink)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, idx int, sink Sink) {
	cursor := d.cursorFor(ctx, idx)
	batch := d.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	evts, err := d.Source.EventsAfter(ctx, batch, cursor)
	if err != nil {
		d.logf("events: fetch for %s failed: %v", sink.Name(), err)
		return
	}
	for _, evt := range evts {
		if !sink.Accepts(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := sink.Deliver(ctx, evt); err != nil {
			d.logf("events: deliver to %s failed: %v", sink.Name(), err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *Dispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.Source.LatestEventID(ctx)
	if err != nil {
		d.logf("events: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
