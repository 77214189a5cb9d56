package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Wildcard is the reserved event name whose subscribers receive every event.
const Wildcard = "*"

const (
	// DefaultMaxHistory is the number of emitted events retained for diagnostics.
	DefaultMaxHistory = 100

	// DefaultMaxFailed is the number of handler failures retained.
	DefaultMaxFailed = 50

	// DefaultFlushDelay is the debounce used by FlushQueueDelayed when given zero.
	DefaultFlushDelay = 16 * time.Millisecond
)

// Event is a single emission: a hierarchical name plus an arbitrary payload.
type Event struct {
	Name      string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// FailedEvent records a handler that returned an error or panicked.
type FailedEvent struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Error     string    `json:"error"`
	Stack     string    `json:"stack,omitempty"`
	Async     bool      `json:"async"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler receives an event. Returning an error or panicking marks the
// delivery as failed; neither reaches the emitter or sibling handlers.
type Handler func(Event) error

// Emitter is the narrow publishing surface other packages depend on.
type Emitter interface {
	Emit(name string, data any)
}

// Options configures a Bus.
type Options struct {
	MaxHistory int
	MaxFailed  int
	Verbose    bool
	Logger     *zap.Logger
}

type subscription struct {
	id      uint64
	handler Handler
}

type queuedEvent struct {
	name     string
	data     any
	queuedAt time.Time
}

// Bus is a process-wide publish/subscribe hub with bounded history and
// per-handler failure isolation. It is safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]subscription
	order     []string
	nextID    uint64

	history    []Event
	maxHistory int
	failed     []FailedEvent
	maxFailed  int
	verbose    bool

	queueMu    sync.Mutex
	queue      []queuedEvent
	flushing   bool
	flushTimer *time.Timer

	logger *zap.Logger
}

var _ Emitter = (*Bus)(nil)

// New creates an event bus.
func New(opts Options) *Bus {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.MaxFailed <= 0 {
		opts.MaxFailed = DefaultMaxFailed
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Bus{
		listeners:  make(map[string][]subscription),
		maxHistory: opts.MaxHistory,
		maxFailed:  opts.MaxFailed,
		verbose:    opts.Verbose,
		logger:     opts.Logger,
	}
}

// Subscribe registers handler for name and returns a function that removes
// exactly this subscription. Calling the returned function more than once is
// harmless.
func (b *Bus) Subscribe(name string, handler Handler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if _, exists := b.listeners[name]; !exists {
		b.order = append(b.order, name)
	}
	b.listeners[name] = append(b.listeners[name], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(name, id) })
	}
}

// SubscribeOnce registers a handler that removes itself before its first
// delivery. Concurrent emissions deliver to it at most once.
func (b *Bus) SubscribeOnce(name string, handler Handler) func() {
	var (
		fired sync.Once
		unsub func()
		ready = make(chan struct{})
	)

	unsub = b.Subscribe(name, func(evt Event) error {
		var err error
		delivered := false
		fired.Do(func() {
			<-ready
			unsub()
			delivered = true
			err = handler(evt)
		})
		if !delivered {
			return nil
		}
		return err
	})
	close(ready)

	return unsub
}

// SubscribeMany registers one handler under several names; the returned
// function removes all of them.
func (b *Bus) SubscribeMany(names []string, handler Handler) func() {
	unsubs := make([]func(), 0, len(names))
	for _, name := range names {
		unsubs = append(unsubs, b.Subscribe(name, handler))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (b *Bus) unsubscribe(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.listeners[name]
	kept := make([]subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}

	if len(kept) == 0 {
		b.dropName(name)
		return
	}
	b.listeners[name] = kept
}

// dropName removes an event name entirely. Caller must hold mu.
func (b *Bus) dropName(name string) {
	delete(b.listeners, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
}

// Emit records the event in history and delivers it synchronously to the
// subscribers of name in registration order, then to wildcard subscribers.
func (b *Bus) Emit(name string, data any) {
	evt := b.record(name, data, false)

	for _, sub := range b.snapshot(name) {
		b.deliver(sub.handler, evt, name, data, false)
	}

	if name == Wildcard {
		return
	}
	for _, sub := range b.snapshot(Wildcard) {
		b.deliver(sub.handler, evt, Wildcard, evt, false)
	}
}

// EmitAsync records the event and invokes each subscriber of name on its own
// goroutine, followed by the wildcard subscribers. Handlers are started one at
// a time in registration order; only their completion overlaps. It returns
// once every handler has settled. Failures are recorded with Async set and
// never affect sibling handlers. Handlers not yet started when ctx is done are
// skipped.
func (b *Bus) EmitAsync(ctx context.Context, name string, data any) {
	evt := b.record(name, data, true)

	var (
		g       errgroup.Group
		skipped int
	)
	start := func(handler Handler, recordedName string, recordedData any) {
		if ctx.Err() != nil {
			skipped++
			return
		}
		entered := make(chan struct{})
		g.Go(func() error {
			close(entered)
			b.deliver(handler, evt, recordedName, recordedData, true)
			return nil
		})
		<-entered
	}

	for _, sub := range b.snapshot(name) {
		start(sub.handler, name, data)
	}
	if name != Wildcard {
		for _, sub := range b.snapshot(Wildcard) {
			start(sub.handler, Wildcard, evt)
		}
	}
	_ = g.Wait()

	if skipped > 0 {
		b.logger.Warn("EventBus async emit cancelled",
			zap.String("event", name),
			zap.Int("skipped", skipped),
			zap.Error(ctx.Err()))
	}
}

// EmitBatch emits each entry in order. Entries without a name are skipped.
func (b *Bus) EmitBatch(events []Event) {
	for _, evt := range events {
		if evt.Name == "" {
			continue
		}
		b.Emit(evt.Name, evt.Data)
	}
}

func (b *Bus) record(name string, data any, async bool) Event {
	evt := Event{Name: name, Data: data, Timestamp: time.Now()}

	b.mu.Lock()
	b.history = append(b.history, evt)
	if over := len(b.history) - b.maxHistory; over > 0 {
		b.history = append([]Event(nil), b.history[over:]...)
	}
	verbose := b.verbose
	b.mu.Unlock()

	if verbose {
		b.logger.Info("EventBus emit",
			zap.String("event", name),
			zap.Bool("async", async),
			zap.Any("data", data))
	}

	return evt
}

func (b *Bus) snapshot(name string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.listeners[name]
	if len(subs) == 0 {
		return nil
	}
	out := make([]subscription, len(subs))
	copy(out, subs)
	return out
}

// deliver runs one handler and converts errors and panics into failure
// records. recordedName/recordedData describe what gets stored.
func (b *Bus) deliver(handler Handler, evt Event, recordedName string, recordedData any, async bool) {
	var (
		err   error
		stack string
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				stack = string(debug.Stack())
			}
		}()
		err = handler(evt)
	}()

	if err == nil {
		return
	}

	b.logger.Warn("EventBus handler error",
		zap.String("event", evt.Name),
		zap.Bool("wildcard", recordedName == Wildcard),
		zap.Bool("async", async),
		zap.Error(err))
	b.trackFailure(recordedName, recordedData, err, stack, async)
}

func (b *Bus) trackFailure(name string, data any, err error, stack string, async bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failed = append(b.failed, FailedEvent{
		Event:     name,
		Data:      data,
		Error:     err.Error(),
		Stack:     stack,
		Async:     async,
		Timestamp: time.Now(),
	})
	if over := len(b.failed) - b.maxFailed; over > 0 {
		b.failed = append([]FailedEvent(nil), b.failed[over:]...)
	}
}

// HasListeners reports whether name has at least one subscriber.
func (b *Bus) HasListeners(name string) bool {
	return b.ListenerCount(name) > 0
}

// ListenerCount returns the number of subscribers for name.
func (b *Bus) ListenerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

// Events lists every event name that currently has subscribers, in the order
// the names were first subscribed.
func (b *Bus) Events() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Clear removes all subscribers of name.
func (b *Bus) Clear(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropName(name)
}

// ClearAll removes every subscriber.
func (b *Bus) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[string][]subscription)
	b.order = nil
}

// History returns retained events, oldest first. A non-empty filter keeps
// only events with that name.
func (b *Bus) History(filter string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if filter == "" {
		return append([]Event(nil), b.history...)
	}
	out := make([]Event, 0)
	for _, evt := range b.history {
		if evt.Name == filter {
			out = append(out, evt)
		}
	}
	return out
}

// ClearHistory drops the event history.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// FailedEvents returns retained handler failures, optionally filtered by name.
func (b *Bus) FailedEvents(filter string) []FailedEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if filter == "" {
		return append([]FailedEvent(nil), b.failed...)
	}
	out := make([]FailedEvent, 0)
	for _, f := range b.failed {
		if f.Event == filter {
			out = append(out, f)
		}
	}
	return out
}

// HasFailedEvents reports whether any handler failure is retained.
func (b *Bus) HasFailedEvents() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.failed) > 0
}

// ClearFailedEvents drops the failure buffer.
func (b *Bus) ClearFailedEvents() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = nil
}

// SetVerbose toggles logging of every emission.
func (b *Bus) SetVerbose(verbose bool) {
	b.mu.Lock()
	b.verbose = verbose
	b.mu.Unlock()

	if verbose {
		b.logger.Info("EventBus verbose mode enabled")
	}
}

// Stats is a diagnostic summary of the bus.
type Stats struct {
	Events  map[string]int `json:"events"`
	History int            `json:"history"`
	Failed  int            `json:"failed"`
	Queued  int            `json:"queued"`
	Verbose bool           `json:"verbose"`
}

// Stats returns listener counts and buffer sizes.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	stats := Stats{
		Events:  make(map[string]int, len(b.listeners)),
		History: len(b.history),
		Failed:  len(b.failed),
		Verbose: b.verbose,
	}
	for name, subs := range b.listeners {
		stats.Events[name] = len(subs)
	}
	b.mu.RUnlock()

	stats.Queued = b.QueueLength()
	return stats
}
