package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/user/medieval-trader/internal/eventbus"
)

// Severity controls whether a failed module aborts the whole bootstrap.
type Severity string

const (
	// Critical failures abort initialization of every later module.
	Critical Severity = "critical"
	// Required failures are recorded and the run continues degraded.
	Required Severity = "required"
	// Optional failures are recorded and skipped.
	Optional Severity = "optional"
)

// State is the global lifecycle of a Bootstrap.
type State string

const (
	StateNotStarted  State = "not_started"
	StateRunning     State = "running"
	StateInitialized State = "initialized"
)

const (
	DefaultPriority     = 100
	DefaultTimeout      = 10 * time.Second
	DefaultWaitTimeout  = 10 * time.Second
	DefaultWaitAllLimit = 15 * time.Second

	pollInterval = 50 * time.Millisecond
)

// DefaultSeverities assigns severities to well-known module names when the
// registration does not specify one.
var DefaultSeverities = map[string]Severity{
	"EventBus":    Critical,
	"Config":      Critical,
	"Catalog":     Critical,
	"GameManager": Critical,
	"Storage":     Required,
	"Clock":       Required,
	"Steward":     Required,
	"HTTPServer":  Required,
}

var (
	ErrDuplicateModule = errors.New("module already registered")
	ErrWaitTimeout     = errors.New("timeout waiting for module")
)

// InitFunc brings a module up. The context is cancelled when the module's
// timeout elapses; work that outlives it must not publish results.
type InitFunc func(ctx context.Context) error

// ModuleError describes a failed module initialization.
type ModuleError struct {
	Module   string
	Severity Severity
	Err      error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("%s module %s failed: %v", e.Severity, e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

type module struct {
	name         string
	init         InitFunc
	dependencies []string
	severity     Severity
	priority     int
	timeout      time.Duration
	index        int
}

// Option customizes a module registration.
type Option func(*module)

// WithDependencies declares modules that must be initialized first.
func WithDependencies(names ...string) Option {
	return func(m *module) {
		m.dependencies = append(m.dependencies, names...)
	}
}

func WithSeverity(s Severity) Option {
	return func(m *module) { m.severity = s }
}

// WithPriority orders modules whose dependencies are already satisfied;
// lower runs first.
func WithPriority(p int) Option {
	return func(m *module) { m.priority = p }
}

func WithTimeout(d time.Duration) Option {
	return func(m *module) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Config configures a Bootstrap.
type Config struct {
	Bus            eventbus.Emitter
	Logger         *zap.Logger
	DefaultTimeout time.Duration
	// FinalSetup runs after every module and before the ready events.
	FinalSetup func(ctx context.Context) error
	// Progress is called after each module with the completed percentage.
	Progress func(module string, percent float64)
}

// Bootstrap initializes registered modules once, in dependency order, and
// doubles as the registry modules use to hand services to each other.
type Bootstrap struct {
	mu           sync.RWMutex
	registry     map[string]*module
	order        []string
	completed    []string
	initialized  map[string]bool
	initializing map[string]bool
	errs         []*ModuleError
	state        State

	capabilities map[string]any

	bus            eventbus.Emitter
	logger         *zap.Logger
	defaultTimeout time.Duration
	finalSetup     func(ctx context.Context) error
	progress       func(module string, percent float64)
}

// New creates a Bootstrap.
func New(cfg Config) *Bootstrap {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}

	return &Bootstrap{
		registry:       make(map[string]*module),
		initialized:    make(map[string]bool),
		initializing:   make(map[string]bool),
		state:          StateNotStarted,
		capabilities:   make(map[string]any),
		bus:            cfg.Bus,
		logger:         cfg.Logger,
		defaultTimeout: cfg.DefaultTimeout,
		finalSetup:     cfg.FinalSetup,
		progress:       cfg.Progress,
	}
}

// Register adds a module. A duplicate name is rejected and the first record
// kept. A module registered while Init is running joins that run after the
// modules already planned. Registering after Init has completed initializes
// the module right away on its own goroutine.
func (b *Bootstrap) Register(name string, fn InitFunc, opts ...Option) error {
	m := &module{
		name:     name,
		init:     fn,
		priority: DefaultPriority,
		timeout:  b.defaultTimeout,
	}
	if s, ok := DefaultSeverities[name]; ok {
		m.severity = s
	} else {
		m.severity = Optional
	}
	for _, opt := range opts {
		opt(m)
	}

	b.mu.Lock()
	if _, exists := b.registry[name]; exists {
		b.mu.Unlock()
		b.logger.Warn("Module already registered, skipping duplicate", zap.String("module", name))
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	m.index = len(b.order)
	b.registry[name] = m
	b.order = append(b.order, name)
	late := b.state == StateInitialized
	b.mu.Unlock()

	if late {
		b.logger.Info("Late registration, initializing now", zap.String("module", name))
		go func() {
			if err := b.initModule(context.Background(), m); err != nil {
				b.logger.Error("Late init failed", zap.String("module", name), zap.Error(err))
			}
		}()
	}

	return nil
}

// Init runs every registered module in resolved order. It returns a
// *ModuleError when a critical module fails; Init may then be called again
// and skips modules that already succeeded. Calls after a successful run, or
// while one is in progress, do nothing.
func (b *Bootstrap) Init(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case StateInitialized:
		b.mu.Unlock()
		b.logger.Warn("Bootstrap already initialized, ignoring duplicate call")
		return nil
	case StateRunning:
		b.mu.Unlock()
		b.logger.Warn("Bootstrap already running, ignoring concurrent call")
		return nil
	}
	b.state = StateRunning
	plan := b.resolve()
	b.mu.Unlock()

	start := time.Now()
	b.logger.Info("Bootstrap starting", zap.Int("modules", len(plan)))

	attempted := make(map[string]bool, len(plan))
	total, done := len(plan), 0
	finalized := false
	for {
		for _, m := range plan {
			if err := ctx.Err(); err != nil {
				b.setState(StateNotStarted)
				return fmt.Errorf("bootstrap interrupted before %s: %w", m.name, err)
			}
			attempted[m.name] = true
			if err := b.initModule(ctx, m); err != nil {
				b.setState(StateNotStarted)
				b.logger.Error("Bootstrap aborted", zap.String("module", m.name), zap.Error(err))
				return err
			}
			done++
			if b.progress != nil {
				b.progress(m.name, float64(done)/float64(total)*100)
			}
		}

		// Init functions may register further modules while the run is in
		// progress. They join the run here, ahead of final setup. Once none
		// are left the state flips under the same lock so later
		// registrations take the late path.
		b.mu.Lock()
		plan = b.arrivedDuringRun(attempted)
		if len(plan) == 0 && finalized {
			b.state = StateInitialized
		}
		b.mu.Unlock()
		if len(plan) == 0 {
			if finalized {
				break
			}
			finalized = true
			if b.finalSetup != nil {
				if err := b.finalSetup(ctx); err != nil {
					b.record(&ModuleError{Module: "final-setup", Severity: Required, Err: err})
					b.logger.Error("Final setup failed, continuing degraded", zap.Error(err))
				}
			}
			continue
		}
		total += len(plan)
		b.logger.Info("Initializing modules registered during bootstrap", zap.Int("modules", len(plan)))
	}

	b.mu.Lock()
	modules := append([]string(nil), b.completed...)
	errs := b.errorStrings()
	b.mu.Unlock()

	eventbus.PublishTo(b.bus, eventbus.BootstrapCompleteEvent{Modules: modules, Errors: errs})

	elapsed := time.Since(start)
	b.logger.Info("Bootstrap complete",
		zap.Duration("elapsed", elapsed),
		zap.Int("modules", len(modules)),
		zap.Int("errors", len(errs)))

	eventbus.PublishTo(b.bus, eventbus.GameReadyEvent{
		LoadTimeMs:    elapsed.Milliseconds(),
		ModulesLoaded: len(modules),
		Errors:        errs,
	})

	return nil
}

// arrivedDuringRun returns the registered modules the current run has not
// attempted yet, in dependency order. Caller must hold mu.
func (b *Bootstrap) arrivedDuringRun(attempted map[string]bool) []*module {
	fresh := false
	for _, name := range b.order {
		if !attempted[name] {
			fresh = true
			break
		}
	}
	if !fresh {
		return nil
	}

	var out []*module
	for _, m := range b.resolve() {
		if !attempted[m.name] {
			out = append(out, m)
		}
	}
	return out
}

func (b *Bootstrap) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// resolve orders modules so dependencies come first. A depth-first pass in
// registration order drops back-edges and unknown dependencies; modules are
// then released lowest priority first among those whose dependencies are
// already placed. Caller must hold mu.
func (b *Bootstrap) resolve() []*module {
	edges := make(map[string][]string, len(b.registry))
	visited := make(map[string]bool, len(b.registry))
	visiting := make(map[string]bool)

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		if visiting[name] {
			b.logger.Error("Circular dependency detected", zap.String("module", name))
			return
		}
		m, ok := b.registry[name]
		if !ok {
			return
		}
		visiting[name] = true

		for _, dep := range m.dependencies {
			if _, registered := b.registry[dep]; !registered {
				if _, provided := b.capabilities[dep]; !provided {
					b.logger.Warn("Dependency is not registered",
						zap.String("module", name),
						zap.String("dependency", dep))
				}
				continue
			}
			if visiting[dep] {
				b.logger.Error("Circular dependency detected",
					zap.String("module", name),
					zap.String("dependency", dep))
				continue
			}
			visit(dep)
			edges[name] = append(edges[name], dep)
		}

		delete(visiting, name)
		visited[name] = true
	}

	for _, name := range b.order {
		visit(name)
	}

	placed := make(map[string]bool, len(b.registry))
	remaining := make([]*module, 0, len(b.order))
	for _, name := range b.order {
		remaining = append(remaining, b.registry[name])
	}

	plan := make([]*module, 0, len(remaining))
	for len(remaining) > 0 {
		ready := make([]int, 0, len(remaining))
		for i, m := range remaining {
			satisfied := true
			for _, dep := range edges[m.name] {
				if !placed[dep] {
					satisfied = false
					break
				}
			}
			if satisfied {
				ready = append(ready, i)
			}
		}

		sort.SliceStable(ready, func(x, y int) bool {
			mx, my := remaining[ready[x]], remaining[ready[y]]
			if mx.priority != my.priority {
				return mx.priority < my.priority
			}
			return mx.index < my.index
		})

		next := ready[0]
		m := remaining[next]
		plan = append(plan, m)
		placed[m.name] = true
		remaining = append(remaining[:next], remaining[next+1:]...)
	}

	return plan
}

// initModule runs one module. It returns an error only for critical failures.
func (b *Bootstrap) initModule(ctx context.Context, m *module) error {
	b.mu.Lock()
	if b.initialized[m.name] {
		b.mu.Unlock()
		return nil
	}
	if b.initializing[m.name] {
		b.mu.Unlock()
		b.logger.Warn("Module init already in progress", zap.String("module", m.name))
		return nil
	}
	b.initializing[m.name] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.initializing, m.name)
		b.mu.Unlock()
	}()

	b.logger.Debug("Initializing module", zap.String("module", m.name))

	err := b.runWithTimeout(ctx, m)
	if err == nil {
		b.mu.Lock()
		b.initialized[m.name] = true
		b.completed = append(b.completed, m.name)
		b.mu.Unlock()
		b.logger.Info("Module initialized", zap.String("module", m.name))
		return nil
	}

	merr := &ModuleError{Module: m.name, Severity: m.severity, Err: err}
	b.record(merr)

	switch m.severity {
	case Critical:
		b.logger.Error("Critical module failed, aborting", zap.String("module", m.name), zap.Error(err))
		return merr
	case Required:
		b.logger.Error("Required module failed, continuing degraded", zap.String("module", m.name), zap.Error(err))
	default:
		b.logger.Debug("Optional module failed, skipping", zap.String("module", m.name), zap.Error(err))
	}
	return nil
}

// runWithTimeout races the module's init against its timeout. A timeout
// counts as success; whatever the init returns afterwards is only logged.
func (b *Bootstrap) runWithTimeout(ctx context.Context, m *module) error {
	if m.init == nil {
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- m.init(initCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-initCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		b.logger.Warn("Module timed out, continuing",
			zap.String("module", m.name),
			zap.Duration("timeout", m.timeout))
		go func() {
			err := <-done
			b.logger.Info("Timed-out module finished late, result discarded",
				zap.String("module", m.name),
				zap.Error(err))
		}()
		return nil
	}
}

func (b *Bootstrap) record(err *ModuleError) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
}

// errorStrings renders recorded errors. Caller must hold mu.
func (b *Bootstrap) errorStrings() []string {
	out := make([]string, 0, len(b.errs))
	for _, e := range b.errs {
		out = append(out, e.Error())
	}
	return out
}

// IsReady reports whether name finished initializing.
func (b *Bootstrap) IsReady(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized[name]
}

// State returns the global lifecycle state.
func (b *Bootstrap) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Errors returns every recorded module failure.
func (b *Bootstrap) Errors() []*ModuleError {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*ModuleError(nil), b.errs...)
}

// Err combines every recorded failure into one error, or nil.
func (b *Bootstrap) Err() error {
	var err error
	for _, e := range b.Errors() {
		err = multierr.Append(err, e)
	}
	return err
}

// Status is a snapshot for diagnostics.
type Status struct {
	State      State    `json:"state"`
	Registered []string `json:"registered"`
	Completed  []string `json:"completed"`
	Pending    []string `json:"pending"`
	Errors     []string `json:"errors"`
}

func (b *Bootstrap) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := Status{
		State:      b.state,
		Registered: append([]string(nil), b.order...),
		Completed:  append([]string(nil), b.completed...),
		Pending:    make([]string, 0),
		Errors:     b.errorStrings(),
	}
	for _, name := range b.order {
		if !b.initialized[name] {
			status.Pending = append(status.Pending, name)
		}
	}
	return status
}
