// Package registry owns the running engine sessions: it issues session ids,
// launches engines into sessions, routes their events to callers and
// observers, and runs short-lived engine processes for option queries.
package registry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/usibridge/internal/cachemanager"
	"github.com/zjrosen/usibridge/internal/engine"
	"github.com/zjrosen/usibridge/internal/log"
	"github.com/zjrosen/usibridge/internal/process"
	"github.com/zjrosen/usibridge/internal/pubsub"
	"github.com/zjrosen/usibridge/internal/session"
	"github.com/zjrosen/usibridge/internal/tracing"
	"github.com/zjrosen/usibridge/internal/usi"
)

// DefaultLaunchTimeout bounds the handshake of a launch.
const DefaultLaunchTimeout = 10 * time.Second

// DefaultEngineInfoTTL is how long QueryEngine results are cached.
const DefaultEngineInfoTTL = 10 * time.Minute

// ErrRegistryClosed is returned when operations are attempted on a closed
// registry.
var ErrRegistryClosed = errors.New("session registry is closed")

// ErrUnknownSession is returned for ids that are not registered.
var ErrUnknownSession = errors.New("unknown session")

// Config holds configuration for the registry.
type Config struct {
	LaunchTimeout time.Duration // Handshake timeout (default: 10s)
	QuitGrace     time.Duration // Wait after quit before kill (default: 5s)
	InfoInterval  time.Duration // Info event spacing (default: 500ms)
	EventBuffer   int
	EngineInfoTTL time.Duration // QueryEngine cache TTL (default: 10m)
	StderrLines   int           // Stderr lines kept for launch errors (default: 50)

	// WorkDir and Env apply to every engine process. An empty WorkDir runs
	// each engine in the directory of its executable.
	WorkDir string
	Env     []string

	Tracer trace.Tracer

	// CommandFactory substitutes process creation in tests.
	CommandFactory process.CommandFactoryFunc
}

// Notice is a session event seen by Monitor subscribers. Lifecycle notices
// carry a nil Event.
type Notice struct {
	SessionID int
	Event     session.Event
}

// Handle is a registered session. Its Events channel replaces the session's
// own: the registry forwards every session event there and to Monitor.
type Handle struct {
	*session.Session
	registry *Registry
	events   chan session.Event
	done     chan struct{}
	pumped   chan struct{}
}

// Events returns the session's events. It is closed after Quit.
func (h *Handle) Events() <-chan session.Event { return h.events }

// Quit unregisters the session and quits it. It is idempotent.
func (h *Handle) Quit() error {
	err := h.registry.Quit(h.ID())
	if errors.Is(err, ErrUnknownSession) {
		return nil
	}
	return err
}

// Registry manages engine sessions.
type Registry struct {
	cfg       Config
	tracer    trace.Tracer
	sessions  map[int]*Handle
	mu        sync.RWMutex
	nextID    atomic.Int64
	closed    atomic.Bool
	broker    *pubsub.Broker[Notice]
	wg        sync.WaitGroup
	infoCache *cachemanager.ReadThroughCache[string, *engine.Descriptor, string]
}

// New creates a registry.
func New(cfg Config) *Registry {
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = DefaultLaunchTimeout
	}
	if cfg.QuitGrace <= 0 {
		cfg.QuitGrace = process.DefaultQuitGrace
	}
	if cfg.EngineInfoTTL <= 0 {
		cfg.EngineInfoTTL = DefaultEngineInfoTTL
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracing.Noop()
	}

	r := &Registry{
		cfg:      cfg,
		tracer:   tracer,
		sessions: make(map[int]*Handle),
		broker:   pubsub.NewBroker[Notice](),
	}
	r.infoCache = cachemanager.NewReadThroughCache[string, *engine.Descriptor, string](
		cachemanager.NewInMemoryCacheManager[string, *engine.Descriptor]("engine-info", cfg.EngineInfoTTL, cachemanager.DefaultCleanupInterval),
		r.queryEngine,
		false,
	)
	return r
}

// Launch validates desc, starts the engine and registers a session for it.
// The session runs with a copy of desc.
func (r *Registry) Launch(ctx context.Context, desc *engine.Descriptor) (*Handle, error) {
	ctx, span := tracing.Start(ctx, r.tracer, tracing.SpanLaunch,
		attribute.String(tracing.AttrEngineURI, desc.URI),
		attribute.String(tracing.AttrEngineName, desc.DisplayName()),
		attribute.String(tracing.AttrEnginePath, desc.Path),
		attribute.Int(tracing.AttrOptionCount, len(desc.Options)))
	h, err := r.launch(ctx, desc)
	if h != nil {
		span.SetAttributes(attribute.Int(tracing.AttrSessionID, h.ID()))
	}
	tracing.End(span, err)
	return h, err
}

func (r *Registry) launch(ctx context.Context, desc *engine.Descriptor) (*Handle, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}
	if err := engine.Validate(desc); err != nil {
		return nil, err
	}

	id := int(r.nextID.Add(1))
	log.Debug(log.CatRegistry, "Launching engine", "sessionID", id, "path", desc.Path)

	pc := r.processConfig(desc.Path, fmt.Sprintf("%s#%d", desc.DisplayName(), id))
	pc.Options = desc.Options
	ch, hs, err := process.Launch(ctx, pc)
	if err != nil {
		log.ErrorErr(log.CatRegistry, "Failed to launch engine", err, "sessionID", id, "path", desc.Path)
		return nil, err
	}
	trace.SpanFromContext(ctx).AddEvent(tracing.EventHandshakeDone)

	d := desc.Clone()
	if d.DefaultName == "" {
		d.DefaultName = hs.Name
	}
	if d.Author == "" {
		d.Author = hs.Author
	}

	sess := session.New(ch, session.Config{
		ID:           id,
		Descriptor:   d,
		InfoInterval: r.cfg.InfoInterval,
		EventBuffer:  r.cfg.EventBuffer,
		Tracer:       r.tracer,
	})
	h := &Handle{
		Session:  sess,
		registry: r,
		events:   make(chan session.Event, max(r.cfg.EventBuffer, session.DefaultEventBuffer)),
		done:     make(chan struct{}),
		pumped:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		_ = sess.Quit()
		return nil, ErrRegistryClosed
	}
	r.sessions[id] = h
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pump(h)

	r.broker.Publish(pubsub.LifecycleEvent, Notice{SessionID: id})
	log.Info(log.CatRegistry, "Session registered", "sessionID", id, "engine", d.DisplayName())
	return h, nil
}

func (r *Registry) pump(h *Handle) {
	defer r.wg.Done()
	defer close(h.pumped)
	defer close(h.events)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error(log.CatRegistry, "Session pump panic recovered",
				"panic", rec,
				"sessionID", h.ID(),
				"stack", string(debug.Stack()))
		}
	}()
	for ev := range h.Session.Events() {
		r.Route(h.ID(), ev)
	}
}

// Route delivers ev to the session's subscribers. Events for ids that are
// not registered are dropped and Route returns false.
func (r *Registry) Route(id int, ev session.Event) bool {
	r.mu.RLock()
	h := r.sessions[id]
	r.mu.RUnlock()
	if h == nil {
		log.Debug(log.CatRegistry, "Dropping event for unknown session", "sessionID", id, "event", fmt.Sprintf("%T", ev))
		return false
	}

	r.broker.Publish(pubsub.SessionEvent, Notice{SessionID: id, Event: ev})
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

// Get returns the session registered under id.
func (r *Registry) Get(id int) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	return h, ok
}

// IDs returns the registered session ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Quit unregisters the session and shuts its engine down.
func (r *Registry) Quit(id int) error {
	r.mu.Lock()
	h := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if h == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSession, id)
	}

	close(h.done)
	err := h.Session.Quit()
	<-h.pumped
	r.broker.Publish(pubsub.LifecycleEvent, Notice{SessionID: id})
	log.Info(log.CatRegistry, "Session removed", "sessionID", id)
	return err
}

// QuitAll quits every registered session.
func (r *Registry) QuitAll() error {
	var errs []error
	for _, id := range r.IDs() {
		if err := r.Quit(id); err != nil && !errors.Is(err, ErrUnknownSession) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close quits every session and closes Monitor subscriptions.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := r.QuitAll()
	r.wg.Wait()
	r.broker.Close()
	return err
}

// Monitor subscribes to every session's events until ctx is done. Slow
// subscribers miss events.
func (r *Registry) Monitor(ctx context.Context) <-chan pubsub.Event[Notice] {
	return r.broker.Subscribe(ctx)
}

// QueryEngine starts the engine at path, records its announced identity and
// options, and shuts it down. Results are cached per path.
func (r *Registry) QueryEngine(ctx context.Context, path string) (*engine.Descriptor, error) {
	ctx, span := tracing.Start(ctx, r.tracer, tracing.SpanQueryEngine,
		attribute.String(tracing.AttrEnginePath, path))
	desc, hit, err := r.infoCache.Get(ctx, path, path, r.cfg.EngineInfoTTL)
	span.SetAttributes(attribute.Bool(tracing.AttrCacheHit, hit))
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}
	return desc.Clone(), nil
}

func (r *Registry) processConfig(path, name string) process.Config {
	return process.Config{
		Path:           path,
		Timeout:        r.cfg.LaunchTimeout,
		QuitGrace:      r.cfg.QuitGrace,
		WorkDir:        r.cfg.WorkDir,
		Env:            r.cfg.Env,
		StderrLines:    r.cfg.StderrLines,
		Name:           name,
		CommandFactory: r.cfg.CommandFactory,
	}
}

// ForgetEngine drops cached QueryEngine results for paths.
func (r *Registry) ForgetEngine(ctx context.Context, paths ...string) error {
	return r.infoCache.Invalidate(ctx, paths...)
}

func (r *Registry) queryEngine(ctx context.Context, path string) (*engine.Descriptor, error) {
	ch, hs, err := process.Launch(ctx, r.processConfig(path, "query"))
	if err != nil {
		return nil, err
	}
	if err := ch.Close(); err != nil {
		log.Warn(log.CatRegistry, "Engine did not quit cleanly", "path", path, "error", err)
	}
	desc := hs.Descriptor(path)
	log.Debug(log.CatRegistry, "Queried engine", "path", path, "name", hs.Name, "options", len(desc.Options))
	return desc, nil
}

// PressButton starts the engine at path, presses the named button option
// and shuts the engine down. A declared option of another type is rejected.
func (r *Registry) PressButton(ctx context.Context, path, name string) error {
	ctx, span := tracing.Start(ctx, r.tracer, tracing.SpanPressButton,
		attribute.String(tracing.AttrEnginePath, path))
	err := r.pressButton(ctx, path, name)
	tracing.End(span, err)
	return err
}

func (r *Registry) pressButton(ctx context.Context, path, name string) error {
	ch, hs, err := process.Launch(ctx, r.processConfig(path, "button"))
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if opt, ok := hs.Options[name]; ok && opt.Type() != engine.TypeButton {
		return &engine.ValidationError{Option: name, Reason: fmt.Sprintf("option is a %s, not a button", opt.Type())}
	}
	if err := ch.Send(usi.SetButton(name)); err != nil {
		return fmt.Errorf("press %s: %w", name, err)
	}
	log.Info(log.CatRegistry, "Pressed engine button", "path", path, "button", name)
	return nil
}
