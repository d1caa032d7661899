package scopez

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

type listenerEntry struct {
	listener Finalizer
	id       uint64
	async    bool
}

// Registry holds the process-wide finalize listeners, the clock used to stamp
// events and the cache of open scopes.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Registry struct {
	listeners      []listenerEntry
	panicHook      func(listenerID uint64, r interface{})
	workers        *workerPool
	clock          clockz.Clock
	logger         *slog.Logger
	open           sync.Map
	listenersLock  sync.RWMutex
	nextID         atomic.Uint64
	droppedRecords atomic.Uint64
	openCount      atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for event and scope timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLogger sets the logger used to report listener panics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry with no listeners.
// Uses the real clock and slog.Default unless overridden.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		listeners: make([]listenerEntry, 0),
		clock:     clockz.RealClock,
		logger:    slog.Default().With("component", "scopez"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by the package-level
// functions.
func Default() *Registry {
	return defaultRegistry
}

func (r *Registry) now() time.Time {
	return r.clock.Now()
}

// AddFinalizeListener registers a listener called synchronously, in
// registration order, whenever any scope of this registry closes.
// Returns an id for RemoveFinalizeListener; 0 if listener is nil.
func (r *Registry) AddFinalizeListener(listener Finalizer) uint64 {
	return r.addListener(listener, false)
}

// AddFinalizeListenerAsync registers a listener called off the closing
// goroutine. With a worker pool enabled, records are dropped when its queue
// is full.
func (r *Registry) AddFinalizeListenerAsync(listener Finalizer) uint64 {
	return r.addListener(listener, true)
}

func (r *Registry) addListener(listener Finalizer, async bool) uint64 {
	if listener == nil {
		return 0
	}

	id := r.nextID.Add(1)

	r.listenersLock.Lock()
	defer r.listenersLock.Unlock()

	r.listeners = append(r.listeners, listenerEntry{
		id:       id,
		listener: listener,
		async:    async,
	})

	return id
}

// RemoveFinalizeListener removes a listener by id. Unknown ids are ignored.
func (r *Registry) RemoveFinalizeListener(id uint64) {
	r.listenersLock.Lock()
	defer r.listenersLock.Unlock()

	// Preserve order
	for i, l := range r.listeners {
		if l.id == id {
			copy(r.listeners[i:], r.listeners[i+1:])
			r.listeners = r.listeners[:len(r.listeners)-1]
			return
		}
	}
}

// HasListeners reports whether any process-wide listener is registered.
func (r *Registry) HasListeners() bool {
	r.listenersLock.RLock()
	defer r.listenersLock.RUnlock()
	return len(r.listeners) > 0
}

// SetPanicHook sets a function called when a finalizer or listener panics.
// The per-scope finalizer reports listener id 0.
func (r *Registry) SetPanicHook(hook func(listenerID uint64, r interface{})) {
	r.listenersLock.Lock()
	defer r.listenersLock.Unlock()
	r.panicHook = hook
}

// finalize delivers a closed record to the scope's own finalizer and then to
// every registered listener.
func (r *Registry) finalize(own Finalizer, record *Record) {
	if own != nil {
		r.safeCall(listenerEntry{listener: own}, record)
	}

	r.listenersLock.RLock()
	if len(r.listeners) == 0 {
		r.listenersLock.RUnlock()
		return
	}

	listeners := make([]listenerEntry, len(r.listeners))
	copy(listeners, r.listeners)
	workers := r.workers
	r.listenersLock.RUnlock()

	for _, l := range listeners {
		if !l.async {
			r.safeCall(l, record)
			continue
		}

		entry := l
		if workers != nil {
			workers.submit(func() {
				r.safeCall(entry, record)
			})
		} else {
			go r.safeCall(entry, record)
		}
	}
}

func (r *Registry) safeCall(entry listenerEntry, record *Record) {
	defer func() {
		if p := recover(); p != nil {
			r.listenersLock.RLock()
			hook := r.panicHook
			r.listenersLock.RUnlock()

			if hook != nil {
				hook(entry.id, p)
				return
			}
			r.logger.Error("finalize listener panicked",
				"listener", entry.id,
				"record_id", record.ID(),
				"panic", p,
			)
		}
	}()
	entry.listener(record)
}

// EnableWorkerPool creates a bounded worker pool for async listeners.
func (r *Registry) EnableWorkerPool(workers, queueSize int) error {
	if workers <= 0 {
		return errors.New("workers must be > 0")
	}
	if queueSize <= 0 {
		return errors.New("queueSize must be > 0")
	}

	r.listenersLock.Lock()
	defer r.listenersLock.Unlock()

	if r.workers != nil {
		return errors.New("worker pool already enabled")
	}

	r.workers = newWorkerPool(workers, queueSize, &r.droppedRecords)
	return nil
}

// DroppedRecords returns the number of async deliveries dropped because the
// worker queue was full or the pool had already shut down.
func (r *Registry) DroppedRecords() uint64 {
	return r.droppedRecords.Load()
}

// Reset removes every listener and the panic hook. Open scopes are unaffected.
func (r *Registry) Reset() {
	r.listenersLock.Lock()
	defer r.listenersLock.Unlock()

	r.listeners = r.listeners[:0]
	r.panicHook = nil
}

// Close removes every listener and waits for queued async deliveries.
// Scopes closed afterwards are still finalized with their own finalizer.
func (r *Registry) Close() {
	r.listenersLock.Lock()
	r.listeners = nil
	workers := r.workers
	r.workers = nil
	r.listenersLock.Unlock()

	if workers != nil {
		workers.shutdown()
	}
}

// AddFinalizeListener registers a listener on the default registry.
func AddFinalizeListener(listener Finalizer) uint64 {
	return defaultRegistry.AddFinalizeListener(listener)
}

// AddFinalizeListenerAsync registers an async listener on the default registry.
func AddFinalizeListenerAsync(listener Finalizer) uint64 {
	return defaultRegistry.AddFinalizeListenerAsync(listener)
}

// RemoveFinalizeListener removes a listener from the default registry.
func RemoveFinalizeListener(id uint64) {
	defaultRegistry.RemoveFinalizeListener(id)
}

// workerPool manages a fixed number of workers for async listeners.
//
//nolint:govet // Field order optimized for functionality over memory
type workerPool struct {
	tasks   chan func()
	stop    chan struct{}
	dropped *atomic.Uint64
	wg      sync.WaitGroup

	// mu orders submit against shutdown; stopped is set under the write lock.
	mu      sync.RWMutex
	stopped bool
}

func newWorkerPool(workers, queueSize int, dropped *atomic.Uint64) *workerPool {
	pool := &workerPool{
		tasks:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
		dropped: dropped,
	}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.run()
	}
	return pool
}

func (w *workerPool) run() {
	defer w.wg.Done()
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.stop:
			// Drain what was accepted before shutdown.
			for {
				select {
				case task := <-w.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit queues task without blocking. A task offered to a full or stopped
// pool is counted as dropped and never runs.
func (w *workerPool) submit(task func()) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		w.dropped.Add(1)
		return
	}
	select {
	case w.tasks <- task:
	default:
		w.dropped.Add(1)
	}
}

// shutdown stops accepting tasks, runs everything already queued and waits
// for the workers to exit. Safe to call more than once.
func (w *workerPool) shutdown() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.wg.Wait()
		return
	}
	w.stopped = true
	close(w.stop)
	w.mu.Unlock()

	w.wg.Wait()
}
