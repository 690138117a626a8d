// Package session owns the lifecycle of in-flight transfers: a bounded
// registry of sessions over engine handles, the readiness state machine,
// and the piece-priority policy that keeps downloads in playback order.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"peerstream/internal/domain"
	"peerstream/internal/domain/ports"
	"peerstream/internal/metrics"
)

type Config struct {
	MaxSessions     int           // hard cap on live sessions
	IdleTimeout     time.Duration // destroy sessions idle longer than this
	CleanupInterval time.Duration // sweep cadence, independent of request traffic
	InitialWindow   int           // pieces pinned before any progress, in [0, InitialWindow)
	BufferAhead     int           // pieces raised ahead of the playback position
	PeerGracePeriod time.Duration // peerless duration before the advisory "likely dead"
	TombstoneTTL    time.Duration // how long a destroyed key answers Gone instead of NotFound
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 5
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 3 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 30 * time.Second
	}
	if c.InitialWindow <= 0 {
		c.InitialWindow = 10
	}
	if c.BufferAhead <= 0 {
		c.BufferAhead = 15
	}
	if c.PeerGracePeriod <= 0 {
		c.PeerGracePeriod = 30 * time.Second
	}
	if c.TombstoneTTL <= 0 {
		c.TombstoneTTL = 5 * time.Minute
	}
	return c
}

// KeyFunc derives the stable resource key from a locator.
type KeyFunc func(locator string) (string, error)

// Registry maps resource keys to sessions and enforces capacity by strict
// LRU eviction. One mutex guards the whole check/evict/insert sequence;
// handle creation happens outside it behind a claimed entry, so registry
// operations for other sessions never wait on the engine.
type Registry struct {
	engine ports.TransferEngine
	keyFn  KeyFunc
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	sessions   map[string]*Session
	tombstones map[string]time.Time

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

type RegistryOption func(*Registry)

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(engine ports.TransferEngine, keyFn KeyFunc, cfg Config, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		engine:     engine,
		keyFn:      keyFn,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		sessions:   make(map[string]*Session),
		tombstones: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the background idle sweep.
func (r *Registry) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.sweepCancel = cancel
	r.sweepDone = make(chan struct{})
	go r.sweepLoop(ctx)
}

// Close stops the sweeper and destroys every live session.
func (r *Registry) Close() {
	if r.sweepCancel != nil {
		r.sweepCancel()
		<-r.sweepDone
	}
	r.mu.Lock()
	victims := make([]*Session, 0, len(r.sessions))
	for key, s := range r.sessions {
		victims = append(victims, s)
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	for _, s := range victims {
		s.destroy("shutdown")
	}
	metrics.ActiveSessions.Set(0)
}

// GetOrCreate returns the live session for the locator's resource key,
// creating one (and evicting the LRU victim when at capacity) if absent.
// Concurrent calls for the same locator share a single handle creation.
func (r *Registry) GetOrCreate(ctx context.Context, locator string) (*Session, error) {
	key, err := r.keyFn(locator)
	if err != nil {
		return nil, err
	}

	now := r.now()

	r.mu.Lock()
	if existing, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		if err := existing.waitInit(ctx); err != nil {
			return nil, err
		}
		existing.Touch(r.now())
		return existing, nil
	}

	// Re-requesting a destroyed resource starts over.
	delete(r.tombstones, key)

	var victim *Session
	if len(r.sessions) >= r.cfg.MaxSessions {
		victim = r.victimLocked(key)
		if victim == nil {
			// Unreachable while MaxSessions > 0: any non-empty registry has
			// a victim since the requested key is absent here.
			r.mu.Unlock()
			return nil, fmt.Errorf("session capacity %d exhausted", r.cfg.MaxSessions)
		}
		delete(r.sessions, victim.key)
		r.tombstones[victim.key] = now
	}

	s := newSession(key, locator, r.cfg.PeerGracePeriod, r.now, r.logger)
	r.sessions[key] = s
	r.mu.Unlock()

	if victim != nil {
		r.logger.Info("session evicted",
			slog.String("victim", victim.key),
			slog.String("for", key),
			slog.Time("lastAccessed", victim.LastAccessedAt()),
		)
		metrics.SessionsEvictedTotal.Inc()
		victim.destroy("evicted for " + key)
	}

	handle, err := r.engine.Create(ctx, locator)
	if err != nil {
		r.mu.Lock()
		delete(r.sessions, key)
		r.mu.Unlock()
		s.failInit(err)
		return nil, err
	}

	policy := newPriorityPolicy(handle, r.cfg.InitialWindow, r.cfg.BufferAhead, r.logger)
	s.bind(handle, policy)

	metrics.SessionsCreatedTotal.Inc()
	metrics.ActiveSessions.Set(float64(r.Len()))
	r.logger.Info("session created", slog.String("key", key))
	return s, nil
}

// Get returns the live session for a key. Recently destroyed keys report
// ErrGone until their tombstone expires; anything else is ErrNotFound.
func (r *Registry) Get(key string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		return s, nil
	}
	if at, ok := r.tombstones[key]; ok && r.now().Sub(at) <= r.cfg.TombstoneTTL {
		return nil, domain.ErrGone
	}
	return nil, domain.ErrNotFound
}

// Touch refreshes lastAccessedAt; no-op for absent keys.
func (r *Registry) Touch(key string) {
	r.mu.Lock()
	s := r.sessions[key]
	r.mu.Unlock()
	if s != nil {
		s.Touch(r.now())
	}
}

// Destroy removes and destroys a session. Idempotent; safe on absent keys.
func (r *Registry) Destroy(key, reason string) {
	now := r.now()
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
		r.tombstones[key] = now
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.destroy(reason)
	metrics.ActiveSessions.Set(float64(r.Len()))
	r.logger.Info("session destroyed",
		slog.String("key", key),
		slog.String("reason", reason),
	)
}

// Sweep destroys every session idle longer than IdleTimeout and prunes
// expired tombstones. Returns the number of sessions destroyed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	var victims []*Session
	for key, s := range r.sessions {
		if now.Sub(s.LastAccessedAt()) > r.cfg.IdleTimeout {
			victims = append(victims, s)
			delete(r.sessions, key)
			r.tombstones[key] = now
		}
	}
	for key, at := range r.tombstones {
		if now.Sub(at) > r.cfg.TombstoneTTL {
			delete(r.tombstones, key)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		r.logger.Info("sweeping idle session",
			slog.String("key", s.key),
			slog.Duration("idleTimeout", r.cfg.IdleTimeout),
		)
		s.destroy("idle timeout")
		metrics.SessionsSweptTotal.Inc()
	}
	if len(victims) > 0 {
		metrics.ActiveSessions.Set(float64(r.Len()))
	}
	return len(victims)
}

// Len counts live sessions, claimed-but-unbound entries included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot projects the status of every live session, most recently
// accessed first.
func (r *Registry) Snapshot() []domain.Status {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].LastAccessedAt().After(all[j].LastAccessedAt())
	})
	statuses := make([]domain.Status, 0, len(all))
	for _, s := range all {
		statuses = append(statuses, s.Status())
	}
	return statuses
}

// victimLocked picks the strict-LRU eviction victim: smallest
// lastAccessedAt, ties broken by smallest createdAt, never the key being
// requested. Caller holds r.mu.
func (r *Registry) victimLocked(requested string) *Session {
	var victim *Session
	for key, s := range r.sessions {
		if key == requested {
			continue
		}
		if victim == nil {
			victim = s
			continue
		}
		va, sa := victim.LastAccessedAt(), s.LastAccessedAt()
		if sa.Before(va) || (sa.Equal(va) && s.CreatedAt().Before(victim.CreatedAt())) {
			victim = s
		}
	}
	return victim
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer close(r.sweepDone)
	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
