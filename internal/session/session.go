package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"peerstream/internal/domain"
	"peerstream/internal/domain/ports"
)

// Session tracks one resource's lifecycle on top of an engine handle. All
// phase mutation funnels through transition() under the session mutex, so
// the phase sequence any poller observes is forward-only.
type Session struct {
	key     string
	locator string
	logger  *slog.Logger
	now     func() time.Time

	peerGrace time.Duration

	// ready is closed once the engine handle is bound (or binding failed).
	ready   chan struct{}
	initErr error

	mu             sync.Mutex
	handle         ports.Handle
	policy         *priorityPolicy
	phase          domain.Phase
	createdAt      time.Time
	lastAccessedAt time.Time
	selectedFile   *domain.FileRef
	reason         string
	everHadPeers   bool
	peerlessSince  time.Time
	cancel         context.CancelFunc
}

func newSession(key, locator string, peerGrace time.Duration, now func() time.Time, logger *slog.Logger) *Session {
	at := now()
	return &Session{
		key:            key,
		locator:        locator,
		logger:         logger,
		now:            now,
		peerGrace:      peerGrace,
		ready:          make(chan struct{}),
		phase:          domain.PhaseInitializing,
		createdAt:      at,
		lastAccessedAt: at,
		peerlessSince:  at,
	}
}

// bind attaches the engine handle and starts consuming its events.
func (s *Session) bind(h ports.Handle, policy *priorityPolicy) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.handle = h
	s.policy = policy
	s.cancel = cancel
	destroyed := s.phase == domain.PhaseDestroyed
	s.mu.Unlock()

	close(s.ready)

	if destroyed {
		// Destroyed while the handle was being created (eviction race).
		cancel()
		h.Destroy(func(err error) {
			if err != nil {
				s.logger.Warn("handle release failed", slog.String("key", s.key), slog.String("error", err.Error()))
			}
		})
		return
	}
	go s.run(ctx, h.Events())
}

// failInit resolves waiters when handle creation failed.
func (s *Session) failInit(err error) {
	s.initErr = err
	close(s.ready)
}

// waitInit blocks until the handle is bound; concurrent GetOrCreate callers
// for the same key share one creation attempt through this.
func (s *Session) waitInit(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Key() string { return s.key }

func (s *Session) Fingerprint() string {
	// The resource key is the content fingerprint (infohash).
	return s.key
}

func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

func (s *Session) LastAccessedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessedAt
}

// Touch advances lastAccessedAt. It never moves backwards, so concurrent
// touches with skewed clocks keep the timestamp monotonic.
func (s *Session) Touch(at time.Time) {
	s.mu.Lock()
	if at.After(s.lastAccessedAt) {
		s.lastAccessedAt = at
	}
	s.mu.Unlock()
}

// SelectedFile returns the playable file chosen at the Ready transition.
func (s *Session) SelectedFile() (domain.FileRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case domain.PhaseDestroyed:
		return domain.FileRef{}, domain.ErrGone
	case domain.PhaseReady:
		if s.selectedFile != nil {
			return *s.selectedFile, nil
		}
	}
	return domain.FileRef{}, domain.ErrNotReady
}

// NewReader opens a fresh range-scoped reader over the selected file.
// Multiple readers may be open concurrently, one per streaming request.
func (s *Session) NewReader() (ports.StreamReader, domain.FileRef, error) {
	file, err := s.SelectedFile()
	if err != nil {
		return nil, domain.FileRef{}, err
	}
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return nil, domain.FileRef{}, domain.ErrNotReady
	}
	reader, err := h.NewReader(file.Index)
	if err != nil {
		return nil, domain.FileRef{}, err
	}
	return reader, file, nil
}

// NewFileReader opens a reader over an explicit file index, for requests
// that target a file other than the selected one.
func (s *Session) NewFileReader(index int) (ports.StreamReader, domain.FileRef, error) {
	s.mu.Lock()
	phase := s.phase
	h := s.handle
	s.mu.Unlock()

	if phase == domain.PhaseDestroyed {
		return nil, domain.FileRef{}, domain.ErrGone
	}
	if phase != domain.PhaseReady || h == nil {
		return nil, domain.FileRef{}, domain.ErrNotReady
	}
	files := h.Files()
	if index < 0 || index >= len(files) {
		return nil, domain.FileRef{}, domain.ErrNotFound
	}
	reader, err := h.NewReader(index)
	if err != nil {
		return nil, domain.FileRef{}, err
	}
	return reader, files[index], nil
}

// Status builds the poll projection. Advisory diagnostics are derived here;
// they never change the phase.
func (s *Session) Status() domain.Status {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := domain.Status{
		ID:          s.key,
		Fingerprint: s.key,
		Phase:       s.phase,
		Reason:      s.reason,
		UpdatedAt:   now,
	}
	if s.selectedFile != nil {
		file := *s.selectedFile
		status.SelectedFile = &file
	}

	var stats domain.TransferStats
	if s.handle != nil {
		stats = s.handle.Stats()
	}
	status.HasMetadata = s.phase == domain.PhaseReady ||
		(s.phase == domain.PhaseMetadataLoading && s.handle != nil && s.handle.Files() != nil)
	status.ProgressRatio = stats.ProgressRatio()
	status.PeerCount = stats.ActivePeers
	status.DownloadRate = stats.DownloadRate
	status.UploadRate = stats.UploadRate

	if stats.ActivePeers > 0 {
		s.everHadPeers = true
		s.peerlessSince = now
	}

	diag := domain.Diagnostic{
		EverHadPeers:    s.everHadPeers,
		PeersDiscovered: stats.KnownPeers > 0,
	}
	if stats.ActivePeers == 0 && !s.phase.Terminal() && now.Sub(s.peerlessSince) > s.peerGrace {
		diag.LikelyDead = true
		if s.everHadPeers {
			diag.Suggestion = "all peers disconnected; retry later or try a different resource"
		} else if diag.PeersDiscovered {
			diag.Suggestion = "peers were discovered but none connected; check connectivity"
		} else {
			diag.Suggestion = "no active seeders; try a different resource"
		}
	}
	status.Diagnostic = diag
	return status
}

// run consumes engine events until destruction.
func (s *Session) run(ctx context.Context, events <-chan domain.TransferEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.consume(ev)
		}
	}
}

func (s *Session) consume(ev domain.TransferEvent) {
	switch ev.Type {
	case domain.EventPeerConnected:
		s.mu.Lock()
		s.everHadPeers = true
		s.peerlessSince = s.now()
		if s.phase == domain.PhaseInitializing {
			_ = s.transitionLocked(domain.PhaseMetadataLoading)
		}
		s.mu.Unlock()

	case domain.EventProgress:
		s.mu.Lock()
		if s.phase == domain.PhaseInitializing {
			_ = s.transitionLocked(domain.PhaseMetadataLoading)
		}
		ready := s.phase == domain.PhaseReady
		h := s.handle
		policy := s.policy
		s.mu.Unlock()
		if ready && policy != nil && h != nil {
			policy.OnProgress(h.Stats())
		}

	case domain.EventMetadata:
		s.onMetadata()

	case domain.EventReady:
		// Readiness is keyed off metadata plus a playable file; the engine's
		// own ready signal adds nothing once the file list arrived.

	case domain.EventError:
		s.mu.Lock()
		if s.phase != domain.PhaseDestroyed {
			reason := "engine failure"
			if ev.Err != nil {
				reason = ev.Err.Error()
			}
			if err := s.transitionLocked(domain.PhaseError); err == nil {
				s.reason = reason
			}
		}
		s.mu.Unlock()
	}
}

func (s *Session) onMetadata() {
	s.mu.Lock()
	h := s.handle
	if h == nil || s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	if s.phase == domain.PhaseInitializing {
		_ = s.transitionLocked(domain.PhaseMetadataLoading)
	}
	files := h.Files()
	file, ok := pickPlayable(files)
	if !ok {
		if err := s.transitionLocked(domain.PhaseError); err == nil {
			s.reason = "no playable file in resource; found " + summarizeExtensions(files)
		}
		s.mu.Unlock()
		return
	}
	// selectedFile is assigned exactly once, at the Ready transition.
	if err := s.transitionLocked(domain.PhaseReady); err != nil {
		s.mu.Unlock()
		return
	}
	s.selectedFile = &file
	policy := s.policy
	s.mu.Unlock()

	s.logger.Info("session ready",
		slog.String("key", s.key),
		slog.String("file", file.Path),
		slog.Int64("length", file.Length),
	)
	if policy != nil {
		policy.PinInitial(h.Stats().PieceCount)
	}
}

// transitionLocked is the single authoritative phase mutation point.
// Caller holds s.mu.
func (s *Session) transitionLocked(to domain.Phase) error {
	if s.phase == to {
		return nil
	}
	if !domain.CanTransition(s.phase, to) {
		return fmt.Errorf("%w: %s -> %s for session %s", domain.ErrInvalidTransition, s.phase, to, s.key)
	}
	s.logger.Debug("session phase change",
		slog.String("key", s.key),
		slog.String("from", string(s.phase)),
		slog.String("to", string(to)),
	)
	s.phase = to
	return nil
}

// destroy is idempotent; the handle release is fire-and-forget and only
// logged. Called by the registry with its entry already removed.
func (s *Session) destroy(reason string) {
	s.mu.Lock()
	if s.phase == domain.PhaseDestroyed {
		s.mu.Unlock()
		return
	}
	_ = s.transitionLocked(domain.PhaseDestroyed)
	s.reason = reason
	h := s.handle
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if h != nil {
		key := s.key
		logger := s.logger
		h.Destroy(func(err error) {
			if err != nil {
				logger.Warn("handle release failed",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				return
			}
			logger.Debug("handle released", slog.String("key", key))
		})
	}
}
