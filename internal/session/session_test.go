package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"peerstream/internal/domain"
)

func newBoundSession(clock *fakeClock, handle *fakeHandle) *Session {
	s := newSession(handle.id, "magnet:?xt=urn:btih:"+handle.id, 30*time.Second, clock.Now, testLogger())
	s.bind(handle, newPriorityPolicy(handle, 10, 15, testLogger()))
	return s
}

func TestSessionPhaseProgression(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	if got := s.Phase(); got != domain.PhaseInitializing {
		t.Fatalf("initial phase = %s, want initializing", got)
	}

	s.consume(domain.TransferEvent{Type: domain.EventPeerConnected})
	if got := s.Phase(); got != domain.PhaseMetadataLoading {
		t.Fatalf("phase after peer = %s, want metadataLoading", got)
	}

	h.setFiles([]domain.FileRef{
		{Index: 0, Path: "sample/readme.txt", Length: 120},
		{Index: 1, Path: "sample/feature.mkv", Length: 900_000},
	})
	h.setStats(domain.TransferStats{TotalLength: 900_120, PieceCount: 40})
	s.consume(domain.TransferEvent{Type: domain.EventMetadata})

	if got := s.Phase(); got != domain.PhaseReady {
		t.Fatalf("phase after metadata = %s, want ready", got)
	}
	file, err := s.SelectedFile()
	if err != nil {
		t.Fatalf("SelectedFile: %v", err)
	}
	if file.Index != 1 || file.Path != "sample/feature.mkv" {
		t.Errorf("selected %+v, want the mkv at index 1", file)
	}
}

func TestSessionMetadataWithoutPeerEvent(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	h.setFiles([]domain.FileRef{{Index: 0, Path: "movie.mp4", Length: 100}})
	s.consume(domain.TransferEvent{Type: domain.EventMetadata})

	if got := s.Phase(); got != domain.PhaseReady {
		t.Errorf("phase = %s, want ready even when metadata arrives first", got)
	}
}

func TestSessionNoPlayableFileIsError(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	h.setFiles([]domain.FileRef{
		{Index: 0, Path: "setup.exe", Length: 5000},
		{Index: 1, Path: "readme.txt", Length: 100},
	})
	s.consume(domain.TransferEvent{Type: domain.EventMetadata})

	if got := s.Phase(); got != domain.PhaseError {
		t.Fatalf("phase = %s, want error", got)
	}
	status := s.Status()
	if !strings.Contains(status.Reason, "no playable file") {
		t.Errorf("reason = %q, want a no-playable-file explanation", status.Reason)
	}
	if _, err := s.SelectedFile(); !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("SelectedFile = %v, want ErrNotReady", err)
	}
}

func TestSessionEngineErrorIsTerminal(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	s.consume(domain.TransferEvent{Type: domain.EventError, Err: errors.New("announce failed")})
	if got := s.Phase(); got != domain.PhaseError {
		t.Fatalf("phase = %s, want error", got)
	}
	if got := s.Status().Reason; got != "announce failed" {
		t.Errorf("reason = %q, want the engine error text", got)
	}

	// A late metadata signal must not resurrect the session.
	h.setFiles([]domain.FileRef{{Index: 0, Path: "movie.mp4", Length: 100}})
	s.consume(domain.TransferEvent{Type: domain.EventMetadata})
	if got := s.Phase(); got != domain.PhaseError {
		t.Errorf("phase after late metadata = %s, want error", got)
	}
}

func TestSessionReadyPinsInitialWindow(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	h.setFiles([]domain.FileRef{{Index: 0, Path: "movie.mp4", Length: 4000}})
	h.setStats(domain.TransferStats{TotalLength: 4000, PieceCount: 4})
	s.consume(domain.TransferEvent{Type: domain.EventMetadata})

	calls := h.prioCalls()
	if len(calls) != 4 {
		t.Fatalf("got %d priority calls, want 4 (window clamped to piece count)", len(calls))
	}
	if calls[0].piece != 0 || calls[0].level != domain.PriorityHigh {
		t.Errorf("first call = %+v, want piece 0 at high", calls[0])
	}
	for _, c := range calls[1:] {
		if c.level != domain.PriorityReadahead {
			t.Errorf("piece %d level = %d, want readahead", c.piece, c.level)
		}
	}
}

func TestSessionReaderGating(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)

	if _, _, err := s.NewReader(); !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("NewReader before ready = %v, want ErrNotReady", err)
	}

	h.setFiles([]domain.FileRef{{Index: 0, Path: "movie.mp4", Length: 100}})
	s.consume(domain.TransferEvent{Type: domain.EventMetadata})

	if _, _, err := s.NewReader(); err != nil {
		t.Errorf("NewReader when ready: %v", err)
	}
	if _, _, err := s.NewFileReader(7); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("NewFileReader out of range = %v, want ErrNotFound", err)
	}

	s.destroy("test")
	if _, _, err := s.NewReader(); !errors.Is(err, domain.ErrGone) {
		t.Errorf("NewReader after destroy = %v, want ErrGone", err)
	}
	if _, _, err := s.NewFileReader(0); !errors.Is(err, domain.ErrGone) {
		t.Errorf("NewFileReader after destroy = %v, want ErrGone", err)
	}
}

func TestSessionTouchNeverMovesBackwards(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	base := s.LastAccessedAt()
	s.Touch(base.Add(-time.Minute))
	if got := s.LastAccessedAt(); !got.Equal(base) {
		t.Errorf("Touch with an earlier time moved lastAccessedAt to %v", got)
	}
	s.Touch(base.Add(time.Minute))
	if got := s.LastAccessedAt(); !got.Equal(base.Add(time.Minute)) {
		t.Errorf("lastAccessedAt = %v, want %v", got, base.Add(time.Minute))
	}
}

func TestSessionWaitInitHonorsContext(t *testing.T) {
	clock := newFakeClock()
	s := newSession("abc", "magnet:?xt=urn:btih:abc", 30*time.Second, clock.Now, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.waitInit(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("waitInit = %v, want context.Canceled", err)
	}
}

func TestSessionDiagnosticsAfterGracePeriod(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	if diag := s.Status().Diagnostic; diag.LikelyDead {
		t.Error("fresh session must not be flagged dead inside the grace period")
	}

	clock.Advance(time.Minute)
	diag := s.Status().Diagnostic
	if !diag.LikelyDead {
		t.Fatal("expected a likely-dead flag after the grace period with zero peers")
	}
	if !strings.Contains(diag.Suggestion, "no active seeders") {
		t.Errorf("suggestion = %q, want the no-seeders hint", diag.Suggestion)
	}

	// Discovered-but-unconnected peers change the hint.
	h.setStats(domain.TransferStats{KnownPeers: 12})
	diag = s.Status().Diagnostic
	if !diag.PeersDiscovered || !strings.Contains(diag.Suggestion, "none connected") {
		t.Errorf("diagnostic = %+v, want the discovered-but-unconnected hint", diag)
	}
}

func TestSessionDiagnosticsAfterPeerLoss(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	s.consume(domain.TransferEvent{Type: domain.EventPeerConnected})
	clock.Advance(time.Minute)

	diag := s.Status().Diagnostic
	if !diag.EverHadPeers {
		t.Fatal("expected everHadPeers after a peer connection")
	}
	if !diag.LikelyDead || !strings.Contains(diag.Suggestion, "all peers disconnected") {
		t.Errorf("diagnostic = %+v, want the peers-disconnected hint", diag)
	}
}

func TestSessionProgressSlidesPriorityWindow(t *testing.T) {
	clock := newFakeClock()
	h := newFakeHandle("abc")
	s := newBoundSession(clock, h)
	defer s.destroy("test")

	h.setFiles([]domain.FileRef{{Index: 0, Path: "movie.mp4", Length: 100_000}})
	h.setStats(domain.TransferStats{TotalLength: 100_000, PieceCount: 100})
	s.consume(domain.TransferEvent{Type: domain.EventMetadata})
	before := len(h.prioCalls())

	h.setStats(domain.TransferStats{BytesCompleted: 50_000, TotalLength: 100_000, PieceCount: 100})
	s.consume(domain.TransferEvent{Type: domain.EventProgress, BytesDelta: 50_000})

	calls := h.prioCalls()[before:]
	if len(calls) != 15 {
		t.Fatalf("got %d calls from the progress tick, want 15", len(calls))
	}
	if calls[0].piece != 50 || calls[0].level != domain.PriorityHigh {
		t.Errorf("first call = %+v, want piece 50 at high", calls[0])
	}
	if last := calls[len(calls)-1]; last.piece != 64 {
		t.Errorf("last raised piece = %d, want 64", last.piece)
	}
}
