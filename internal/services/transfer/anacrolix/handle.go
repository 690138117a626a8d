package anacrolix

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"peerstream/internal/domain"
	"peerstream/internal/domain/ports"
)

// statsPollInterval drives the synthesized progress/peer events. The
// anacrolix client has no push API for counters, so the handle polls.
const statsPollInterval = time.Second

var errTransferClosed = errors.New("transfer closed by engine")

type handle struct {
	t      *torrent.Torrent
	logger *slog.Logger

	events chan domain.TransferEvent
	cancel context.CancelFunc

	speedMu sync.Mutex
	speed   speedSample

	destroyOnce sync.Once
}

func newHandle(t *torrent.Torrent, logger *slog.Logger) *handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		t:      t,
		logger: logger,
		events: make(chan domain.TransferEvent, 32),
		cancel: cancel,
	}
	go h.pump(ctx)
	return h
}

func (h *handle) Fingerprint() string {
	return strings.ToLower(h.t.InfoHash().HexString())
}

func (h *handle) Files() []domain.FileRef {
	if !infoReady(h.t) {
		return nil
	}
	return mapFiles(h.t)
}

func (h *handle) Stats() domain.TransferStats {
	stats := h.t.Stats()
	out := domain.TransferStats{
		ActivePeers: stats.ActivePeers,
		KnownPeers:  stats.TotalPeers,
	}
	if infoReady(h.t) {
		out.BytesCompleted = h.t.BytesCompleted()
		out.TotalLength = h.t.Length()
		out.PieceCount = h.t.NumPieces()
	}
	out.DownloadRate, out.UploadRate = h.sampleSpeed(stats, time.Now().UTC())
	return out
}

func (h *handle) Events() <-chan domain.TransferEvent {
	return h.events
}

func (h *handle) NewReader(fileIndex int) (ports.StreamReader, error) {
	if !infoReady(h.t) {
		return nil, domain.ErrNotReady
	}
	files := h.t.Files()
	if fileIndex < 0 || fileIndex >= len(files) {
		return nil, domain.ErrNotFound
	}
	return files[fileIndex].NewReader(), nil
}

func (h *handle) SetPiecePriority(pieceIndex int, level domain.Priority) (err error) {
	defer func() {
		// The client panics on piece access during certain internal state
		// changes; surface that as a skippable error instead.
		if rec := recover(); rec != nil {
			h.logger.Warn("piece priority panic recovered",
				slog.Any("panic", rec),
				slog.Int("piece", pieceIndex),
				slog.String("stack", string(debug.Stack())),
			)
			err = domain.ErrNotReady
		}
	}()

	if !infoReady(h.t) {
		return domain.ErrNotReady
	}
	if pieceIndex < 0 || pieceIndex >= h.t.NumPieces() {
		return domain.ErrNotFound
	}
	h.t.Piece(pieceIndex).SetPriority(mapPriority(level))
	return nil
}

func (h *handle) Destroy(done func(error)) {
	h.destroyOnce.Do(func() {
		h.cancel()
		go func() {
			h.t.Drop()
			if done != nil {
				done(nil)
			}
		}()
	})
}

// pump synthesizes the event stream: metadata/ready from GotInfo, progress
// and peer contact from the stats poll, error from the torrent closing
// underneath us.
func (h *handle) pump(ctx context.Context) {
	ticker := time.NewTicker(statsPollInterval)
	defer ticker.Stop()

	gotInfo := h.t.GotInfo()
	var (
		prevCompleted int64
		sawPeers      bool
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-gotInfo:
			gotInfo = nil
			h.send(ctx, domain.TransferEvent{Type: domain.EventMetadata})
			h.send(ctx, domain.TransferEvent{Type: domain.EventReady})
		case <-h.t.Closed():
			h.send(ctx, domain.TransferEvent{Type: domain.EventError, Err: errTransferClosed})
			return
		case <-ticker.C:
			stats := h.t.Stats()
			if !sawPeers && (stats.ActivePeers > 0 || stats.TotalPeers > 0) {
				sawPeers = true
				h.send(ctx, domain.TransferEvent{Type: domain.EventPeerConnected})
			}
			if gotInfo == nil {
				completed := h.t.BytesCompleted()
				if delta := completed - prevCompleted; delta > 0 {
					prevCompleted = completed
					h.trySend(domain.TransferEvent{Type: domain.EventProgress, BytesDelta: delta})
				}
			}
		}
	}
}

// send blocks until the consumer takes the event or the handle is destroyed.
// Used for the events a session must not miss.
func (h *handle) send(ctx context.Context, ev domain.TransferEvent) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

// trySend drops the event when the consumer lags; progress ticks are lossy.
func (h *handle) trySend(ev domain.TransferEvent) {
	select {
	case h.events <- ev:
	default:
	}
}

type speedSample struct {
	at           time.Time
	bytesRead    int64
	bytesWritten int64
}

func (h *handle) sampleSpeed(stats torrent.TorrentStats, now time.Time) (int64, int64) {
	currentRead := stats.BytesReadUsefulData.Int64()
	currentWritten := stats.BytesWrittenData.Int64()

	h.speedMu.Lock()
	defer h.speedMu.Unlock()

	prev := h.speed
	h.speed = speedSample{at: now, bytesRead: currentRead, bytesWritten: currentWritten}

	if prev.at.IsZero() {
		return 0, 0
	}
	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}

	deltaRead := currentRead - prev.bytesRead
	deltaWritten := currentWritten - prev.bytesWritten
	if deltaRead < 0 {
		deltaRead = 0
	}
	if deltaWritten < 0 {
		deltaWritten = 0
	}
	return int64(float64(deltaRead) / dt), int64(float64(deltaWritten) / dt)
}

func mapFiles(t *torrent.Torrent) (mapped []domain.FileRef) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mapFiles panic recovered",
				slog.Any("error", r),
				slog.String("stack", string(debug.Stack())),
			)
			mapped = nil
		}
	}()

	files := t.Files()
	mapped = make([]domain.FileRef, 0, len(files))
	for i, f := range files {
		mapped = append(mapped, domain.FileRef{
			Index:          i,
			Path:           f.Path(),
			Length:         f.Length(),
			BytesCompleted: f.BytesCompleted(),
		})
	}
	return mapped
}

func infoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}
