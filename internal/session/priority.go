package session

import (
	"log/slog"
	"math"

	"peerstream/internal/domain"
	"peerstream/internal/domain/ports"
)

// priorityPolicy keeps the engine downloading in playback order. At Ready
// it pins the head of the file; on every progress tick it slides a window
// ahead of the current position. Piece indices the engine cannot resolve
// yet are skipped; the next tick retries naturally.
type priorityPolicy struct {
	handle        ports.Handle
	initialWindow int
	bufferAhead   int
	logger        *slog.Logger
}

func newPriorityPolicy(handle ports.Handle, initialWindow, bufferAhead int, logger *slog.Logger) *priorityPolicy {
	return &priorityPolicy{
		handle:        handle,
		initialWindow: initialWindow,
		bufferAhead:   bufferAhead,
		logger:        logger,
	}
}

// PinInitial raises the first pieces before any progress exists, so
// sequential playback from offset zero gets fast first-byte latency.
func (p *priorityPolicy) PinInitial(pieceCount int) {
	if pieceCount <= 0 {
		return
	}
	end := p.initialWindow
	if end > pieceCount {
		end = pieceCount
	}
	p.raise(0, end)
}

// OnProgress slides the window: current = floor(ratio * pieces), raise
// [current, current+bufferAhead) clamped to the valid range.
func (p *priorityPolicy) OnProgress(stats domain.TransferStats) {
	if stats.PieceCount <= 0 {
		return
	}
	current := int(math.Floor(stats.ProgressRatio() * float64(stats.PieceCount)))
	if current >= stats.PieceCount {
		current = stats.PieceCount - 1
	}
	if current < 0 {
		current = 0
	}
	end := current + p.bufferAhead
	if end > stats.PieceCount {
		end = stats.PieceCount
	}
	p.raise(current, end)
}

func (p *priorityPolicy) raise(start, end int) {
	for i := start; i < end; i++ {
		level := domain.PriorityReadahead
		if i == start {
			level = domain.PriorityHigh
		}
		if err := p.handle.SetPiecePriority(i, level); err != nil {
			// Advisory: the engine may not know this piece yet.
			p.logger.Debug("piece priority skipped",
				slog.Int("piece", i),
				slog.String("error", err.Error()),
			)
		}
	}
}
