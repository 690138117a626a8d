// Package anacrolix adapts github.com/anacrolix/torrent to the
// ports.TransferEngine contract. Pieces are stored in volatile memory; the
// adapter never writes content to disk.
package anacrolix

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"peerstream/internal/domain"
	"peerstream/internal/domain/ports"
	"peerstream/internal/storage/memory"
)

// addTimeout caps the time we wait for the anacrolix client to accept a
// magnet link. AddMagnet can block on an internal client mutex while the
// client resolves metadata for another torrent.
const addTimeout = 10 * time.Second

type Config struct {
	// MemoryLimitBytes bounds resident piece data; 0 = unbounded.
	MemoryLimitBytes int64
	// DisableSeeding stops uploading pieces to other peers.
	DisableSeeding bool
}

type Engine struct {
	client *torrent.Client
	pieces *memory.Provider
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := memory.NewProvider(memory.WithMaxBytes(cfg.MemoryLimitBytes))

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DefaultStorage = storage.NewResourcePieces(provider)
	clientConfig.Seed = !cfg.DisableSeeding

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}

	return &Engine{client: client, pieces: provider, logger: logger}, nil
}

// NewWithClient wires a pre-built client; used by tests.
func NewWithClient(client *torrent.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, logger: logger}
}

func (e *Engine) Create(ctx context.Context, locator string) (ports.Handle, error) {
	if e.client == nil {
		return nil, errors.New("torrent client not configured")
	}

	magnet, err := normalizeLocator(locator)
	if err != nil {
		return nil, err
	}

	// Run AddMagnet off the request goroutine so a busy client never blocks
	// the caller past addTimeout.
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, addErr := e.client.AddMagnet(magnet)
		ch <- addResult{t, addErr}
	}()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		t = res.t
	case <-time.After(addTimeout):
		// AddMagnet may still complete later; drop the orphan when it does.
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, errors.New("transfer engine busy, try again later")
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, ctx.Err()
	}

	return newHandle(t, e.logger), nil
}

func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

// ResidentBytes reports how much piece data the engine currently holds in
// memory. Zero when the engine was built without the memory provider.
func (e *Engine) ResidentBytes() int64 {
	if e.pieces == nil {
		return 0
	}
	return e.pieces.ResidentBytes()
}

var _ ports.TransferEngine = (*Engine)(nil)

func mapPriority(prio domain.Priority) torrent.PiecePriority {
	switch prio {
	case domain.PriorityNone:
		return torrent.PiecePriorityNone
	case domain.PriorityHigh:
		return torrent.PiecePriorityNow
	case domain.PriorityNext:
		return torrent.PiecePriorityNext
	case domain.PriorityReadahead:
		return torrent.PiecePriorityReadahead
	default:
		return torrent.PiecePriorityNormal
	}
}
