package ports

import (
	"context"

	"peerstream/internal/domain"
)

// TransferEngine is the external peer-to-peer data plane. It owns peer
// discovery, piece exchange and verification; this process only consumes
// handles.
type TransferEngine interface {
	// Create registers a resource locator and returns its handle. The
	// transfer starts asynchronously; metadata may not be known yet.
	Create(ctx context.Context, locator string) (Handle, error)
	Close() error
}

// Handle is the engine-owned transfer object for one resource. A handle is
// exclusively owned by its session and released through Destroy.
type Handle interface {
	// Fingerprint is the stable content identity (infohash).
	Fingerprint() string

	// Files lists the contained files, nil until metadata is known.
	Files() []domain.FileRef

	// Stats is a point-in-time counter snapshot.
	Stats() domain.TransferStats

	// Events delivers engine signals until Destroy. Progress events are
	// lossy under backpressure; metadata/ready/error are not.
	Events() <-chan domain.TransferEvent

	// NewReader opens an independent random-access reader over one file.
	// Reads suspend while the requested bytes are not locally available.
	NewReader(fileIndex int) (StreamReader, error)

	// SetPiecePriority requests urgency for one piece. Returns an error
	// for indices the engine cannot resolve yet; callers treat that as
	// advisory and skip.
	SetPiecePriority(pieceIndex int, level domain.Priority) error

	// Destroy releases the transfer. done is invoked once with the release
	// result; callers log it rather than wait.
	Destroy(done func(error))
}
