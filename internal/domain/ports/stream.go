package ports

import (
	"context"
	"io"
)

// StreamReader is a seekable byte source over one file of a transfer.
// Reads block while bytes are in flight; SetContext bounds that blocking
// with the request lifetime so a client disconnect tears the read down.
type StreamReader interface {
	io.ReadSeekCloser
	SetContext(ctx context.Context)
	SetReadahead(bytes int64)
}
