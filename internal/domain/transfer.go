package domain

// TransferStats is a point-in-time snapshot of the engine's counters for a
// single handle. TotalLength and PieceCount are zero until metadata is known.
type TransferStats struct {
	BytesCompleted int64
	TotalLength    int64
	PieceCount     int
	ActivePeers    int
	KnownPeers     int // peers ever discovered via tracker or DHT
	DownloadRate   int64
	UploadRate     int64
}

// ProgressRatio returns completed/total clamped to [0,1], 0 when the total
// is not yet known.
func (s TransferStats) ProgressRatio() float64 {
	if s.TotalLength <= 0 {
		return 0
	}
	ratio := float64(s.BytesCompleted) / float64(s.TotalLength)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// TransferEventType identifies an engine signal delivered to a session.
type TransferEventType string

const (
	EventMetadata      TransferEventType = "metadata"      // file list became known
	EventReady         TransferEventType = "ready"         // engine considers the transfer serviceable
	EventError         TransferEventType = "error"         // fatal engine error
	EventProgress      TransferEventType = "progress"      // bytes arrived
	EventPeerConnected TransferEventType = "peerConnected" // first contact with a peer
)

// TransferEvent is one engine signal. Err is set for EventError,
// BytesDelta for EventProgress.
type TransferEvent struct {
	Type       TransferEventType
	BytesDelta int64
	Err        error
}

// Priority is the requested download urgency for a piece.
type Priority int

const (
	PriorityNone      Priority = -1
	PriorityNormal    Priority = 0
	PriorityReadahead Priority = 1 // within the playback-adjacent window
	PriorityNext      Priority = 2 // immediately behind the high band
	PriorityHigh      Priority = 3 // needed now
)
