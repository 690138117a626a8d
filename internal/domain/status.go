package domain

import "time"

// Diagnostic is advisory detail attached to a status projection. It never
// drives a phase transition; a "likely dead" resource stays in
// MetadataLoading and the caller decides when to give up.
type Diagnostic struct {
	EverHadPeers    bool   `json:"everHadPeers"`
	PeersDiscovered bool   `json:"peersDiscovered"` // tracker or DHT produced at least one candidate
	LikelyDead      bool   `json:"likelyDead"`
	Suggestion      string `json:"suggestion,omitempty"`
}

// Status is the poll-friendly projection of one session.
type Status struct {
	ID            string     `json:"id"`
	Fingerprint   string     `json:"fingerprint"`
	Phase         Phase      `json:"state"`
	HasMetadata   bool       `json:"hasMetadata"`
	ProgressRatio float64    `json:"progressRatio"`
	PeerCount     int        `json:"peerCount"`
	DownloadRate  int64      `json:"downloadRate"`
	UploadRate    int64      `json:"uploadRate"`
	SelectedFile  *FileRef   `json:"selectedFile,omitempty"`
	Reason        string     `json:"reason,omitempty"` // set in the Error phase
	Diagnostic    Diagnostic `json:"diagnostic"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
