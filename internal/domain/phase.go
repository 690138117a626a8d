package domain

import "errors"

// Phase is the client-visible lifecycle state of a session. Transitions are
// forward-only: Initializing < MetadataLoading < Ready, with Error and
// Destroyed reachable from anywhere and Destroyed terminal.
type Phase string

const (
	PhaseInitializing    Phase = "initializing"    // Handle created, no engine signal yet.
	PhaseMetadataLoading Phase = "metadataLoading" // Peers found or announce sent, file list unknown.
	PhaseReady           Phase = "ready"           // File list known and a playable file selected.
	PhaseError           Phase = "error"           // Unrecoverable; terminal until the client starts over.
	PhaseDestroyed       Phase = "destroyed"       // Registry destruction; terminal.
)

var ErrInvalidTransition = errors.New("invalid phase transition")

// validTransitions is the adjacency list of allowed phase changes.
var validTransitions = map[Phase][]Phase{
	PhaseInitializing:    {PhaseMetadataLoading, PhaseError, PhaseDestroyed},
	PhaseMetadataLoading: {PhaseReady, PhaseError, PhaseDestroyed},
	PhaseReady:           {PhaseError, PhaseDestroyed},
	PhaseError:           {PhaseDestroyed},
	PhaseDestroyed:       {},
}

// CanTransition reports whether a phase change is allowed.
func CanTransition(from, to Phase) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// rank orders the forward phases so pollers can assert monotonicity.
func (p Phase) rank() int {
	switch p {
	case PhaseInitializing:
		return 0
	case PhaseMetadataLoading:
		return 1
	case PhaseReady:
		return 2
	case PhaseError:
		return 3
	case PhaseDestroyed:
		return 4
	default:
		return -1
	}
}

// Before reports whether p precedes other in the forward ordering.
func (p Phase) Before(other Phase) bool {
	return p.rank() < other.rank()
}

// Terminal reports whether no forward transition can follow p.
func (p Phase) Terminal() bool {
	return p == PhaseError || p == PhaseDestroyed
}
