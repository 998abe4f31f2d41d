package models

import "time"

// SyncPhase is the orchestrator's published lifecycle phase.
type SyncPhase string

const (
	PhaseIdle     SyncPhase = "idle"
	PhaseSyncing  SyncPhase = "syncing"
	PhaseSuccess  SyncPhase = "success"
	PhaseFailed   SyncPhase = "failed"
	PhaseConflict SyncPhase = "conflict"
	PhaseOffline  SyncPhase = "offline"
)

// SyncState is the orchestrator's published status snapshot. Consumers (UI,
// CLI) treat it as read-only.
type SyncState struct {
	Phase SyncPhase

	// Progress is a 0..1 fraction meaningful while Phase == PhaseSyncing.
	Progress float64
	Message  string

	// Err carries the failure description while Phase == PhaseFailed.
	Err string

	LastSyncAt time.Time

	PendingCount  int
	ConflictCount int

	// AbandonedCount counts queue items dropped after exhausting their
	// retries since the process started. Dropped changes are gone; the
	// count exists so the condition is at least visible.
	AbandonedCount int
}
