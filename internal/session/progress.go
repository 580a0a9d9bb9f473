package session

import "context"

// Stage is the coarse pipeline phase a session is in. There is no explicit
// terminal write: the client infers completion when the sheet download
// becomes available.
type Stage string

const (
	StageIdle       Stage = "IDLE"
	StageReady      Stage = "READY"
	StageScanning   Stage = "SCANNING"
	StageExtracting Stage = "EXTRACTING"
)

// Progress is the session-scoped progress record, mutated in place by the
// driver after every unit of work and read-only to the polling client.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Cursor  int    `json:"cursor"`
	Percent int    `json:"progress"`
	Details string `json:"details"`
}

// Publisher writes progress records for a session. Exactly one driver writes
// a given session at a time.
type Publisher interface {
	SetProgress(ctx context.Context, sessionID string, p Progress) error
}
