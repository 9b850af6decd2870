package tui

import (
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/session"
	"github.com/teslashibe/go-moodcam/pkg/store"
)

// StatusMsg carries a controller state change.
type StatusMsg struct {
	Status session.Status
}

// ObservationMsg carries a newly published observation.
type ObservationMsg struct {
	Observation emotions.Observation
}

// StartResultMsg is sent when Start returns.
type StartResultMsg struct {
	Err error
}

// SaveResultMsg is sent when saving the current observation finishes.
type SaveResultMsg struct {
	Entry store.Entry
	Err   error
}

// LoggedMsg is sent when a manual entry has been stored.
type LoggedMsg struct {
	Entry store.Entry
	Err   error
}

// HistoryLoadedMsg carries recent entries, newest first.
type HistoryLoadedMsg struct {
	Entries []store.Entry
	Err     error
}

// StatsLoadedMsg carries the stats for the trends tab.
type StatsLoadedMsg struct {
	Stats store.Stats
	Err   error
}

// ClearNoticeMsg clears a transient notice after a timeout.
type ClearNoticeMsg struct {
	Seq int
}
