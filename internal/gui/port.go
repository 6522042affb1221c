package gui

import (
	"time"

	"github.com/deskmate/deskmate/internal/bridge"
)

// Port is the fixed capability set a UI must expose for the backend to
// drive it. All methods are invoked from the single UI scheduler goroutine
// only; implementations never need their own locking for calls coming
// through this interface.
type Port interface {
	UpdateRecordingState(recording, paused bool)
	UpdateSessionInfo(sessionID string, startTime time.Time)
	UpdateFrameCount(frames int64)

	AddActionToFeed(action ActionItem)
	AddActionsToFeed(actions []ActionItem)

	SetPatterns(patterns []PatternItem)
	AddPatternToDashboard(p PatternItem)
	SetSuggestions(suggestions []SuggestionItem)
	AddSuggestionToDashboard(s SuggestionItem)

	OnBackendConnected()
	OnBackendDisconnected()
	OnBackendReconnecting()

	UpdateServiceHealth(service string, healthy bool, details string)
	UpdatePerformanceMetrics(m bridge.Metrics)

	ShowError(title, message string)
	ShowWarning(title, message string)
	ShowInfo(title, message string)
	ShowProgress(label string)
	HideProgress()

	UpdateStorageStats(stats map[string]any)
	OnCleanupProgress(done, total int)
	UpdateSessionsList(sessions []map[string]any)
	OnSessionDeleted(sessionID string)

	OnWorkflowStarted(workflowID string)
	OnWorkflowProgress(workflowID string, percent float64)
	OnWorkflowCompleted(workflowID string)
	OnWorkflowFailed(workflowID, reason string)

	AddLogMessage(level, message string)
}

// NopPort implements Port with no-ops. Embed it to implement only the
// callbacks a client cares about.
type NopPort struct{}

func (NopPort) UpdateRecordingState(bool, bool)                 {}
func (NopPort) UpdateSessionInfo(string, time.Time)             {}
func (NopPort) UpdateFrameCount(int64)                          {}
func (NopPort) AddActionToFeed(ActionItem)                      {}
func (NopPort) AddActionsToFeed([]ActionItem)                   {}
func (NopPort) SetPatterns([]PatternItem)                       {}
func (NopPort) AddPatternToDashboard(PatternItem)               {}
func (NopPort) SetSuggestions([]SuggestionItem)                 {}
func (NopPort) AddSuggestionToDashboard(SuggestionItem)         {}
func (NopPort) OnBackendConnected()                             {}
func (NopPort) OnBackendDisconnected()                          {}
func (NopPort) OnBackendReconnecting()                          {}
func (NopPort) UpdateServiceHealth(string, bool, string)        {}
func (NopPort) UpdatePerformanceMetrics(bridge.Metrics)         {}
func (NopPort) ShowError(string, string)                        {}
func (NopPort) ShowWarning(string, string)                      {}
func (NopPort) ShowInfo(string, string)                         {}
func (NopPort) ShowProgress(string)                             {}
func (NopPort) HideProgress()                                   {}
func (NopPort) UpdateStorageStats(map[string]any)               {}
func (NopPort) OnCleanupProgress(int, int)                      {}
func (NopPort) UpdateSessionsList([]map[string]any)             {}
func (NopPort) OnSessionDeleted(string)                         {}
func (NopPort) OnWorkflowStarted(string)                        {}
func (NopPort) OnWorkflowProgress(string, float64)              {}
func (NopPort) OnWorkflowCompleted(string)                      {}
func (NopPort) OnWorkflowFailed(string, string)                 {}
func (NopPort) AddLogMessage(string, string)                    {}
