package supervisor

import (
	"context"
	"errors"
)

// Service is the contract every managed backend collaborator implements.
// The coordinator starts services in registration order, stops them in
// reverse order and polls Running for health checks.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Running() bool
	Status() map[string]any
}

// Pauser is implemented by services that can suspend work without a full
// stop (capture services). Pause/Resume are forwarded by the coordinator's
// pause_recording/resume_recording commands.
type Pauser interface {
	Pause() error
	Resume() error
}

// AutomationExecutor runs recorded workflows. EmergencyStop must succeed in
// any coordinator state.
type AutomationExecutor interface {
	Service
	ExecuteWorkflow(ctx context.Context, workflowID string, params map[string]any) error
	StopWorkflow(workflowID string) error
	EmergencyStop() error
}

// HotkeyService exposes the user's key bindings for the hotkey commands.
type HotkeyService interface {
	Service
	Bindings() map[string]string
	Rebind(action, combo string) error
}

// Sentinel errors reported by the coordinator.
var (
	ErrAlreadyRunning = errors.New("coordinator already running")
	ErrNotRunning     = errors.New("coordinator not running")
	ErrUnknownService = errors.New("unknown service")
	ErrRestartLimit   = errors.New("restart limit reached")
	ErrNoAutomation   = errors.New("no automation executor registered")
)

// Canonical service names. Registration order fixes the dependency order:
// the communication bridge starts first, automation last.
const (
	ServiceEventBridge      = "event_bridge"
	ServiceScreenCapture    = "screen_capture"
	ServiceAudioCapture     = "audio_capture"
	ServiceWorkflowAnalyzer = "workflow_analyzer"
	ServiceHotkeys          = "hotkeys"
	ServiceAutomation       = "automation"
)
