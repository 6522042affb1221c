package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/deskmate/deskmate/internal/event"
	"github.com/deskmate/deskmate/internal/metrics"
	"github.com/deskmate/deskmate/internal/store"
)

// Result is the structured outcome of a dispatched command. Validation
// failures and unknown commands come back as Success=false with Error set;
// Dispatch never panics and never returns a Go error to the transport.
type Result struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func ok(result map[string]any) Result {
	if result == nil {
		result = map[string]any{}
	}
	return Result{Success: true, Result: result}
}

func fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Settings validation ranges.
const (
	minScreenshotInterval = 1
	maxScreenshotInterval = 60
	minSampleRate         = 8000
	maxSampleRate         = 48000
	minMaxStorageGB       = 1
	maxMaxStorageGB       = 1000
)

type commandFunc func(ctx context.Context, params map[string]any) Result

// Dispatch routes an external command by name. All commands the GUI or the
// HTTP API can issue go through here.
func (c *Coordinator) Dispatch(ctx context.Context, command string, params map[string]any) Result {
	if params == nil {
		params = map[string]any{}
	}
	handlers := map[string]commandFunc{
		"start_recording":     c.cmdStartRecording,
		"stop_recording":      c.cmdStopRecording,
		"pause_recording":     c.cmdPauseRecording,
		"resume_recording":    c.cmdResumeRecording,
		"emergency_stop":      c.cmdEmergencyStop,
		"execute_workflow":    c.cmdExecuteWorkflow,
		"stop_workflow":       c.cmdStopWorkflow,
		"cleanup_storage":     c.cmdCleanupStorage,
		"get_storage_stats":   c.cmdGetStorageStats,
		"export_data":         c.cmdExportData,
		"get_sessions":        c.cmdGetSessions,
		"get_session_details": c.cmdGetSessionDetails,
		"delete_session":      c.cmdDeleteSession,
		"delete_all_sessions": c.cmdDeleteAllSessions,
		"update_settings":     c.cmdUpdateSettings,
		"get_settings":        c.cmdGetSettings,
		"reset_settings":      c.cmdResetSettings,
		"update_hotkeys":      c.cmdUpdateHotkeys,
		"get_hotkeys":         c.cmdGetHotkeys,
	}
	h, found := handlers[command]
	if !found {
		metrics.IncCommand(command, "unknown")
		return fail("unknown command: %s", command)
	}
	res := func() (r Result) {
		defer func() {
			if p := recover(); p != nil {
				c.log.Error("Command handler panicked", "command", command, "panic", p)
				r = fail("internal error executing %s", command)
			}
		}()
		return h(ctx, params)
	}()
	outcome := "ok"
	if !res.Success {
		outcome = "error"
	}
	metrics.IncCommand(command, outcome)
	return res
}

func (c *Coordinator) cmdStartRecording(ctx context.Context, _ map[string]any) Result {
	if err := c.Start(ctx); err != nil {
		return fail("start recording: %v", err)
	}
	return ok(map[string]any{"session_id": c.SessionID()})
}

func (c *Coordinator) cmdStopRecording(ctx context.Context, _ map[string]any) Result {
	if err := c.Stop(ctx); err != nil {
		return fail("stop recording: %v", err)
	}
	return ok(nil)
}

func (c *Coordinator) cmdPauseRecording(_ context.Context, _ map[string]any) Result {
	if err := c.Pause(); err != nil {
		return fail("pause recording: %v", err)
	}
	return ok(nil)
}

func (c *Coordinator) cmdResumeRecording(_ context.Context, _ map[string]any) Result {
	if err := c.Resume(); err != nil {
		return fail("resume recording: %v", err)
	}
	return ok(nil)
}

func (c *Coordinator) cmdEmergencyStop(_ context.Context, _ map[string]any) Result {
	if err := c.EmergencyStop(); err != nil {
		return fail("emergency stop: %v", err)
	}
	return ok(nil)
}

func (c *Coordinator) cmdExecuteWorkflow(ctx context.Context, params map[string]any) Result {
	id, err := stringParam(params, "workflow_id")
	if err != nil {
		return fail("%v", err)
	}
	exec := c.automation()
	if exec == nil {
		return fail("execute workflow: %v", ErrNoAutomation)
	}
	wfParams, _ := params["params"].(map[string]any)
	if err := exec.ExecuteWorkflow(ctx, id, wfParams); err != nil {
		return fail("execute workflow %s: %v", id, err)
	}
	c.bus.Publish(event.New(event.WorkflowStarted, "coordinator", map[string]any{"workflow_id": id}))
	return ok(map[string]any{"workflow_id": id})
}

func (c *Coordinator) cmdStopWorkflow(_ context.Context, params map[string]any) Result {
	id, err := stringParam(params, "workflow_id")
	if err != nil {
		return fail("%v", err)
	}
	exec := c.automation()
	if exec == nil {
		return fail("stop workflow: %v", ErrNoAutomation)
	}
	if err := exec.StopWorkflow(id); err != nil {
		return fail("stop workflow %s: %v", id, err)
	}
	return ok(map[string]any{"workflow_id": id})
}

func (c *Coordinator) cmdCleanupStorage(ctx context.Context, params map[string]any) Result {
	if c.st == nil {
		return fail("cleanup storage: no store configured")
	}
	days := 30
	if v, present := params["older_than_days"]; present {
		n, err := intParam(v, "older_than_days")
		if err != nil {
			return fail("%v", err)
		}
		if n < 1 {
			return fail("older_than_days must be >= 1, got %d", n)
		}
		days = n
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	removed, err := c.st.Cleanup(ctx, cutoff)
	if err != nil {
		return fail("cleanup storage: %v", err)
	}
	return ok(map[string]any{"removed_sessions": removed, "older_than_days": days})
}

func (c *Coordinator) cmdGetStorageStats(ctx context.Context, _ map[string]any) Result {
	if c.st == nil {
		return fail("get storage stats: no store configured")
	}
	st, err := c.st.StorageStats(ctx)
	if err != nil {
		return fail("get storage stats: %v", err)
	}
	return ok(map[string]any{
		"total_sessions":  st.TotalSessions,
		"active_sessions": st.ActiveSessions,
		"oldest_session":  st.OldestSession.Format(time.RFC3339),
	})
}

func (c *Coordinator) cmdExportData(ctx context.Context, params map[string]any) Result {
	if c.st == nil {
		return fail("export data: no store configured")
	}
	path, err := stringParam(params, "path")
	if err != nil {
		return fail("%v", err)
	}
	sessions, err := c.st.ListSessions(ctx, 0)
	if err != nil {
		return fail("export data: %v", err)
	}
	body, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fail("export data: %v", err)
	}
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return fail("export data: %v", err)
	}
	return ok(map[string]any{"path": path, "sessions": len(sessions)})
}

func (c *Coordinator) cmdGetSessions(ctx context.Context, params map[string]any) Result {
	if c.st == nil {
		return fail("get sessions: no store configured")
	}
	limit := 50
	if v, present := params["limit"]; present {
		n, err := intParam(v, "limit")
		if err != nil {
			return fail("%v", err)
		}
		limit = n
	}
	sessions, err := c.st.ListSessions(ctx, limit)
	if err != nil {
		return fail("get sessions: %v", err)
	}
	return ok(map[string]any{"sessions": sessionMaps(sessions)})
}

func (c *Coordinator) cmdGetSessionDetails(ctx context.Context, params map[string]any) Result {
	if c.st == nil {
		return fail("get session details: no store configured")
	}
	id, err := stringParam(params, "session_id")
	if err != nil {
		return fail("%v", err)
	}
	sess, err := c.st.GetSession(ctx, id)
	if err != nil {
		return fail("get session %s: %v", id, err)
	}
	return ok(sessionMap(sess))
}

func (c *Coordinator) cmdDeleteSession(ctx context.Context, params map[string]any) Result {
	if c.st == nil {
		return fail("delete session: no store configured")
	}
	id, err := stringParam(params, "session_id")
	if err != nil {
		return fail("%v", err)
	}
	if id == c.SessionID() {
		return fail("cannot delete the active session %s", id)
	}
	if err := c.st.DeleteSession(ctx, id); err != nil {
		return fail("delete session %s: %v", id, err)
	}
	if e, err := event.NewSessionEvent(event.SessionDeleted, "coordinator", id, nil); err == nil {
		c.bus.Publish(e)
	}
	return ok(map[string]any{"session_id": id})
}

func (c *Coordinator) cmdDeleteAllSessions(ctx context.Context, _ map[string]any) Result {
	if c.st == nil {
		return fail("delete all sessions: no store configured")
	}
	removed, err := c.st.DeleteAllSessions(ctx)
	if err != nil {
		return fail("delete all sessions: %v", err)
	}
	return ok(map[string]any{"removed_sessions": removed})
}

func (c *Coordinator) cmdUpdateSettings(ctx context.Context, params map[string]any) Result {
	if c.st == nil {
		return fail("update settings: no store configured")
	}
	current, err := c.st.GetSettings(ctx)
	if err != nil {
		return fail("update settings: %v", err)
	}
	if v, present := params["screenshot_interval"]; present {
		n, err := intParam(v, "screenshot_interval")
		if err != nil {
			return fail("%v", err)
		}
		if n < minScreenshotInterval || n > maxScreenshotInterval {
			return fail("screenshot_interval must be %d-%d seconds, got %d", minScreenshotInterval, maxScreenshotInterval, n)
		}
		current.ScreenshotInterval = n
	}
	if v, present := params["sample_rate"]; present {
		n, err := intParam(v, "sample_rate")
		if err != nil {
			return fail("%v", err)
		}
		if n < minSampleRate || n > maxSampleRate {
			return fail("sample_rate must be %d-%d Hz, got %d", minSampleRate, maxSampleRate, n)
		}
		current.SampleRate = n
	}
	if v, present := params["max_storage_gb"]; present {
		n, err := intParam(v, "max_storage_gb")
		if err != nil {
			return fail("%v", err)
		}
		if n < minMaxStorageGB || n > maxMaxStorageGB {
			return fail("max_storage_gb must be %d-%d, got %d", minMaxStorageGB, maxMaxStorageGB, n)
		}
		current.MaxStorageGB = n
	}
	if err := c.st.UpdateSettings(ctx, current); err != nil {
		return fail("update settings: %v", err)
	}
	return ok(settingsMap(current))
}

func (c *Coordinator) cmdGetSettings(ctx context.Context, _ map[string]any) Result {
	if c.st == nil {
		return fail("get settings: no store configured")
	}
	s, err := c.st.GetSettings(ctx)
	if err != nil {
		return fail("get settings: %v", err)
	}
	return ok(settingsMap(s))
}

func (c *Coordinator) cmdResetSettings(ctx context.Context, _ map[string]any) Result {
	if c.st == nil {
		return fail("reset settings: no store configured")
	}
	if err := c.st.ResetSettings(ctx); err != nil {
		return fail("reset settings: %v", err)
	}
	return ok(settingsMap(store.DefaultSettings()))
}

func (c *Coordinator) cmdUpdateHotkeys(_ context.Context, params map[string]any) Result {
	hk := c.hotkeys()
	if hk == nil {
		return fail("update hotkeys: no hotkey service registered")
	}
	raw, present := params["bindings"]
	if !present {
		return fail("missing required parameter: bindings")
	}
	bindings, castOK := raw.(map[string]any)
	if !castOK {
		return fail("bindings must be a map of action to key combo")
	}
	for action, combo := range bindings {
		s, castOK := combo.(string)
		if !castOK || s == "" {
			return fail("binding for %s must be a non-empty string", action)
		}
		if err := hk.Rebind(action, s); err != nil {
			return fail("rebind %s: %v", action, err)
		}
	}
	return c.cmdGetHotkeys(context.Background(), nil)
}

func (c *Coordinator) cmdGetHotkeys(_ context.Context, _ map[string]any) Result {
	hk := c.hotkeys()
	if hk == nil {
		return fail("get hotkeys: no hotkey service registered")
	}
	bindings := hk.Bindings()
	out := make(map[string]any, len(bindings))
	for k, v := range bindings {
		out[k] = v
	}
	return ok(map[string]any{"bindings": out})
}

func stringParam(params map[string]any, key string) (string, error) {
	v, present := params[key]
	if !present {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, castOK := v.(string)
	if !castOK || s == "" {
		return "", fmt.Errorf("parameter %s must be a non-empty string", key)
	}
	return s, nil
}

// intParam accepts the numeric shapes JSON decoding produces.
func intParam(v any, key string) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("parameter %s must be an integer", key)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("parameter %s must be an integer", key)
	}
}

func settingsMap(s store.Settings) map[string]any {
	return map[string]any{
		"screenshot_interval": s.ScreenshotInterval,
		"sample_rate":         s.SampleRate,
		"max_storage_gb":      s.MaxStorageGB,
	}
}

func sessionMap(s store.Session) map[string]any {
	m := map[string]any{
		"id":             s.ID,
		"start_time":     s.StartTime.Format(time.RFC3339),
		"status":         s.Status,
		"actions_count":  s.ActionsCount,
		"patterns_count": s.PatternsCount,
	}
	if s.EndTime.Valid {
		m["end_time"] = s.EndTime.Time.Format(time.RFC3339)
	}
	return m
}

func sessionMaps(list []store.Session) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, s := range list {
		out = append(out, sessionMap(s))
	}
	return out
}
