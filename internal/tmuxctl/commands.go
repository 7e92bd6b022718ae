package tmuxctl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PaneCaptureTimeout bounds a single capture-pane round trip (§5); the
// scrollback variant gets the full CommandTimeout instead since walking
// history is allowed to take longer.
const PaneCaptureTimeout = 2 * time.Second

// ScrollbackLines bounds how much history capture-pane -S pulls.
const ScrollbackLines = 5000

// SessionInfo is one row of `list-sessions`.
type SessionInfo struct {
	Name string
}

// PaneStatus is one row of the batched `list-panes -a` the supervisor uses
// to derive liveness every refresh tick (§4.1 Pane->session table, §4.3
// Liveness derivation).
type PaneStatus struct {
	PaneID       string
	SessionName  string
	PID          int32
	Dead         bool
	LastActivity time.Time
}

// Control is the command surface the supervisor depends on (§4.1
// "Commands exposed"). *Client satisfies it over the persistent
// control-mode pipe; *SubprocessClient satisfies it by spawning one
// subprocess per call, the fallback the supervisor switches to when the
// constructor's health check fails.
type Control interface {
	HealthCheck(ctx context.Context) error
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	ListPanes(ctx context.Context) ([]PaneStatus, error)
	NewSession(ctx context.Context, sessionName, workingDir, launchCmd string) error
	SetEnv(ctx context.Context, sessionName, key, value string) error
	UnsetEnv(ctx context.Context, sessionName, key string) error
	KillSession(ctx context.Context, sessionName string) error
	CapturePane(ctx context.Context, sessionName string) (string, error)
	CapturePaneScrollback(ctx context.Context, sessionName string) (string, error)
	SendKey(ctx context.Context, sessionName, key string) error
	SendLiteral(ctx context.Context, sessionName, text string) error
	Subscribe() (<-chan Line, func())
	Close() error
}

// HealthCheck runs the constructor's required round-trip
// ("display-message -p ok") and reports whether it succeeded within
// HealthCheckTimeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	lines, err := c.SendCommand(ctx, "display-message -p ok")
	if err != nil {
		return fmt.Errorf("tmuxctl: health check: %w", err)
	}
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "ok" {
		return fmt.Errorf("tmuxctl: health check: unexpected reply %v", lines)
	}
	return nil
}

// ListSessions returns every multiplexer session currently known.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	lines, err := c.SendCommand(ctx, "list-sessions -F '#{session_name}'")
	if err != nil {
		return nil, err
	}
	return parseSessionLines(lines), nil
}

func parseSessionLines(lines []string) []SessionInfo {
	out := make([]SessionInfo, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, SessionInfo{Name: l})
	}
	return out
}

// paneStatusFormat is the list-panes -F template; fields are tab
// separated so session names containing spaces still parse cleanly.
const paneStatusFormat = "#{pane_id}\t#{session_name}\t#{pane_dead}\t#{pane_activity}\t#{pane_pid}"

// ListPanes batches pane-dead and last-activity status for every pane
// across every session in one round trip (§4.1: "batched for all sessions
// in one call").
func (c *Client) ListPanes(ctx context.Context) ([]PaneStatus, error) {
	lines, err := c.SendCommand(ctx, "list-panes -a -F '"+paneStatusFormat+"'")
	if err != nil {
		return nil, err
	}
	return parsePaneStatusLines(lines), nil
}

func parsePaneStatusLines(lines []string) []PaneStatus {
	out := make([]PaneStatus, 0, len(lines))
	for _, l := range lines {
		fields := strings.SplitN(l, "\t", 5)
		if len(fields) != 5 {
			continue
		}
		dead := fields[2] == "1"
		var activity time.Time
		if secs, err := strconv.ParseInt(fields[3], 10, 64); err == nil && secs > 0 {
			activity = time.Unix(secs, 0)
		}
		var pid int32
		if n, err := strconv.ParseInt(fields[4], 10, 32); err == nil {
			pid = int32(n)
		}
		out = append(out, PaneStatus{
			PaneID:       fields[0],
			SessionName:  fields[1],
			PID:          pid,
			Dead:         dead,
			LastActivity: activity,
		})
	}
	return out
}

// NewSession creates a detached session named sessionName in workingDir
// running launchCmd; a nil error means the session was created.
func (c *Client) NewSession(ctx context.Context, sessionName, workingDir, launchCmd string) error {
	cmd := fmt.Sprintf("new-session -d -s %s -c %s %s",
		QuoteArg(sessionName), QuoteArg(workingDir), QuoteArg(launchCmd))
	_, err := c.SendCommand(ctx, cmd)
	return err
}

// SetEnv sets an environment variable for future commands targeting sessionName.
func (c *Client) SetEnv(ctx context.Context, sessionName, key, value string) error {
	cmd := fmt.Sprintf("set-environment -t %s %s %s", QuoteArg(sessionName), QuoteArg(key), QuoteArg(value))
	_, err := c.SendCommand(ctx, cmd)
	return err
}

// UnsetEnv removes a variable the session would otherwise inherit.
func (c *Client) UnsetEnv(ctx context.Context, sessionName, key string) error {
	cmd := fmt.Sprintf("set-environment -u -t %s %s", QuoteArg(sessionName), QuoteArg(key))
	_, err := c.SendCommand(ctx, cmd)
	return err
}

// KillSession destroys sessionName.
func (c *Client) KillSession(ctx context.Context, sessionName string) error {
	cmd := fmt.Sprintf("kill-session -t %s", QuoteArg(sessionName))
	_, err := c.SendCommand(ctx, cmd)
	return err
}

// CapturePane captures the visible screen of sessionName, ANSI included.
func (c *Client) CapturePane(ctx context.Context, sessionName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, PaneCaptureTimeout)
	defer cancel()
	cmd := fmt.Sprintf("capture-pane -e -p -t %s", QuoteArg(sessionName))
	lines, err := c.SendCommand(ctx, cmd)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// CapturePaneScrollback captures up to ScrollbackLines of history for
// sessionName, allowed the full CommandTimeout (§5) rather than the
// shorter live-capture budget.
func (c *Client) CapturePaneScrollback(ctx context.Context, sessionName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()
	cmd := fmt.Sprintf("capture-pane -e -p -S -%d -t %s", ScrollbackLines, QuoteArg(sessionName))
	lines, err := c.SendCommand(ctx, cmd)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// SendKey sends a named or control key (e.g. "Enter", "C-c") unquoted, per
// §4.1 quoting rules.
func (c *Client) SendKey(ctx context.Context, sessionName, key string) error {
	cmd := fmt.Sprintf("send-keys -t %s %s", QuoteArg(sessionName), key)
	_, err := c.SendCommand(ctx, cmd)
	return err
}

// SendLiteral sends literal text followed by Enter, with the text
// single-quoted per §4.1 (embedded quotes escaped, no key-name expansion).
func (c *Client) SendLiteral(ctx context.Context, sessionName, text string) error {
	cmd := fmt.Sprintf("send-keys -l -t %s %s", QuoteArg(sessionName), QuoteArg(text))
	if _, err := c.SendCommand(ctx, cmd); err != nil {
		return err
	}
	return c.SendKey(ctx, sessionName, "Enter")
}
