package supervisor

import (
	"time"

	"github.com/agent-dashboard/dashboard/internal/session"
)

// CommandKind discriminates the UI's mutating intents (§4.3 event loop,
// input source 1). Modeled as a single tagged struct rather than an
// interface hierarchy, the same texture session.ConversationEntry uses.
type CommandKind string

const (
	CmdCreate         CommandKind = "create"
	CmdDelete         CommandKind = "delete"
	CmdSendCompose    CommandKind = "send_compose"
	CmdSendKeys       CommandKind = "send_keys"
	CmdSendInterrupt  CommandKind = "send_interrupt"
	CmdSendLiteral    CommandKind = "send_literal"
	CmdRequestPreview CommandKind = "request_preview"
	CmdListSessions   CommandKind = "list_sessions"
	CmdQuit           CommandKind = "quit"
)

// Command is one UI-originated mutating intent. Only the fields relevant
// to Kind are populated.
type Command struct {
	Kind CommandKind

	// Create
	UserName   string
	Agent      string
	WorkingDir string

	// SendKeys
	Key string

	// SendCompose / SendLiteral
	Text string

	// RequestPreview
	Scrollback bool

	// ListSessions: populated by the supervisor before Reply is sent.
	Snapshot chan *session.StateSnapshot

	// Reply carries the outcome back to the caller for intents that need
	// one (Create/Delete); nil for fire-and-forget intents. Buffered by
	// the caller so a supervisor send never blocks on a caller that
	// stopped listening.
	Reply chan error
}

// taskTimer tracks when a session's current/most-recent task started and
// when it was last observed active, per §4.3 "task-timer map".
type taskTimer struct {
	startedAt    time.Time
	lastActiveAt time.Time
}
