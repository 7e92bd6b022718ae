// Package session holds the core data model shared by the control-mode
// client, the log ingestion pipeline, and the backend supervisor: Session,
// SessionStats, GlobalStats, ConversationEntry/ConversationBuffer, DiffFile,
// and the immutable StateSnapshot published to the UI each refresh.
package session

import (
	"sort"
	"time"
)

// AgentKind is the closed set of supported agent vendors.
type AgentKind string

const (
	Claude AgentKind = "claude"
	Codex  AgentKind = "codex"
	Gemini AgentKind = "gemini"
)

// Session is a single user-visible agent process.
type Session struct {
	UserName       string // unique per project
	MultiplexName  string // "<prefix>-<projectId>-<name>"
	Agent          AgentKind
	Process        ProcessState
	ExitInfo       ExitInfo // valid only when Process == Exited
	AgentActivity  AgentState
	LastActivityAt time.Time
	TaskElapsed    *time.Duration // elapsed duration of the current/most-recent task, if any
	WorkingDir     string
}

// VisualStatus derives this session's displayed status and detail string.
func (s *Session) VisualStatus(detail string) (VisualStatus, string) {
	return DeriveVisualStatus(s.Process, s.AgentActivity, detail)
}

// SessionStats are cumulative counters extracted from a session's transcript.
type SessionStats struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	EditCount        int
	BashCount        int
	ActiveSubagents  int
	TaskStartedAt    time.Time
	TaskEndedAt      time.Time
	ReadOffset       int64
}

// IncrementActiveSubagents adjusts the active-subagent counter, clamping at 0
// (§4.2 normalisation rules).
func (s *SessionStats) IncrementActiveSubagents(delta int) {
	s.ActiveSubagents += delta
	if s.ActiveSubagents < 0 {
		s.ActiveSubagents = 0
	}
}

// AgentCost is the per-kind, per-token-class cost accumulated for a UTC day.
type AgentCost struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	CostUSD          float64
}

// GlobalStats is the per-agent cost aggregate. After every merged log
// parse it is rebuilt by summing the in-memory SessionStats of the
// sessions this supervisor currently tracks: no transcript on disk is
// rescanned, sessions no longer tracked drop out of the sum, and token
// counts are whole-transcript totals, not filtered to Day. Day is the UTC
// day the supervisor started on and does not advance at midnight.
type GlobalStats struct {
	Day      string // YYYY-MM-DD, UTC
	ByAgent  map[AgentKind]AgentCost
	AsOfRate string // pricing table version stamp (see SPEC_FULL cost-table versioning)
}

// NewGlobalStats returns an empty GlobalStats for the given UTC day.
func NewGlobalStats(day string) GlobalStats {
	return GlobalStats{Day: day, ByAgent: make(map[AgentKind]AgentCost)}
}

// EntryKind discriminates ConversationEntry variants.
type EntryKind string

const (
	EntryUserMessage    EntryKind = "user_message"
	EntryAssistantText  EntryKind = "assistant_text"
	EntryToolUse        EntryKind = "tool_use"
	EntryToolResult     EntryKind = "tool_result"
	EntryQueueOperation EntryKind = "queue_operation"
	EntryProgress       EntryKind = "progress"
	EntrySystemEvent    EntryKind = "system_event"
	EntryFileHistory    EntryKind = "file_history_snapshot"
	EntryUnparsed       EntryKind = "unparsed"
)

// ConversationEntry is a tagged, append-only item in a session's
// conversation stream. Only the fields relevant to Kind are populated; the
// rest are left at their zero value. This mirrors the way the teacher
// models its Activity enum as a single Go type with a discriminator rather
// than an interface hierarchy -- there is no behavioral dispatch needed
// here, only tagged data.
type ConversationEntry struct {
	Kind EntryKind

	// UserMessage / AssistantText
	Text string

	// ToolUse
	ToolName string
	Details  string // short summary of inputs, bounded width

	// ToolResult
	Filenames []string
	Summary   string

	// QueueOperation
	QueueOp string
	TaskID  string

	// Progress
	ProgressKind string
	Detail       string

	// SystemEvent
	Subtype string

	// FileHistorySnapshot
	TrackedFiles []string
	Files        []string
	IsUpdate     bool

	// Unparsed
	Reason string
	Raw    string
}

// maxUnparsedRawWidth bounds the Raw field on Unparsed entries.
const maxUnparsedRawWidth = 400

// NewUnparsedEntry builds an Unparsed entry, truncating raw to a bounded width.
func NewUnparsedEntry(reason, raw string) ConversationEntry {
	if len(raw) > maxUnparsedRawWidth {
		raw = raw[:maxUnparsedRawWidth]
	}
	return ConversationEntry{Kind: EntryUnparsed, Reason: reason, Raw: raw}
}

// ConversationBufferLimit is the maximum number of entries retained per
// session (§3 ConversationBuffer invariant).
const ConversationBufferLimit = 500

// ConversationBuffer is a bounded FIFO of at most ConversationBufferLimit
// ConversationEntry values (oldest discarded), plus the monotonically
// increasing file read offset that produced them.
type ConversationBuffer struct {
	entries []ConversationEntry
	Offset  int64
}

// Extend appends new entries, discarding the oldest when the buffer exceeds
// ConversationBufferLimit. The buffer always holds a contiguous suffix of
// the underlying transcript.
func (b *ConversationBuffer) Extend(entries []ConversationEntry) {
	if len(entries) == 0 {
		return
	}
	b.entries = append(b.entries, entries...)
	if over := len(b.entries) - ConversationBufferLimit; over > 0 {
		b.entries = b.entries[over:]
	}
}

// Reset clears the buffer and offset -- used when a transcript is replaced
// (truncation / rotation, §4.2).
func (b *ConversationBuffer) Reset() {
	b.entries = nil
	b.Offset = 0
}

// Entries returns the current contents in arrival order. The returned slice
// must not be mutated by the caller.
func (b *ConversationBuffer) Entries() []ConversationEntry {
	return b.entries
}

// Len returns the number of entries currently held.
func (b *ConversationBuffer) Len() int {
	return len(b.entries)
}

// DiffFile summarizes one file's change in a session's working directory.
type DiffFile struct {
	Path       string
	Insertions int
	Deletions  int
	Untracked  bool
}

// MaxDiffFiles bounds the diff file list carried in a StateSnapshot (§5).
const MaxDiffFiles = 200

// StateSnapshot is an immutable bundle published to the UI on every
// supervisor refresh. Once published, a snapshot is never mutated; a newer
// snapshot fully supersedes any older one (latest-value semantics, §5).
type StateSnapshot struct {
	Sessions        []Session // sorted by (statusGroup, userName)
	LastMessage     map[string]string
	Stats           map[string]SessionStats
	Global          GlobalStats
	Diffs           []DiffFile
	Conversations   map[string][]ConversationEntry
	StatusMessage   string
	GeneratedAt     time.Time
}

// SortSessions orders sessions by (statusGroup, userName) per §4.3.
func SortSessions(sessions []Session) {
	type keyed struct {
		group int
		s     Session
	}
	tmp := make([]keyed, len(sessions))
	for i, s := range sessions {
		status, _ := s.VisualStatus("")
		tmp[i] = keyed{group: status.SortGroup(), s: s}
	}
	sort.SliceStable(tmp, func(i, j int) bool {
		if tmp[i].group != tmp[j].group {
			return tmp[i].group < tmp[j].group
		}
		return tmp[i].s.UserName < tmp[j].s.UserName
	})
	for i, k := range tmp {
		sessions[i] = k.s
	}
}
