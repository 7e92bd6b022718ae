// Package logs implements the log ingestion pipeline (C2): discovering a
// vendor agent's on-disk transcript, tailing it incrementally, and
// translating each new record into the dashboard's common
// session.ConversationEntry shape. Each vendor (Claude, Codex, Gemini) is
// a Provider with its own discovery strategy but a shared incremental-tail
// mechanism (TailLines, in tail.go).
package logs

import (
	"context"
	"time"

	"github.com/agent-dashboard/dashboard/internal/session"
)

// Handle identifies one on-disk transcript a Provider is tailing.
type Handle struct {
	SessionID  string
	LogPath    string
	WorkingDir string
	Provider   string
	StartedAt  time.Time
}

// Update is the incremental result of one UpdateFromLog call: everything new
// since the caller's last offset. Scalars are latest-wins snapshots
// (e.g. Model), counters are deltas, Entries are append-only.
type Update struct {
	SessionID        string
	Model            string
	Entries          []session.ConversationEntry
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	EditDelta        int
	BashDelta        int
	LastActivityAt   time.Time
	WorkingDir       string
	MaxContextTokens int
	// ReplaceConversation signals the log file was rotated or truncated
	// underneath the reader (offset no longer valid); the supervisor must
	// discard any buffered conversation for this session before applying
	// Entries.
	ReplaceConversation bool
}

// HasData reports whether this update carries anything worth merging.
func (u Update) HasData() bool {
	return u.SessionID != "" || u.Model != "" || len(u.Entries) > 0 ||
		u.InputTokens > 0 || u.OutputTokens > 0 || u.CacheReadTokens > 0 ||
		u.CacheWriteTokens > 0 || u.EditDelta > 0 || u.BashDelta > 0 ||
		!u.LastActivityAt.IsZero() || u.WorkingDir != "" || u.MaxContextTokens > 0
}

// StatusStrategy names how a provider prefers the dashboard derive
// AgentState when its own transcript gives no explicit signal.
type StatusStrategy int

const (
	// StatusFromEntries treats a session as running when the most recent
	// ConversationEntry is an unfinished tool call, or, for a session with
	// no parsed stats yet, when its pane produced output recently.
	StatusFromEntries StatusStrategy = iota
	// StatusFromProcess treats a session as running when its pane produced
	// output recently, its transcript shows an unfinished tool call, or
	// procwatch reports CPU churn for its pane's process.
	StatusFromProcess
)

// Provider is one vendor's incremental transcript reader. Every method
// except UpdateFromLog is called from the single supervisor goroutine.
// UpdateFromLog runs on background goroutines: at most one at a time per
// session, but concurrently across sessions sharing one Provider value.
type Provider interface {
	// ID is the provider's lowercase identifier ("claude", "codex", "gemini").
	ID() string

	// CreateCommand returns the argv used to start a brand new agent
	// process of this kind inside a freshly created pane.
	CreateCommand(workingDir string) []string

	// ResumeCommand returns the argv used to re-attach to an existing
	// vendor session (e.g. "claude --resume <id>"), when the manifest
	// records a prior AgentSessionID for this pane. ok is false when the
	// provider has no resume concept (always start fresh).
	ResumeCommand(workingDir, agentSessionID string) (argv []string, ok bool)

	// Discover finds transcripts that look active for workingDir.
	Discover(workingDir string) ([]Handle, error)

	// ResolveLogPath re-derives a handle's transcript path when the
	// supervisor only has a working directory and no cached handle yet
	// (e.g. right after spawning a new pane, before the vendor has
	// created its log file). multiplexerName is the pane's tmux session
	// name, used by providers that disambiguate by tracing the pane's
	// pid through the OS's open-file table rather than by directory
	// scan. claimedPaths holds every transcript path already bound to a
	// session this tick (updated incrementally by the caller as each
	// session resolves), so two concurrent sessions under the same
	// workingDir never collide on the same file.
	ResolveLogPath(ctx context.Context, multiplexerName, workingDir string, claimedPaths map[string]bool) (string, bool)

	// UpdateFromLog incrementally parses handle.LogPath from offset and
	// returns everything new, plus the offset to resume from next time.
	UpdateFromLog(handle Handle, offset int64) (Update, int64, error)

	// PreferredStatusStrategy reports how liveness/activity should be
	// derived when this provider's own entries are ambiguous.
	PreferredStatusStrategy() StatusStrategy
}

// newestUnclaimed picks the most recently started handle whose LogPath is
// not already in claimedPaths -- the claimed-paths collision-avoidance scan
// shared by the providers that disambiguate by directory listing rather
// than by tracing a pid (Codex, Gemini).
func newestUnclaimed(handles []Handle, claimedPaths map[string]bool) (Handle, bool) {
	var best Handle
	found := false
	for _, h := range handles {
		if claimedPaths[h.LogPath] {
			continue
		}
		if !found || h.StartedAt.After(best.StartedAt) {
			best = h
			found = true
		}
	}
	return best, found
}

// Registry is the fixed set of providers the supervisor dispatches to by
// session.AgentKind.
type Registry struct {
	byKind map[session.AgentKind]Provider
}

// NewRegistry builds a registry from a fixed provider set.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byKind: make(map[session.AgentKind]Provider, len(providers))}
	for _, p := range providers {
		r.byKind[session.AgentKind(p.ID())] = p
	}
	return r
}

// For returns the provider registered for kind, if any.
func (r *Registry) For(kind session.AgentKind) (Provider, bool) {
	p, ok := r.byKind[kind]
	return p, ok
}

// All returns every registered provider, for discovery sweeps that are
// not scoped to a single known kind.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.byKind))
	for _, p := range r.byKind {
		out = append(out, p)
	}
	return out
}
