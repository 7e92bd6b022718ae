package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agent-dashboard/dashboard/internal/session"
)

// CodexProvider tails OpenAI Codex CLI's rollout JSONL files under
// $CODEX_HOME/sessions/YYYY/MM/DD/rollout-*.jsonl (default
// CODEX_HOME=~/.codex).
type CodexProvider struct{}

func NewCodexProvider() *CodexProvider { return &CodexProvider{} }

func (p *CodexProvider) ID() string { return "codex" }

func (p *CodexProvider) CreateCommand(workingDir string) []string {
	return []string{"codex"}
}

func (p *CodexProvider) ResumeCommand(workingDir, agentSessionID string) ([]string, bool) {
	if agentSessionID == "" {
		return nil, false
	}
	return []string{"codex", "resume", agentSessionID}, true
}

func codexHomeDir() string {
	if env := os.Getenv("CODEX_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codex")
}

// Discover walks the sessions tree and returns every rollout file in
// directory-walk (lexical path) order. Codex does not namespace rollout files by project directory the
// way Claude does, so ResolveLogPath is left to pick the newest file not
// already claimed by another session this tick.
func (p *CodexProvider) Discover(workingDir string) ([]Handle, error) {
	base := codexHomeDir()
	sessionsDir := filepath.Join(base, "sessions")
	if _, err := os.Stat(sessionsDir); err != nil {
		return nil, nil
	}
	var out []Handle
	err := filepath.WalkDir(sessionsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasPrefix(d.Name(), "rollout-") || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		out = append(out, Handle{
			SessionID:  codexSessionIDFromFilename(d.Name()),
			LogPath:    path,
			WorkingDir: workingDir,
			Provider:   p.ID(),
			StartedAt:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveLogPath reads the rollout tree directly and picks the newest file
// not already claimed by another session this tick. multiplexerName is
// unused: Codex's rollout files carry no pane-identifying information to
// trace a pid against.
func (p *CodexProvider) ResolveLogPath(ctx context.Context, multiplexerName, workingDir string, claimedPaths map[string]bool) (string, bool) {
	handles, err := p.Discover(workingDir)
	if err != nil || len(handles) == 0 {
		return "", false
	}
	best, ok := newestUnclaimed(handles, claimedPaths)
	if !ok {
		return "", false
	}
	return best.LogPath, true
}

func (p *CodexProvider) PreferredStatusStrategy() StatusStrategy { return StatusFromEntries }

func codexSessionIDFromFilename(name string) string {
	name = strings.TrimPrefix(name, "rollout-")
	name = strings.TrimSuffix(name, ".jsonl")
	return name
}

// codexRecord covers the subset of Codex's rollout line shapes the
// dashboard cares about: a tagged "type" with the payload nested under
// "payload" (Codex's own envelope convention, distinct from Claude's
// flat "message" field).
type codexRecord struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type codexPayload struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name,omitempty"`
	Command []string        `json:"command,omitempty"`
	Usage   *codexUsage     `json:"usage,omitempty"`
	Model   string          `json:"model,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

type codexUsage struct {
	InputTokens       int `json:"input_tokens"`
	OutputTokens      int `json:"output_tokens"`
	CachedInputTokens int `json:"cached_input_tokens"`
}

func (p *CodexProvider) UpdateFromLog(handle Handle, offset int64) (Update, int64, error) {
	var upd Update
	upd.SessionID = handle.SessionID

	newOffset, truncated, err := TailLines(handle.LogPath, offset, func(line []byte) {
		var rec codexRecord
		if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil {
			upd.Entries = append(upd.Entries, session.NewUnparsedEntry("malformed json", string(line)))
			return
		}
		if rec.Timestamp != "" {
			if t, tErr := time.Parse(time.RFC3339Nano, rec.Timestamp); tErr == nil {
				upd.LastActivityAt = t
			}
		}
		var pl codexPayload
		if len(rec.Payload) > 0 {
			_ = json.Unmarshal(rec.Payload, &pl)
		}
		switch rec.Type {
		case "agent_message", "response_item":
			if pl.Model != "" {
				upd.Model = pl.Model
			}
			if pl.Usage != nil {
				upd.InputTokens += pl.Usage.InputTokens
				upd.OutputTokens += pl.Usage.OutputTokens
				upd.CacheReadTokens += pl.Usage.CachedInputTokens
			}
			if pl.Text != "" {
				upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryAssistantText, Text: pl.Text})
			}
		case "function_call", "local_shell_call":
			name := pl.Name
			if len(pl.Command) > 0 {
				name = strings.Join(pl.Command, " ")
				upd.BashDelta++
			}
			upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryToolUse, ToolName: name})
		case "user_message":
			upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryUserMessage, Text: pl.Text})
		}
	})
	if err != nil {
		return upd, offset, fmt.Errorf("logs: codex tail %s: %w", handle.LogPath, err)
	}
	upd.ReplaceConversation = truncated
	return upd, newOffset, nil
}
