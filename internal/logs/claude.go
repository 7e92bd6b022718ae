package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agent-dashboard/dashboard/internal/session"
)

// ClaudeProvider tails Claude Code's per-session JSONL transcripts under
// ~/.claude/projects/<encoded-cwd>/<sessionId>.jsonl.
type ClaudeProvider struct{}

func NewClaudeProvider() *ClaudeProvider { return &ClaudeProvider{} }

func (p *ClaudeProvider) ID() string { return "claude" }

func (p *ClaudeProvider) CreateCommand(workingDir string) []string {
	return []string{"claude"}
}

func (p *ClaudeProvider) ResumeCommand(workingDir, agentSessionID string) ([]string, bool) {
	if agentSessionID == "" {
		return nil, false
	}
	return []string{"claude", "--resume", agentSessionID}, true
}

func (p *ClaudeProvider) Discover(workingDir string) ([]Handle, error) {
	dir, err := claudeProjectDir(workingDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Handle
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Handle{
			SessionID:  strings.TrimSuffix(e.Name(), ".jsonl"),
			LogPath:    filepath.Join(dir, e.Name()),
			WorkingDir: workingDir,
			Provider:   p.ID(),
			StartedAt:  info.ModTime(),
		})
	}
	return out, nil
}

// ResolveLogPath traces multiplexerName's pane pid through the OS's open
// file table to the session UUID Claude Code is currently holding open,
// rather than globbing the project directory and guessing by mtime --
// two sessions started back to back under the same workingDir would
// otherwise both resolve to whichever file happened to be newest.
func (p *ClaudeProvider) ResolveLogPath(ctx context.Context, multiplexerName, workingDir string, claimedPaths map[string]bool) (string, bool) {
	uuid, ok := claudeResolveSessionUUID(ctx, multiplexerName)
	if !ok {
		return "", false
	}
	dir, err := claudeProjectDir(workingDir)
	if err != nil {
		return "", false
	}
	path := filepath.Join(dir, uuid+".jsonl")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	if claimedPaths[path] {
		return "", false
	}
	return path, true
}

// claudePanePID returns the pid tmux reports for multiplexerName's pane.
func claudePanePID(ctx context.Context, multiplexerName string) (string, bool) {
	out, err := exec.CommandContext(ctx, "tmux", "list-panes", "-t", multiplexerName, "-F", "#{pane_pid}").Output()
	if err != nil {
		return "", false
	}
	pid := strings.TrimSpace(string(out))
	if pid == "" {
		return "", false
	}
	return pid, true
}

// claudeResolveSessionUUID walks lsof's view of pid's open files looking
// for a path under .claude/tasks/<uuid>, the directory Claude Code holds a
// handle open in for the lifetime of a session.
func claudeResolveSessionUUID(ctx context.Context, multiplexerName string) (string, bool) {
	pid, ok := claudePanePID(ctx, multiplexerName)
	if !ok {
		return "", false
	}
	out, err := exec.CommandContext(ctx, "lsof", "-p", pid).Output()
	if err != nil {
		return "", false
	}
	const marker = ".claude/tasks/"
	for _, line := range strings.Split(string(out), "\n") {
		idx := strings.Index(line, marker)
		if idx < 0 {
			continue
		}
		rest := line[idx+len(marker):]
		if len(rest) < 36 {
			continue
		}
		candidate := rest[:36]
		if isClaudeSessionUUID(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// isClaudeSessionUUID reports whether s has the dash positions and hex
// digits of a canonical UUID, without pulling in a UUID parsing package
// for one throwaway check.
func isClaudeSessionUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		if !isHexDigit(c) {
			return false
		}
	}
	return true
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func (p *ClaudeProvider) PreferredStatusStrategy() StatusStrategy { return StatusFromEntries }

func claudeProjectDir(workingDir string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	encoded := strings.ReplaceAll(filepath.Clean(workingDir), "/", "-")
	return filepath.Join(home, ".claude", "projects", encoded), nil
}

// claudeRecord is the tagged envelope of one JSONL line: the fields the
// dashboard actually consumes across every line type.
type claudeRecord struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
	Subtype   string          `json:"subtype"`
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Usage   *claudeUsage    `json:"usage"`
	Content json.RawMessage `json:"content"`
}

type claudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type claudeContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

func (p *ClaudeProvider) UpdateFromLog(handle Handle, offset int64) (Update, int64, error) {
	var upd Update
	upd.SessionID = handle.SessionID

	newOffset, truncated, err := TailLines(handle.LogPath, offset, func(line []byte) {
		var rec claudeRecord
		if jsonErr := json.Unmarshal(line, &rec); jsonErr != nil {
			upd.Entries = append(upd.Entries, session.NewUnparsedEntry("malformed json", string(line)))
			return
		}
		if rec.SessionID != "" {
			upd.SessionID = rec.SessionID
		}
		if rec.Timestamp != "" {
			if t, tErr := time.Parse(time.RFC3339Nano, rec.Timestamp); tErr == nil {
				upd.LastActivityAt = t
			}
		}
		switch rec.Type {
		case "assistant":
			p.consumeAssistant(rec.Message, &upd)
		case "user":
			upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryUserMessage})
		case "system":
			if rec.Subtype != "" {
				upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntrySystemEvent, Subtype: rec.Subtype})
			}
		}
	})
	if err != nil {
		return upd, offset, fmt.Errorf("logs: claude tail %s: %w", handle.LogPath, err)
	}
	upd.ReplaceConversation = truncated
	return upd, newOffset, nil
}

func (p *ClaudeProvider) consumeAssistant(raw json.RawMessage, upd *Update) {
	if raw == nil {
		return
	}
	var msg claudeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Model != "" {
		upd.Model = msg.Model
	}
	if msg.Usage != nil {
		upd.InputTokens += msg.Usage.InputTokens
		upd.OutputTokens += msg.Usage.OutputTokens
		upd.CacheReadTokens += msg.Usage.CacheReadInputTokens
		upd.CacheWriteTokens += msg.Usage.CacheCreationInputTokens
	}
	var blocks []claudeContentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return
	}
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryAssistantText, Text: b.Text})
			}
		case "tool_use":
			upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryToolUse, ToolName: b.Name})
			switch b.Name {
			case "Edit", "Write", "MultiEdit":
				upd.EditDelta++
			case "Bash":
				upd.BashDelta++
			}
		case "tool_result":
			upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryToolResult, ToolName: b.ToolUseID, Details: string(b.Content)})
		}
	}
}
