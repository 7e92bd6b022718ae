package logs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agent-dashboard/dashboard/internal/session"
)

// GeminiProvider tails Gemini CLI's chat files under
// ~/.gemini/tmp/<sha256(cwd)>/chats/*.json. Unlike Claude/Codex, Gemini
// rewrites the entire chat file on every turn rather than appending, so
// there is no byte offset to resume from; instead the "offset" this
// provider hands back is the count of turns already consumed, and each
// UpdateFromLog call re-reads and re-parses the whole file, emitting only
// the turns beyond that count.
type GeminiProvider struct{}

func NewGeminiProvider() *GeminiProvider { return &GeminiProvider{} }

func (p *GeminiProvider) ID() string { return "gemini" }

func (p *GeminiProvider) CreateCommand(workingDir string) []string {
	return []string{"gemini"}
}

func (p *GeminiProvider) ResumeCommand(workingDir, agentSessionID string) ([]string, bool) {
	return nil, false
}

func geminiBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gemini")
}

func geminiHash(workingDir string) string {
	sum := sha256.Sum256([]byte(workingDir))
	return hex.EncodeToString(sum[:])
}

func (p *GeminiProvider) Discover(workingDir string) ([]Handle, error) {
	chatsDir := filepath.Join(geminiBaseDir(), "tmp", geminiHash(workingDir), "chats")
	entries, err := os.ReadDir(chatsDir)
	if err != nil {
		return nil, nil
	}
	var out []Handle
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, infoErr := e.Info()
		if infoErr != nil {
			continue
		}
		out = append(out, Handle{
			SessionID:  e.Name(),
			LogPath:    filepath.Join(chatsDir, e.Name()),
			WorkingDir: workingDir,
			Provider:   p.ID(),
			StartedAt:  info.ModTime(),
		})
	}
	return out, nil
}

// ResolveLogPath scans the per-project chats directory and picks the
// newest file not already claimed by another session this tick, avoiding
// the collision two sessions opened under the same workingDir would
// otherwise hit. multiplexerName is unused: Gemini's chat files carry no
// pane-identifying information to trace a pid against.
func (p *GeminiProvider) ResolveLogPath(ctx context.Context, multiplexerName, workingDir string, claimedPaths map[string]bool) (string, bool) {
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

// PreferredStatusStrategy is StatusFromProcess: Gemini's whole-file
// rewrite makes "most recent entry kind" an unreliable activity signal,
// since a completed turn can look identical to an in-flight one until
// the next rewrite lands.
func (p *GeminiProvider) PreferredStatusStrategy() StatusStrategy { return StatusFromProcess }

type geminiChatFile struct {
	Turns []geminiTurn `json:"turns"`
}

type geminiTurn struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
	Usage *geminiUsage `json:"usageMetadata"`
}

type geminiPart struct {
	Text             string             `json:"text"`
	FunctionCall     *geminiFunctionRef `json:"functionCall"`
	FunctionResponse *geminiFunctionRef `json:"functionResponse"`
}

type geminiFunctionRef struct {
	Name string `json:"name"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

func (p *GeminiProvider) UpdateFromLog(handle Handle, offset int64) (Update, int64, error) {
	var upd Update
	upd.SessionID = handle.SessionID

	data, err := os.ReadFile(handle.LogPath)
	if err != nil {
		return upd, offset, fmt.Errorf("logs: gemini read %s: %w", handle.LogPath, err)
	}
	var file geminiChatFile
	if err := json.Unmarshal(data, &file); err != nil {
		return upd, offset, fmt.Errorf("logs: gemini parse %s: %w", handle.LogPath, err)
	}

	seen := int(offset)
	if seen > len(file.Turns) {
		// The file was replaced with a shorter history than what we'd
		// already consumed (a fresh chat started under the same hash).
		seen = 0
		upd.ReplaceConversation = true
	}

	for _, turn := range file.Turns[seen:] {
		if turn.Usage != nil {
			upd.InputTokens += turn.Usage.PromptTokenCount
			upd.OutputTokens += turn.Usage.CandidatesTokenCount
		}
		for _, part := range turn.Parts {
			switch {
			case part.Text != "" && turn.Role == "model":
				upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryAssistantText, Text: part.Text})
			case part.Text != "" && turn.Role == "user":
				upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryUserMessage, Text: part.Text})
			case part.FunctionCall != nil:
				upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryToolUse, ToolName: part.FunctionCall.Name})
			case part.FunctionResponse != nil:
				upd.Entries = append(upd.Entries, session.ConversationEntry{Kind: session.EntryToolResult, ToolName: part.FunctionResponse.Name})
			}
		}
	}
	upd.LastActivityAt = time.Now()
	return upd, int64(len(file.Turns)), nil
}
