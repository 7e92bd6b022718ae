package supervisor

import (
	"strings"
	"testing"

	"github.com/agent-dashboard/dashboard/internal/config"
	"github.com/agent-dashboard/dashboard/internal/session"
)

func newTestSupervisorForPreview(names ...string) *Supervisor {
	s := &Supervisor{
		cfg: &config.Config{Preview: config.PreviewConfig{
			MaxCapturesPerTick:   8,
			DirtySetLiveBudget:   2,
			RoundRobinFillBudget: 1,
		}},
		controlModeActive: true,
		sessions:          make(map[string]*session.Session),
		previewCache:      make(map[string]string),
		dirtyPreview:      make(map[string]bool),
		previewRequests:   make(map[string]bool),
	}
	for _, n := range names {
		s.sessions[n] = &session.Session{UserName: n, Process: session.Alive}
	}
	return s
}

func TestPlanPreviewsExplicitRequestsFirst(t *testing.T) {
	s := newTestSupervisorForPreview("alice", "bob", "carol")
	s.cfg.Preview.MaxCapturesPerTick = 1
	s.previewRequests["bob"] = true

	tasks := s.planPreviews()
	if len(tasks) != 1 || tasks[0].userName != "bob" {
		t.Fatalf("expected explicit request for bob to win under a 1-task budget, got %+v", tasks)
	}
	if _, stillQueued := s.previewRequests["bob"]; stillQueued {
		t.Fatalf("bob's explicit request should be consumed")
	}
}

func TestPlanPreviewsDirtySetRespectsLiveBudget(t *testing.T) {
	s := newTestSupervisorForPreview("alice", "bob", "carol")
	s.cfg.Preview.MaxCapturesPerTick = 10
	s.cfg.Preview.DirtySetLiveBudget = 1
	s.dirtyPreview["alice"] = true
	s.dirtyPreview["bob"] = true

	tasks := s.planPreviews()
	liveCount := 0
	for _, tk := range tasks {
		if tk.liveAllowed {
			liveCount++
		}
	}
	if liveCount > 1+s.cfg.Preview.RoundRobinFillBudget {
		t.Fatalf("dirty-set live captures exceeded budget: %+v", tasks)
	}
}

func TestPlanPreviewsRoundRobinAdvancesCursor(t *testing.T) {
	s := newTestSupervisorForPreview("alice", "bob", "carol")
	s.cfg.Preview.MaxCapturesPerTick = 1

	first := s.planPreviews()
	second := s.planPreviews()
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected exactly one task per tick under a 1-task budget")
	}
	if first[0].userName == second[0].userName {
		t.Fatalf("round-robin fill should not repeat the same session back to back: %q == %q", first[0].userName, second[0].userName)
	}
}

func TestPlanPreviewsFallbackLiveBudgetIsOne(t *testing.T) {
	s := newTestSupervisorForPreview("alice", "bob")
	s.controlModeActive = false
	s.cfg.Preview.MaxCapturesPerTick = 10
	s.cfg.Preview.DirtySetLiveBudget = 2
	s.dirtyPreview["alice"] = true
	s.dirtyPreview["bob"] = true

	tasks := s.planPreviews()
	liveCount := 0
	for _, tk := range tasks {
		if tk.liveAllowed {
			liveCount++
		}
	}
	if liveCount != 1 {
		t.Fatalf("subprocess fallback should cap dirty-set live captures at 1, got %d", liveCount)
	}
}

func TestRenderConversationOneLinePerEntry(t *testing.T) {
	buf := &session.ConversationBuffer{}
	buf.Extend([]session.ConversationEntry{
		{Kind: session.EntryUserMessage, Text: "hello"},
		{Kind: session.EntryToolUse, ToolName: "bash", Details: "ls -la"},
		{Kind: session.EntryUnparsed, Reason: "malformed json"},
	})
	out := renderConversation(buf)
	if out == "" {
		t.Fatalf("expected non-empty rendered conversation")
	}
	wantSubstrings := []string{"user: hello", "tool_use: bash ls -la", "unparsed: malformed json"}
	for _, want := range wantSubstrings {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q:\n%s", want, out)
		}
	}
}
