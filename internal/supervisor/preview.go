package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/agent-dashboard/dashboard/internal/session"
)

// previewTask is one session chosen by planPreviews for this tick, with
// whether a live pane capture is allowed and whether scrollback was
// explicitly requested (§4.3 preview scheduling).
type previewTask struct {
	userName    string
	scrollback  bool
	liveAllowed bool
}

// planPreviews chooses which sessions get a preview update this tick,
// honoring the 3-tier planner and the MaxCapturesPerTick budget (§4.3):
// explicit UI requests first, then the dirty set under its own live-
// capture sub-budget, then a round-robin fill over every session so each
// one refreshes within ceil(N/budget) ticks of idleness.
func (s *Supervisor) planPreviews() []previewTask {
	budget := s.cfg.Preview.MaxCapturesPerTick
	names := s.orderedUserNames()
	chosen := make(map[string]bool, budget)
	var tasks []previewTask

	for _, name := range names {
		if len(tasks) >= budget {
			return tasks
		}
		if scrollback, ok := s.previewRequests[name]; ok {
			tasks = append(tasks, previewTask{userName: name, scrollback: scrollback, liveAllowed: true})
			chosen[name] = true
			delete(s.previewRequests, name)
		}
	}

	liveBudget := s.cfg.Preview.DirtySetLiveBudget
	if !s.controlModeActive {
		liveBudget = 1
	}
	liveUsed := 0
	for _, name := range names {
		if len(tasks) >= budget {
			return tasks
		}
		if chosen[name] || !s.dirtyPreview[name] {
			continue
		}
		allowLive := liveUsed < liveBudget
		if allowLive {
			liveUsed++
		}
		tasks = append(tasks, previewTask{userName: name, liveAllowed: allowLive})
		chosen[name] = true
		delete(s.dirtyPreview, name)
	}

	n := len(names)
	if n == 0 || len(tasks) >= budget {
		return tasks
	}
	cursor := s.roundRobinCursor % n
	examined := 0
	rrLiveUsed := 0
	for i := 0; i < n && len(tasks) < budget; i++ {
		examined++
		name := names[(cursor+i)%n]
		if chosen[name] {
			continue
		}
		allowLive := rrLiveUsed < s.cfg.Preview.RoundRobinFillBudget
		if allowLive {
			rrLiveUsed++
		}
		tasks = append(tasks, previewTask{userName: name, liveAllowed: allowLive})
		chosen[name] = true
	}
	s.roundRobinCursor = (cursor + examined) % n
	return tasks
}

// resolvePreviewContent runs the §4.3 fallback chain for one chosen
// session: live scrollback if requested, else the in-memory conversation
// if non-empty, else a live pane capture when the budget allows it, else
// the cached capture, else a placeholder.
func (s *Supervisor) resolvePreviewContent(ctx context.Context, t previewTask) string {
	sess, ok := s.sessions[t.userName]
	if !ok {
		return "[unable to capture pane]"
	}

	if t.scrollback {
		if out, err := s.control.CapturePaneScrollback(ctx, sess.MultiplexName); err == nil {
			s.previewCache[t.userName] = out
			return out
		}
	}

	if buf, ok := s.conversations[t.userName]; ok && buf.Len() > 0 {
		return renderConversation(buf)
	}

	if t.liveAllowed {
		if out, err := s.control.CapturePane(ctx, sess.MultiplexName); err == nil {
			s.previewCache[t.userName] = out
			return out
		}
	}

	if cached, ok := s.previewCache[t.userName]; ok {
		return cached
	}
	return "[unable to capture pane]"
}

// renderConversation renders a conversation buffer as a plain-text log,
// one line per entry, for display when no live pane capture is taken.
func renderConversation(buf *session.ConversationBuffer) string {
	var b strings.Builder
	for _, e := range buf.Entries() {
		switch e.Kind {
		case session.EntryUserMessage:
			fmt.Fprintf(&b, "user: %s\n", e.Text)
		case session.EntryAssistantText:
			fmt.Fprintf(&b, "assistant: %s\n", e.Text)
		case session.EntryToolUse:
			fmt.Fprintf(&b, "tool_use: %s %s\n", e.ToolName, e.Details)
		case session.EntryToolResult:
			fmt.Fprintf(&b, "tool_result: %v %s\n", e.Filenames, e.Summary)
		case session.EntryQueueOperation:
			fmt.Fprintf(&b, "queue: %s %s\n", e.QueueOp, e.TaskID)
		case session.EntryProgress:
			fmt.Fprintf(&b, "progress: %s %s\n", e.ProgressKind, e.Detail)
		case session.EntrySystemEvent:
			fmt.Fprintf(&b, "system: %s\n", e.Subtype)
		case session.EntryFileHistory:
			fmt.Fprintf(&b, "files: %v\n", e.Files)
		case session.EntryUnparsed:
			fmt.Fprintf(&b, "unparsed: %s\n", e.Reason)
		}
	}
	return b.String()
}
