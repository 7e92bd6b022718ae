package supervisor

import (
	"time"

	"github.com/agent-dashboard/dashboard/internal/session"
	"github.com/agent-dashboard/dashboard/internal/uiproto"
)

// messageRefresh runs the 50ms-cadence tick (§4.3 event loop input
// source 4): every RefreshEveryNTicks cycles it dispatches a background
// log-parse for each session with a resolved handle whose transcript has
// actually changed since the last cycle (per the optional fsnotify
// watcher; always dirty when none is running), at most one in-flight per
// session (logPipeline.refreshSession). Actual results arrive later on
// pipeline.resultCh and are applied by applyPipelineResult from the main
// select loop, never from here.
func (s *Supervisor) messageRefresh() {
	if !s.pipeline.due() {
		return
	}
	for userName, handle := range s.logHandles {
		if s.logWatcher != nil && !s.logWatcher.Dirty(handle.LogPath) {
			continue
		}
		provider, ok := s.registry.For(s.sessions[userName].Agent)
		if !ok {
			continue
		}
		offset := s.stats[userName].ReadOffset
		if buf, ok := s.conversations[userName]; ok {
			offset = buf.Offset
		}
		s.pipeline.refreshSession(provider, handle, offset, userName)
	}
}

// applyPipelineResult merges one completed background log-parse into
// session state (§4.2 Merge semantics): rotation/truncation resets the
// buffer and stats first, new entries extend the bounded conversation
// buffer, counters accumulate, and global stats are recomputed from the
// merged per-session totals.
func (s *Supervisor) applyPipelineResult(res pipelineResult) {
	delete(s.pipeline.pending, res.userName)
	if res.err != nil {
		s.statusMsg = "log parse: " + res.err.Error()
		return
	}
	if !res.update.HasData() && res.newOffset == 0 {
		return
	}

	sess, ok := s.sessions[res.userName]
	if !ok {
		return
	}

	buf, ok := s.conversations[res.userName]
	if !ok {
		buf = &session.ConversationBuffer{}
		s.conversations[res.userName] = buf
	}
	if res.update.ReplaceConversation {
		buf.Reset()
		delete(s.stats, res.userName)
		delete(s.lastMessage, res.userName)
	}
	buf.Extend(res.update.Entries)
	buf.Offset = res.newOffset

	stats := s.stats[res.userName]
	stats.InputTokens += res.update.InputTokens
	stats.OutputTokens += res.update.OutputTokens
	stats.CacheReadTokens += res.update.CacheReadTokens
	stats.CacheWriteTokens += res.update.CacheWriteTokens
	stats.EditCount += res.update.EditDelta
	stats.BashCount += res.update.BashDelta
	stats.ReadOffset = res.newOffset
	for _, e := range res.update.Entries {
		if e.Kind == session.EntryQueueOperation {
			switch e.QueueOp {
			case "subagent_started":
				stats.IncrementActiveSubagents(1)
			case "subagent_finished":
				stats.IncrementActiveSubagents(-1)
			}
		}
	}
	s.stats[res.userName] = stats
	s.updateTaskTimer(res.userName, stats)

	if res.update.WorkingDir != "" {
		sess.WorkingDir = res.update.WorkingDir
	}
	if !res.update.LastActivityAt.IsZero() {
		sess.LastActivityAt = res.update.LastActivityAt
	}
	if len(res.update.Entries) > 0 {
		last := res.update.Entries[len(res.update.Entries)-1]
		if text := lastMessageText(last); text != "" {
			s.lastMessage[res.userName] = text
		}
	}

	s.dirtyPreview[res.userName] = true
	s.recomputeGlobalStats()
}

func lastMessageText(e session.ConversationEntry) string {
	switch e.Kind {
	case session.EntryUserMessage, session.EntryAssistantText:
		return e.Text
	default:
		return ""
	}
}

// recomputeGlobalStats rebuilds the per-day, per-agent cost aggregate
// from the current in-memory per-session stats, approximating §4.2's
// "recomputed from scratch from every visible transcript" by summing
// the already-parsed cumulative per-session counters rather than
// re-reading every transcript file on each tick -- the per-session
// counters already reflect the whole file (they are cumulative, not a
// windowed delta), so the aggregate stays exact as long as no session
// is pruned while its transcript is still visible on disk.
func (s *Supervisor) recomputeGlobalStats() {
	global := session.NewGlobalStats(s.global.Day)
	for userName, stats := range s.stats {
		sess, ok := s.sessions[userName]
		if !ok {
			continue
		}
		rate := s.cfg.RateFor(string(sess.Agent))
		cost := global.ByAgent[sess.Agent]
		cost.InputTokens += int64(stats.InputTokens)
		cost.OutputTokens += int64(stats.OutputTokens)
		cost.CacheReadTokens += int64(stats.CacheReadTokens)
		cost.CacheWriteTokens += int64(stats.CacheWriteTokens)
		cost.CostUSD += rate.CostUSD(int64(stats.InputTokens), int64(stats.OutputTokens), int64(stats.CacheReadTokens), int64(stats.CacheWriteTokens))
		global.ByAgent[sess.Agent] = cost
	}
	s.global = global
}

// updateTaskTimer tracks per-session task start/last-active times (§4.3
// State owned: "task-timer map"), independent of the raw stats
// timestamps so a session's displayed elapsed time keeps ticking
// between log-parse cycles rather than jumping only when a new entry
// lands.
func (s *Supervisor) updateTaskTimer(userName string, stats session.SessionStats) {
	active := !stats.TaskStartedAt.IsZero() && stats.TaskStartedAt.After(stats.TaskEndedAt)
	if !active {
		delete(s.timers, userName)
		return
	}
	timer, ok := s.timers[userName]
	if !ok || !timer.startedAt.Equal(stats.TaskStartedAt) {
		timer = &taskTimer{startedAt: stats.TaskStartedAt}
		s.timers[userName] = timer
	}
	timer.lastActiveAt = time.Now()
}

func newPreviewUpdate(sess *session.Session, content string, scrollback bool) uiproto.PreviewUpdate {
	if sess == nil {
		return uiproto.PreviewUpdate{Data: content, HasScrollback: scrollback}
	}
	return uiproto.PreviewUpdate{MultiplexName: sess.MultiplexName, Data: content, HasScrollback: scrollback}
}
