package supervisor

import (
	"context"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/agent-dashboard/dashboard/internal/diffstat"
	"github.com/agent-dashboard/dashboard/internal/logs"
	"github.com/agent-dashboard/dashboard/internal/session"
	"github.com/agent-dashboard/dashboard/internal/tmuxctl"
)

// sessionRefresh runs the 500ms-cadence tick (§4.3 event loop input
// source 3): a batched list-panes round trip drives liveness for every
// session, log handles are (re)discovered for sessions that don't have
// one yet, previews are planned and dispatched, the diff file list is
// recomputed, and a new snapshot is published.
func (s *Supervisor) sessionRefresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	panes, err := s.control.ListPanes(ctx)
	if err != nil {
		s.statusMsg = "list-panes: " + err.Error()
		log.Printf("supervisor: list-panes: %v", err)
	} else {
		s.rebuildPaneTable(panes)
	}

	byMultiplex := make(map[string]tmuxctl.PaneStatus, len(panes))
	for _, p := range panes {
		byMultiplex[p.SessionName] = p
	}

	claimedPaths := make(map[string]bool, len(s.logHandles))
	for _, h := range s.logHandles {
		claimedPaths[h.LogPath] = true
	}
	s.pipeline.tickCooldowns()

	now := time.Now()
	for userName, sess := range s.sessions {
		pane, found := byMultiplex[sess.MultiplexName]
		dead := !found || pane.Dead

		stats := s.stats[userName]
		hasStats := stats.InputTokens > 0 || stats.OutputTokens > 0
		transcriptRunning := !stats.TaskStartedAt.IsZero() && stats.TaskStartedAt.After(stats.TaskEndedAt)

		recentOutput := isRecent(s.recency[userName], now)
		if found {
			recentOutput = recentOutput || isRecent(pane.LastActivity, now)
		}

		var churning bool
		if found && !dead && pane.PID != 0 {
			churning = s.procs.Sample(pane.PID).IsChurning()
		} else if pane.PID != 0 {
			s.procs.Forget(pane.PID)
		}

		provider, _ := s.registry.For(sess.Agent)
		s.applyLiveness(userName, sess, dead, recentOutput, transcriptRunning, churning, hasStats, provider)

		if timer, ok := s.timers[userName]; ok {
			elapsed := timer.lastActiveAt.Sub(timer.startedAt)
			sess.TaskElapsed = &elapsed
		} else {
			sess.TaskElapsed = nil
		}

		s.discoverLogHandle(ctx, userName, sess, provider, claimedPaths)
	}

	s.refreshDiffs(ctx)

	for _, t := range s.planPreviews() {
		content := s.resolvePreviewContent(ctx, t)
		s.publisher.PublishPreview(newPreviewUpdate(s.sessions[t.userName], content, t.scrollback))
	}

	s.pruneAll()
	s.publish()
}

func (s *Supervisor) rebuildPaneTable(panes []tmuxctl.PaneStatus) {
	infos := make([]tmuxctl.PaneInfo, 0, len(panes))
	for _, p := range panes {
		infos = append(infos, tmuxctl.PaneInfo{PaneID: p.PaneID, SessionName: p.SessionName})
	}
	s.panes.Replace(infos)
}

// discoverLogHandle re-resolves userName's transcript path on every
// session-refresh tick, following §4.2's rotation semantics: a provider
// that now resolves to a different path than the one cached invalidates
// the offset and buffered conversation. claimedPaths is shared across the
// whole tick's session loop so two sessions never resolve to the same
// file; it is updated in place as each session claims a path. A session
// that has never resolved a handle and fails again enters a cooldown
// (§4.2 "Retry/cooldown") so its resolution strategy -- lsof for Claude,
// a directory walk for Codex/Gemini -- isn't re-run every 500ms.
func (s *Supervisor) discoverLogHandle(ctx context.Context, userName string, sess *session.Session, provider logs.Provider, claimedPaths map[string]bool) {
	if provider == nil {
		return
	}
	cached, hasHandle := s.logHandles[userName]

	if !hasHandle && s.pipeline.coolingDown(userName) {
		return
	}

	path, ok := provider.ResolveLogPath(ctx, sess.MultiplexName, sess.WorkingDir, claimedPaths)
	if !ok {
		if hasHandle {
			delete(s.logHandles, userName)
			delete(s.stats, userName)
		} else {
			// +1: sessionRefresh ticks cooldowns down before probing, so
			// this leaves exactly RetryCooldownTicks later ticks unprobed.
			s.pipeline.startCooldown(userName, s.cfg.Logs.RetryCooldownTicks+1)
		}
		return
	}
	s.pipeline.clearCooldown(userName)
	claimedPaths[path] = true

	if hasHandle && cached.LogPath == path {
		return
	}

	handle := logs.Handle{SessionID: userName, LogPath: path, WorkingDir: sess.WorkingDir, Provider: provider.ID(), StartedAt: time.Now()}
	s.logHandles[userName] = handle
	if s.logWatcher != nil {
		s.logWatcher.Watch(path)
	}
	if buf, ok := s.conversations[userName]; ok {
		buf.Reset()
	} else {
		s.conversations[userName] = &session.ConversationBuffer{}
	}
	delete(s.stats, userName)
}

// refreshDiffs recomputes the dashboard's single working-tree diff
// summary (§5): git diff --numstat against HEAD plus untracked paths,
// truncated to the 200 most significant files by change volume. Diffs
// describe the one repository the dashboard is rooted in, not any
// individual session, so this runs once per tick rather than per
// session.
func (s *Supervisor) refreshDiffs(ctx context.Context) {
	if s.workDir == "" {
		return
	}
	numstat, err := runGit(ctx, s.workDir, "diff", "--numstat", "HEAD")
	if err != nil {
		log.Printf("supervisor: git diff --numstat: %v", err)
		return
	}
	files := diffstat.Parse(numstat)

	untrackedOut, err := runGit(ctx, s.workDir, "ls-files", "--others", "--exclude-standard")
	if err == nil {
		var untracked []string
		for _, line := range strings.Split(untrackedOut, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				untracked = append(untracked, line)
			}
		}
		files = diffstat.ParseUntracked(files, untracked)
	}
	s.diffFiles = diffstat.Truncate(files)
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	return string(out), err
}
