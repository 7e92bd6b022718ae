package supervisor

import (
	"time"

	"github.com/agent-dashboard/dashboard/internal/logs"
	"github.com/agent-dashboard/dashboard/internal/session"
)

// recentOutputWindow is how recently a pane must have produced output (or
// an output notification) to count as "recent" for liveness purposes (§4.3).
const recentOutputWindow = 6 * time.Second

// applyLiveness updates sess's ProcessState/AgentActivity in place for one
// session-refresh tick, following §4.3's debounce and strategy rules.
// Flapping (dead/alive/dead/alive) resets the counter to 0 on every alive
// observation -- the Open Question in SPEC_FULL's source material is
// resolved that way, matching the documented behaviour.
func (s *Supervisor) applyLiveness(userName string, sess *session.Session, dead, recentOutput, transcriptRunning, churning bool, hasStats bool, provider logs.Provider) {
	threshold := s.cfg.Supervisor.LivenessDebounceTicks
	stats := s.stats[userName]
	if stats.ActiveSubagents > 0 {
		threshold = s.cfg.Supervisor.LivenessDebounceTicksWithSubagents
	}

	if dead {
		s.deadTicks[userName]++
		if s.deadTicks[userName] < threshold {
			return // keep whatever status the session already has
		}
		sess.Process = session.Exited
		if sess.ExitInfo.Reason == "" {
			sess.ExitInfo = session.ExitInfo{Reason: "pane reported dead"}
		}
		return
	}

	s.deadTicks[userName] = 0
	if sess.Process != session.Exited {
		sess.Process = session.Alive
	}
	sess.LastActivityAt = time.Now()

	var running bool
	if provider != nil {
		switch provider.PreferredStatusStrategy() {
		case logs.StatusFromEntries:
			running = transcriptRunning || (!hasStats && recentOutput)
		case logs.StatusFromProcess:
			running = recentOutput || transcriptRunning || churning
		}
	} else {
		running = recentOutput || transcriptRunning
	}

	if running {
		sess.AgentActivity = session.AgentThinking
	} else {
		sess.AgentActivity = session.AgentIdle
	}
}

// isRecent reports whether t is within recentOutputWindow of now.
func isRecent(t, now time.Time) bool {
	return !t.IsZero() && now.Sub(t) < recentOutputWindow
}
