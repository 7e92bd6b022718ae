// Package supervisor implements the backend supervisor actor (C3, §4.3):
// the single writer of authoritative session state. It owns the session
// list and every per-session bookkeeping map, drives the four-source
// event loop (UI commands, control-mode notifications, session-refresh
// tick, message-refresh tick), derives liveness, schedules preview
// captures under budget, and publishes an immutable StateSnapshot on
// every refresh. Grounded on the teacher's Monitor.poll() control flow
// (tick-driven, single-writer, atomic commit-then-notify) and
// ws.Broadcaster's queue/flush idiom, generalized from "push websocket
// frames" to "publish a StateSnapshot on a latest-value channel."
package supervisor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/agent-dashboard/dashboard/internal/config"
	"github.com/agent-dashboard/dashboard/internal/logs"
	"github.com/agent-dashboard/dashboard/internal/manifest"
	"github.com/agent-dashboard/dashboard/internal/procwatch"
	"github.com/agent-dashboard/dashboard/internal/projectid"
	"github.com/agent-dashboard/dashboard/internal/session"
	"github.com/agent-dashboard/dashboard/internal/tmuxctl"
	"github.com/agent-dashboard/dashboard/internal/uiproto"
)

// Publisher is the snapshot/preview sink the supervisor publishes to.
// *uiproto.Broadcaster satisfies it; tests use a fake.
type Publisher interface {
	Publish(*session.StateSnapshot)
	PublishPreview(uiproto.PreviewUpdate)
}

// Supervisor is the single writer of all session state (§4.3 "State
// owned"). Every field below is mutated only from the goroutine running
// Run; no other goroutine touches them.
type Supervisor struct {
	cfg                *config.Config
	control            tmuxctl.Control
	controlModeActive  bool
	registry           *logs.Registry
	manifestStore      *manifest.Store
	procs              *procwatch.Watcher
	publisher          Publisher
	projectID          string
	workDir            string

	cmdCh    chan Command
	notifyCh <-chan tmuxctl.Line

	sessions        map[string]*session.Session
	recency         map[string]time.Time
	timers          map[string]*taskTimer
	deadTicks       map[string]int
	lastMessage     map[string]string
	stats           map[string]session.SessionStats
	conversations   map[string]*session.ConversationBuffer
	previewCache    map[string]string
	dirtyPreview    map[string]bool
	previewRequests map[string]bool
	logHandles      map[string]logs.Handle
	agentSessionIDs map[string]string

	roundRobinCursor int
	diffFiles        []session.DiffFile
	global           session.GlobalStats
	statusMsg        string

	panes      *tmuxctl.PaneTable
	pipeline   *logPipeline
	logWatcher *logs.Watcher
}

// New builds a Supervisor. control may be a *tmuxctl.Client (persistent
// control mode) or a *tmuxctl.SubprocessClient (fallback); controlModeActive
// tells the preview planner which it got, since the two differ in
// notification availability and live-capture budget (§4.1 Failure semantics).
func New(cfg *config.Config, control tmuxctl.Control, controlModeActive bool, registry *logs.Registry, manifestStore *manifest.Store, procs *procwatch.Watcher, publisher Publisher, projectID, workDir string) *Supervisor {
	return &Supervisor{
		cfg:               cfg,
		control:           control,
		controlModeActive: controlModeActive,
		registry:          registry,
		manifestStore:     manifestStore,
		procs:             procs,
		publisher:         publisher,
		projectID:         projectID,
		workDir:           workDir,
		cmdCh:             make(chan Command, 32),
		sessions:          make(map[string]*session.Session),
		recency:           make(map[string]time.Time),
		timers:            make(map[string]*taskTimer),
		deadTicks:         make(map[string]int),
		lastMessage:       make(map[string]string),
		stats:             make(map[string]session.SessionStats),
		conversations:     make(map[string]*session.ConversationBuffer),
		previewCache:      make(map[string]string),
		dirtyPreview:      make(map[string]bool),
		previewRequests:   make(map[string]bool),
		logHandles:        make(map[string]logs.Handle),
		agentSessionIDs:   make(map[string]string),
		panes:             tmuxctl.NewPaneTable(),
		pipeline:          newLogPipeline(cfg.Logs),
		global:            session.NewGlobalStats(time.Now().UTC().Format("2006-01-02")),
		logWatcher:        newOptionalLogWatcher(),
	}
}

// newOptionalLogWatcher starts the fsnotify fast-path used to skip
// polling unchanged transcripts. A platform where fsnotify can't start
// (e.g. inotify instance limit reached) degrades to nil, which every
// caller treats as "everything always looks dirty" -- same behavior as
// before this existed, just without the skip.
func newOptionalLogWatcher() *logs.Watcher {
	w, err := logs.NewWatcher()
	if err != nil {
		log.Printf("supervisor: log watcher unavailable, polling every tick: %v", err)
		return nil
	}
	return w
}

// Commands returns the bounded channel UI intents are sent on (§4.3 event
// loop input source 1). Overflow is the caller's responsibility to avoid
// by using Reply and not sending faster than the supervisor can drain.
func (s *Supervisor) Commands() chan<- Command { return s.cmdCh }

// Run drives the event loop until ctx is cancelled or a Quit command
// arrives. It blocks the calling goroutine.
func (s *Supervisor) Run(ctx context.Context) error {
	notifyCh, cancelNotify := s.control.Subscribe()
	s.notifyCh = notifyCh
	defer cancelNotify()
	if s.logWatcher != nil {
		defer s.logWatcher.Close()
	}

	s.revive(ctx)
	s.sessionRefresh(ctx)

	sessionTicker := time.NewTicker(s.cfg.Supervisor.SessionRefreshInterval)
	defer sessionTicker.Stop()
	messageTicker := time.NewTicker(s.cfg.Supervisor.MessageRefreshInterval)
	defer messageTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.pipeline.wait()
			return ctx.Err()

		case cmd := <-s.cmdCh:
			if cmd.Kind == CmdQuit {
				if cmd.Reply != nil {
					cmd.Reply <- nil
				}
				s.pipeline.wait()
				return nil
			}
			s.handleCommand(ctx, cmd)

		case line := <-s.notifyCh:
			s.handleNotification(line)

		case <-sessionTicker.C:
			s.sessionRefresh(ctx)

		case <-messageTicker.C:
			s.messageRefresh()

		case res := <-s.pipeline.resultCh:
			s.applyPipelineResult(res)
		}
	}
}

// handleCommand applies one UI-originated mutating intent atomically
// (§4.3 event loop input source 1).
func (s *Supervisor) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdCreate:
		err := s.createSession(ctx, cmd.UserName, cmd.Agent, cmd.WorkingDir)
		s.reply(cmd, err)
	case CmdDelete:
		err := s.deleteSession(ctx, cmd.UserName)
		s.reply(cmd, err)
	case CmdSendCompose, CmdSendLiteral:
		sess, ok := s.sessions[cmd.UserName]
		var err error
		if !ok {
			err = fmt.Errorf("supervisor: no such session %q", cmd.UserName)
		} else {
			err = s.control.SendLiteral(ctx, sess.MultiplexName, cmd.Text)
		}
		s.reply(cmd, err)
	case CmdSendKeys:
		sess, ok := s.sessions[cmd.UserName]
		var err error
		if !ok {
			err = fmt.Errorf("supervisor: no such session %q", cmd.UserName)
		} else {
			err = s.control.SendKey(ctx, sess.MultiplexName, cmd.Key)
		}
		s.reply(cmd, err)
	case CmdSendInterrupt:
		sess, ok := s.sessions[cmd.UserName]
		var err error
		if !ok {
			err = fmt.Errorf("supervisor: no such session %q", cmd.UserName)
		} else {
			err = s.control.SendKey(ctx, sess.MultiplexName, "C-c")
		}
		s.reply(cmd, err)
	case CmdRequestPreview:
		s.previewRequests[cmd.UserName] = cmd.Scrollback
		s.reply(cmd, nil)
	case CmdListSessions:
		if cmd.Snapshot != nil {
			cmd.Snapshot <- s.buildSnapshot()
		}
		s.reply(cmd, nil)
	}
	s.publish()
}

func (s *Supervisor) reply(cmd Command, err error) {
	if err != nil {
		s.statusMsg = err.Error()
	}
	if cmd.Reply != nil {
		cmd.Reply <- err
	}
}

func (s *Supervisor) createSession(ctx context.Context, userName, agentStr, workingDir string) error {
	if _, exists := s.sessions[userName]; exists {
		return fmt.Errorf("supervisor: session %q already exists", userName)
	}
	agent := session.AgentKind(agentStr)
	provider, ok := s.registry.For(agent)
	if !ok {
		return fmt.Errorf("supervisor: unknown agent kind %q", agentStr)
	}
	multiplexName := projectid.MultiplexName(s.projectID, userName)
	argv := provider.CreateCommand(workingDir)
	if err := s.control.NewSession(ctx, multiplexName, workingDir, strings.Join(argv, " ")); err != nil {
		return fmt.Errorf("supervisor: create session: %w", err)
	}
	s.sessions[userName] = &session.Session{
		UserName:       userName,
		MultiplexName:  multiplexName,
		Agent:          agent,
		Process:        session.Booting,
		AgentActivity:  session.AgentIdle,
		WorkingDir:     workingDir,
		LastActivityAt: time.Now(),
	}
	s.persistManifestEntry(userName, manifest.Entry{Name: userName, AgentType: agentStr, Cwd: workingDir})
	return nil
}

func (s *Supervisor) deleteSession(ctx context.Context, userName string) error {
	sess, ok := s.sessions[userName]
	if !ok {
		return fmt.Errorf("supervisor: no such session %q", userName)
	}
	err := s.control.KillSession(ctx, sess.MultiplexName)
	delete(s.sessions, userName)
	s.removeManifestEntry(userName)
	s.pruneAll()
	return err
}

func (s *Supervisor) persistManifestEntry(userName string, e manifest.Entry) {
	m, err := s.manifestStore.Load()
	if err != nil {
		log.Printf("supervisor: load manifest: %v", err)
		return
	}
	m.Put(userName, e)
	if err := s.manifestStore.Save(m); err != nil {
		log.Printf("supervisor: save manifest: %v", err)
	}
}

func (s *Supervisor) removeManifestEntry(userName string) {
	m, err := s.manifestStore.Load()
	if err != nil {
		log.Printf("supervisor: load manifest: %v", err)
		return
	}
	m.Remove(userName)
	if err := s.manifestStore.Save(m); err != nil {
		log.Printf("supervisor: save manifest: %v", err)
	}
}

// handleNotification processes one async control-mode notification
// (§4.3 event loop input source 2). %output marks the owning session
// dirty and records output recency; %pane-exited marks it Exited
// immediately, bypassing the debounce (the multiplexer itself is
// reporting a confirmed exit, not a transient poll miss). Everything
// else is advisory.
func (s *Supervisor) handleNotification(l tmuxctl.Line) {
	switch l.Name {
	case tmuxctl.NotifyOutput:
		notif := tmuxctl.ParseOutputNotification(l)
		userName := s.userNameForPane(notif.PaneID)
		if userName == "" {
			return
		}
		s.recency[userName] = time.Now()
		s.dirtyPreview[userName] = true
		s.publish()
	case tmuxctl.NotifyPaneExited:
		notif := tmuxctl.ParsePaneExitedNotification(l)
		userName := s.userNameForPane(notif.PaneID)
		if userName == "" {
			return
		}
		if sess, ok := s.sessions[userName]; ok {
			sess.Process = session.Exited
			sess.ExitInfo = session.ExitInfo{Reason: "pane exited"}
		}
		s.publish()
	default:
		// %session-changed, %subscription-changed, %layout-change and
		// anything else recognised-but-unhandled are advisory only.
	}
}

func (s *Supervisor) userNameForPane(paneID string) string {
	multiplexName, ok := s.panes.SessionNameFor(paneID)
	if !ok {
		return ""
	}
	userName, ok := projectid.ParseUserName(multiplexName, s.projectID)
	if !ok {
		return ""
	}
	if _, tracked := s.sessions[userName]; !tracked {
		return ""
	}
	return userName
}

// orderedUserNames returns session user names in the §4.3 list order
// (statusGroup, then userName).
func (s *Supervisor) orderedUserNames() []string {
	snapshot := make([]session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snapshot = append(snapshot, *sess)
	}
	session.SortSessions(snapshot)
	names := make([]string, len(snapshot))
	for i, sess := range snapshot {
		names[i] = sess.UserName
	}
	return names
}

// buildSnapshot assembles the immutable StateSnapshot published to the
// UI, defensively copying every mutable map (§3 StateSnapshot).
func (s *Supervisor) buildSnapshot() *session.StateSnapshot {
	sessions := make([]session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, *sess)
	}
	session.SortSessions(sessions)

	lastMessage := make(map[string]string, len(s.lastMessage))
	for k, v := range s.lastMessage {
		lastMessage[k] = v
	}
	stats := make(map[string]session.SessionStats, len(s.stats))
	for k, v := range s.stats {
		stats[k] = v
	}
	conversations := make(map[string][]session.ConversationEntry, len(s.conversations))
	for k, buf := range s.conversations {
		conversations[k] = append([]session.ConversationEntry(nil), buf.Entries()...)
	}

	return &session.StateSnapshot{
		Sessions:      sessions,
		LastMessage:   lastMessage,
		Stats:         stats,
		Global:        s.global,
		Diffs:         append([]session.DiffFile(nil), s.diffFiles...),
		Conversations: conversations,
		StatusMessage: s.statusMsg,
		GeneratedAt:   time.Now(),
	}
}

func (s *Supervisor) publish() {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(s.buildSnapshot())
}

// pruneAll restricts every per-session map to the live session list, the
// only path that erases per-session state (§4.3 Pruning); it runs
// unconditionally after every session refresh and on explicit delete.
func (s *Supervisor) pruneAll() {
	live := make(map[string]bool, len(s.sessions))
	for name := range s.sessions {
		live[name] = true
	}
	pruneMap(s.recency, live)
	pruneMap(s.deadTicks, live)
	pruneMap(s.lastMessage, live)
	pruneMap(s.stats, live)
	pruneMap(s.conversations, live)
	pruneMap(s.previewCache, live)
	pruneMap(s.dirtyPreview, live)
	pruneMap(s.previewRequests, live)
	pruneMap(s.logHandles, live)
	pruneMap(s.agentSessionIDs, live)
	pruneMap(s.timers, live)
}

func pruneMap[V any](m map[string]V, live map[string]bool) {
	for k := range m {
		if !live[k] {
			delete(m, k)
		}
	}
}
