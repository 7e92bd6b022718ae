package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agent-dashboard/dashboard/internal/config"
	"github.com/agent-dashboard/dashboard/internal/logs"
	"github.com/agent-dashboard/dashboard/internal/manifest"
	"github.com/agent-dashboard/dashboard/internal/procwatch"
	"github.com/agent-dashboard/dashboard/internal/session"
	"github.com/agent-dashboard/dashboard/internal/tmuxctl"
	"github.com/agent-dashboard/dashboard/internal/uiproto"
)

// fakeControl is a minimal in-memory stand-in for tmuxctl.Control, grounded
// on the teacher's plain interface-fake test style (no mocking framework).
type fakeControl struct {
	mu       sync.Mutex
	sessions map[string]bool
}

func newFakeControl() *fakeControl {
	return &fakeControl{sessions: make(map[string]bool)}
}

func (f *fakeControl) HealthCheck(context.Context) error { return nil }

func (f *fakeControl) ListSessions(context.Context) ([]tmuxctl.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tmuxctl.SessionInfo, 0, len(f.sessions))
	for name := range f.sessions {
		out = append(out, tmuxctl.SessionInfo{Name: name})
	}
	return out, nil
}

func (f *fakeControl) ListPanes(context.Context) ([]tmuxctl.PaneStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tmuxctl.PaneStatus, 0, len(f.sessions))
	for name := range f.sessions {
		out = append(out, tmuxctl.PaneStatus{PaneID: "%1", SessionName: name, PID: 0, Dead: false, LastActivity: time.Now()})
	}
	return out, nil
}

func (f *fakeControl) NewSession(_ context.Context, sessionName, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[sessionName] = true
	return nil
}

func (f *fakeControl) SetEnv(context.Context, string, string, string) error   { return nil }
func (f *fakeControl) UnsetEnv(context.Context, string, string) error        { return nil }

func (f *fakeControl) KillSession(_ context.Context, sessionName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionName)
	return nil
}

func (f *fakeControl) CapturePane(context.Context, string) (string, error)           { return "", nil }
func (f *fakeControl) CapturePaneScrollback(context.Context, string) (string, error) { return "", nil }
func (f *fakeControl) SendKey(context.Context, string, string) error                 { return nil }
func (f *fakeControl) SendLiteral(context.Context, string, string) error             { return nil }
func (f *fakeControl) Subscribe() (<-chan tmuxctl.Line, func())                      { return make(chan tmuxctl.Line), func() {} }
func (f *fakeControl) Close() error                                                  { return nil }

var _ tmuxctl.Control = (*fakeControl)(nil)

// fakePublisher records every published snapshot/preview for assertions.
type fakePublisher struct {
	mu       sync.Mutex
	last     *session.StateSnapshot
	previews []uiproto.PreviewUpdate
}

func (p *fakePublisher) Publish(snap *session.StateSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = snap
}

func (p *fakePublisher) PublishPreview(pu uiproto.PreviewUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews = append(p.previews, pu)
}

func (p *fakePublisher) snapshot() *session.StateSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

type fakeProvider struct{}

func (fakeProvider) ID() string                          { return "claude" }
func (fakeProvider) CreateCommand(dir string) []string    { return []string{"claude"} }
func (fakeProvider) ResumeCommand(string, string) ([]string, bool) {
	return nil, false
}
func (fakeProvider) Discover(string) ([]logs.Handle, error) { return nil, nil }
func (fakeProvider) ResolveLogPath(context.Context, string, string, map[string]bool) (string, bool) {
	return "", false
}
func (fakeProvider) UpdateFromLog(logs.Handle, int64) (logs.Update, int64, error) {
	return logs.Update{}, 0, nil
}
func (fakeProvider) PreferredStatusStrategy() logs.StatusStrategy { return logs.StatusFromEntries }

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeControl, *fakePublisher) {
	t.Helper()
	cfg := &config.Config{
		Supervisor: config.SupervisorConfig{
			SessionRefreshInterval:             20 * time.Millisecond,
			MessageRefreshInterval:             5 * time.Millisecond,
			LivenessDebounceTicks:              3,
			LivenessDebounceTicksWithSubagents: 15,
		},
		Logs:    config.LogsConfig{RefreshEveryNTicks: 4},
		Preview: config.PreviewConfig{MaxCapturesPerTick: 8, DirtySetLiveBudget: 2, RoundRobinFillBudget: 1},
	}
	control := newFakeControl()
	registry := logs.NewRegistry(fakeProvider{})
	store := manifest.NewStore(t.TempDir(), "testproj")
	procs := procwatch.NewWatcher()
	pub := &fakePublisher{}

	sup := New(cfg, control, true, registry, store, procs, pub, "testproj", t.TempDir())
	return sup, control, pub
}

func TestSupervisorCreateAndDeleteSession(t *testing.T) {
	sup, control, pub := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	reply := make(chan error, 1)
	sup.Commands() <- Command{Kind: CmdCreate, UserName: "alice", Agent: "claude", WorkingDir: "/tmp", Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("create: %v", err)
	}

	waitForSnapshot(t, pub, func(s *session.StateSnapshot) bool { return len(s.Sessions) == 1 })

	if !control.sessions["agt-testproj-alice"] {
		t.Fatalf("expected control-mode session agt-testproj-alice to exist")
	}

	delReply := make(chan error, 1)
	sup.Commands() <- Command{Kind: CmdDelete, UserName: "alice", Reply: delReply}
	if err := <-delReply; err != nil {
		t.Fatalf("delete: %v", err)
	}
	waitForSnapshot(t, pub, func(s *session.StateSnapshot) bool { return len(s.Sessions) == 0 })

	quitReply := make(chan error, 1)
	sup.Commands() <- Command{Kind: CmdQuit, Reply: quitReply}
	<-quitReply
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestSupervisorCreateDuplicateFails(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	reply := make(chan error, 1)
	sup.Commands() <- Command{Kind: CmdCreate, UserName: "dupe", Agent: "claude", WorkingDir: "/tmp", Reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("first create: %v", err)
	}

	reply2 := make(chan error, 1)
	sup.Commands() <- Command{Kind: CmdCreate, UserName: "dupe", Agent: "claude", WorkingDir: "/tmp", Reply: reply2}
	if err := <-reply2; err == nil {
		t.Fatalf("expected error creating a duplicate session name")
	}

	quitReply := make(chan error, 1)
	sup.Commands() <- Command{Kind: CmdQuit, Reply: quitReply}
	<-quitReply
}

func waitForSnapshot(t *testing.T, pub *fakePublisher, ok func(*session.StateSnapshot) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := pub.snapshot(); snap != nil && ok(snap) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for expected snapshot state")
}
