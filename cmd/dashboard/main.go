// Command dashboard is the CLI entry point for the agent dashboard (§6):
// a closed set of subcommands (new, kill, ls, update) plus a default
// run mode that boots the supervisor and renders a live terminal view.
// Flag parsing and signal handling follow the teacher's cmd/server/main.go
// shape, generalized from "always serve websockets" to "dispatch on the
// first os.Args subcommand."
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agent-dashboard/dashboard/internal/config"
	"github.com/agent-dashboard/dashboard/internal/logs"
	"github.com/agent-dashboard/dashboard/internal/manifest"
	"github.com/agent-dashboard/dashboard/internal/procwatch"
	"github.com/agent-dashboard/dashboard/internal/projectid"
	"github.com/agent-dashboard/dashboard/internal/session"
	"github.com/agent-dashboard/dashboard/internal/supervisor"
	"github.com/agent-dashboard/dashboard/internal/tmuxctl"
	"github.com/agent-dashboard/dashboard/internal/uiproto"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to XDG config dir)")
	flag.Parse()
	args := flag.Args()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("dashboard: load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("dashboard: %v", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("dashboard: getwd: %v", err)
	}
	projectID := projectid.Of(workDir)

	sup, shutdown, err := bootSupervisor(cfg, workDir, projectID)
	if err != nil {
		log.Fatalf("dashboard: %v", err)
	}
	defer shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("dashboard: shutting down...")
		cancel()
	}()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- sup.Run(ctx) }()
	// Give the supervisor a tick to finish revival before subcommands
	// that depend on the current session list (ls, kill) run against it.
	time.Sleep(50 * time.Millisecond)

	if len(args) == 0 {
		runTUI(ctx, sup)
	} else {
		if err := dispatch(sup, args); err != nil {
			cancel()
			<-runErrCh
			fmt.Fprintln(os.Stderr, "dashboard:", err)
			os.Exit(1)
		}
		cancel()
	}

	if err := <-runErrCh; err != nil && err != context.Canceled {
		log.Printf("dashboard: supervisor exited: %v", err)
	}
}

// dialControl connects the persistent control-mode client, falling back
// to the per-command subprocess client when the health check fails (§4.1
// Failure semantics).
func dialControl(ctx context.Context) (tmuxctl.Control, bool) {
	client, err := tmuxctl.Dial(ctx, "tmux", "-C", "new-session", "-A", "-D", "-s", "agt-control")
	if err == nil {
		hctx, cancel := context.WithTimeout(ctx, tmuxctl.HealthCheckTimeout)
		herr := client.HealthCheck(hctx)
		cancel()
		if herr == nil {
			return client, true
		}
		client.Close()
		log.Printf("dashboard: control-mode health check failed, falling back to subprocess mode: %v", herr)
	} else {
		log.Printf("dashboard: control-mode dial failed, falling back to subprocess mode: %v", err)
	}
	return tmuxctl.NewSubprocessClient(""), false
}

func bootSupervisor(cfg *config.Config, workDir, projectID string) (*supervisor.Supervisor, func(), error) {
	ctx := context.Background()
	control, controlModeActive := dialControl(ctx)

	registry := logs.NewRegistry(
		logs.NewClaudeProvider(),
		logs.NewCodexProvider(),
		logs.NewGeminiProvider(),
	)
	manifestStore := manifest.NewStore(cfg.Supervisor.ManifestDir, projectID)
	procs := procwatch.NewWatcher()

	var publisher supervisor.Publisher
	var closeUI func()
	if cfg.UI.Enabled {
		broadcaster := uiproto.NewBroadcaster(cfg.UI.MaxConnections)
		router := uiproto.NewRouter(broadcaster, time.Now())
		addr := fmt.Sprintf("%s:%d", cfg.UI.Host, cfg.UI.Port)
		srv := &http.Server{Addr: addr, Handler: router}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("dashboard: ui server: %v", err)
			}
		}()
		publisher = broadcaster
		closeUI = func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shCtx)
		}
	} else {
		publisher = inProcessPublisher{}
	}

	sup := supervisor.New(cfg, control, controlModeActive, registry, manifestStore, procs, publisher, projectID, workDir)
	shutdown := func() {
		control.Close()
		if closeUI != nil {
			closeUI()
		}
	}
	return sup, shutdown, nil
}

// inProcessPublisher discards published snapshots/previews: the default
// run mode re-renders the terminal view itself by polling the supervisor
// for commands rather than subscribing to a push channel, so no fan-out
// sink is needed when the detached UI transport is disabled.
type inProcessPublisher struct{}

func (inProcessPublisher) Publish(*session.StateSnapshot)    {}
func (inProcessPublisher) PublishPreview(uiproto.PreviewUpdate) {}

func dispatch(sup *supervisor.Supervisor, args []string) error {
	switch args[0] {
	case "new":
		if len(args) != 3 {
			return fmt.Errorf("usage: dashboard new <agent> <name>")
		}
		return sendCommand(sup, supervisor.Command{Kind: supervisor.CmdCreate, Agent: args[1], UserName: args[2], WorkingDir: mustGetwd()})
	case "kill":
		if len(args) != 2 {
			return fmt.Errorf("usage: dashboard kill <name>")
		}
		return sendCommand(sup, supervisor.Command{Kind: supervisor.CmdDelete, UserName: args[1]})
	case "ls":
		return listSessions(sup)
	case "update":
		return sendCommand(sup, supervisor.Command{Kind: supervisor.CmdRequestPreview, UserName: "", Scrollback: false})
	default:
		return fmt.Errorf("unknown subcommand %q (want new|kill|ls|update)", args[0])
	}
}

func listSessions(sup *supervisor.Supervisor) error {
	snapCh := make(chan *session.StateSnapshot, 1)
	reply := make(chan error, 1)
	sup.Commands() <- supervisor.Command{Kind: supervisor.CmdListSessions, Snapshot: snapCh, Reply: reply}
	if err := <-reply; err != nil {
		return err
	}
	snap := <-snapCh
	if len(snap.Sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, sess := range snap.Sessions {
		status, detail := sess.VisualStatus(snap.LastMessage[sess.UserName])
		fmt.Printf("%-20s %-8s %-8s %s\n", sess.UserName, sess.Agent, status, detail)
	}
	return nil
}

func sendCommand(sup *supervisor.Supervisor, cmd supervisor.Command) error {
	reply := make(chan error, 1)
	cmd.Reply = reply
	sup.Commands() <- cmd
	return <-reply
}

func mustGetwd() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}
