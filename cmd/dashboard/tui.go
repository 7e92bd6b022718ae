package main

import (
	"context"
	"fmt"
	"time"

	"github.com/agent-dashboard/dashboard/internal/session"
	"github.com/agent-dashboard/dashboard/internal/supervisor"
)

// tuiRefreshInterval is how often the default run mode redraws the
// session table. Independent of the supervisor's own internal tick rate
// -- this is purely a display cadence.
const tuiRefreshInterval = 500 * time.Millisecond

// runTUI renders a live, redrawing terminal view of the session list
// until ctx is cancelled (Ctrl-C). It polls the supervisor via
// CmdListSessions rather than subscribing to uiproto, matching
// SPEC_FULL's framing of the default run mode as embedding the UI
// in-process and skipping the socket.
func runTUI(ctx context.Context, sup *supervisor.Supervisor) {
	ticker := time.NewTicker(tuiRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := fetchSnapshot(sup)
			if err != nil {
				continue
			}
			render(snap)
		}
	}
}

func fetchSnapshot(sup *supervisor.Supervisor) (*session.StateSnapshot, error) {
	snapCh := make(chan *session.StateSnapshot, 1)
	reply := make(chan error, 1)
	sup.Commands() <- supervisor.Command{Kind: supervisor.CmdListSessions, Snapshot: snapCh, Reply: reply}
	if err := <-reply; err != nil {
		return nil, err
	}
	return <-snapCh, nil
}

// render redraws the session table in place using the standard "clear
// screen, home cursor" ANSI sequence -- no TUI framework is introduced
// (see DESIGN.md for why); this is the same texture as the teacher's
// plain log.Printf-driven ambient output, just aimed at a redrawing view.
func render(snap *session.StateSnapshot) {
	fmt.Print("\033[H\033[2J")
	fmt.Printf("agent-dashboard  %s\n\n", snap.GeneratedAt.Format(time.Kitchen))
	if len(snap.Sessions) == 0 {
		fmt.Println("no sessions (dashboard new <agent> <name> to create one)")
	}
	for _, sess := range snap.Sessions {
		status, detail := sess.VisualStatus(snap.LastMessage[sess.UserName])
		line := fmt.Sprintf("%-20s %-8s %-8s", sess.UserName, sess.Agent, status)
		if detail != "" {
			line += " " + detail
		}
		fmt.Println(line)
	}
	fmt.Println()
	for agent, cost := range snap.Global.ByAgent {
		fmt.Printf("%-8s in=%d out=%d $%.4f\n", agent, cost.InputTokens, cost.OutputTokens, cost.CostUSD)
	}
	if snap.StatusMessage != "" {
		fmt.Println()
		fmt.Println("! " + snap.StatusMessage)
	}
}
