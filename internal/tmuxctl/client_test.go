package tmuxctl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"testing"
	"time"
)

// fakeServer emulates a control-mode peer over an in-process pipe pair:
// it reads command lines written by the Client and lets the test decide
// how/when to reply, so FIFO correlation can be exercised deterministically.
type fakeServer struct {
	cmds   chan string
	toSide io.Writer
	r      *bufio.Scanner
}

func newFakeClientAndServer(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	clientStdinR, clientStdinW := io.Pipe()
	serverStdoutR, serverStdoutW := io.Pipe()

	c := NewFromPipes(clientStdinW, serverStdoutR)

	fs := &fakeServer{
		cmds:   make(chan string, 16),
		toSide: serverStdoutW,
		r:      bufio.NewScanner(clientStdinR),
	}
	go func() {
		for fs.r.Scan() {
			fs.cmds <- fs.r.Text()
		}
	}()
	return c, fs
}

func (fs *fakeServer) reply(cmdNum int, lines []string, isError bool) {
	fmt.Fprintf(fs.toSide, "%%begin 1700000000 %d 1\n", cmdNum)
	for _, l := range lines {
		fmt.Fprintln(fs.toSide, l)
	}
	if isError {
		fmt.Fprintf(fs.toSide, "%%error 1700000000 %d 1\n", cmdNum)
	} else {
		fmt.Fprintf(fs.toSide, "%%end 1700000000 %d 1\n", cmdNum)
	}
}

func (fs *fakeServer) notify(line string) {
	fmt.Fprintln(fs.toSide, line)
}

func TestSendCommandFIFOOrdering(t *testing.T) {
	c, fs := newFakeClientAndServer(t)
	defer c.Close()

	type result struct {
		idx   int
		lines []string
		err   error
	}
	results := make(chan result, 3)
	// Issue the commands one at a time, waiting for each to be written
	// before starting the next, so enqueue order is exactly 1, 2, 3 and
	// the server replies in that order.
	var cmdNums []int
	for i := 1; i <= 3; i++ {
		go func(i int) {
			lines, err := c.SendCommand(context.Background(), fmt.Sprintf("list-panes -t target%d", i))
			results <- result{idx: i, lines: lines, err: err}
		}(i)
		<-fs.cmds
		cmdNums = append(cmdNums, i)
	}

	// Reply out of order on the wire is not possible for a real tmux (it
	// always replies FIFO); here we simulate exactly that guarantee and
	// interleave an async notification in between.
	fs.reply(cmdNums[0], []string{"pane-a"}, false)
	fs.notify("%output %3 async\\040chatter")
	fs.reply(cmdNums[1], []string{"pane-b"}, false)
	fs.reply(cmdNums[2], []string{"pane-c"}, true)

	got := make(map[int]result, 3)
	for i := 0; i < 3; i++ {
		r := <-results
		got[r.idx] = r
	}

	if got[1].err != nil || len(got[1].lines) != 1 || got[1].lines[0] != "pane-a" {
		t.Fatalf("command 1 result = %+v", got[1])
	}
	if got[2].err != nil || len(got[2].lines) != 1 || got[2].lines[0] != "pane-b" {
		t.Fatalf("command 2 result = %+v", got[2])
	}
	if got[3].err == nil {
		t.Fatalf("command 3 expected error reply, got nil")
	}
}

func TestSubscribeReceivesNotifications(t *testing.T) {
	c, fs := newFakeClientAndServer(t)
	defer c.Close()

	ch, cancel := c.Subscribe()
	defer cancel()

	fs.notify("%pane-exited %7")

	select {
	case l := <-ch:
		if l.Kind != LineNotification || l.Name != NotifyPaneExited {
			t.Fatalf("unexpected notification: %+v", l)
		}
		pe := ParsePaneExitedNotification(l)
		if pe.PaneID != "%7" {
			t.Fatalf("PaneID = %q, want %%7", pe.PaneID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestSendCommandAfterCloseReturnsErrClosed(t *testing.T) {
	c, _ := newFakeClientAndServer(t)
	c.Close()
	// Give the reader loop a moment to observe EOF and tear down.
	time.Sleep(50 * time.Millisecond)
	_, err := c.SendCommand(context.Background(), "list-panes")
	if err == nil {
		t.Fatal("expected an error sending on a closed client")
	}
}
