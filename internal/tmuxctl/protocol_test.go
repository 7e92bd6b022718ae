package tmuxctl

import "testing"

// TestParseLineClassification checks the exhaustiveness property from §8:
// every input line maps to exactly one of Begin | End | Error |
// Notification | Data.
func TestParseLineClassification(t *testing.T) {
	cases := []struct {
		name string
		in   string
		kind LineKind
	}{
		{"begin", "%begin 1690000000 1 1", LineBegin},
		{"end", "%end 1690000000 1 1", LineEnd},
		{"error", "%error 1690000000 2 1", LineError},
		{"output-notification", "%output %3 hello\\012world", LineNotification},
		{"pane-exited", "%pane-exited %3", LineNotification},
		{"session-changed", "%session-changed $2 mysession", LineNotification},
		{"subscription-changed", "%subscription-changed sub %3 1", LineNotification},
		{"layout-change", "%layout-change $2 abcd,80x24,0,0,3", LineNotification},
		{"unknown-percent-notification", "%some-future-thing arg1 arg2", LineNotification},
		{"plain-data", "this is pane output", LineData},
		{"data-with-leading-space", "   indented data", LineData},
		{"empty-line", "", LineData},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ParseLine(c.in)
			if got.Kind != c.kind {
				t.Fatalf("ParseLine(%q).Kind = %v, want %v", c.in, got.Kind, c.kind)
			}
		})
	}
}

func TestParseLineBlockHeaderFields(t *testing.T) {
	l := ParseLine("%begin 1690000012 7 1")
	if l.Timestamp != "1690000012" || l.CmdNum != "7" || l.Flags != "1" {
		t.Fatalf("unexpected fields: %+v", l)
	}
}

func TestParseOutputNotificationDecodesPayload(t *testing.T) {
	l := ParseLine(`%output %3 hello\012world`)
	out := ParseOutputNotification(l)
	if out.PaneID != "%3" {
		t.Fatalf("PaneID = %q, want %%3", out.PaneID)
	}
	if out.Data != "hello\nworld" {
		t.Fatalf("Data = %q, want decoded newline", out.Data)
	}
}

func TestParseSessionChangedNotification(t *testing.T) {
	l := ParseLine("%session-changed $2 mysession")
	sc := ParseSessionChangedNotification(l)
	if sc.ID != "$2" || sc.Name != "mysession" {
		t.Fatalf("unexpected parse: %+v", sc)
	}
}

func TestParsePaneExitedNotification(t *testing.T) {
	l := ParseLine("%pane-exited %5")
	pe := ParsePaneExitedNotification(l)
	if pe.PaneID != "%5" {
		t.Fatalf("PaneID = %q, want %%5", pe.PaneID)
	}
}

// TestFIFOCorrelationScenario documents the §8 property that commands
// C1/C2/C3 yield replies R1/R2/R3 in strict enqueue order, even when
// notifications interleave with the reply blocks. ParseLine must classify
// every line of such an interleaved stream correctly so the client's FIFO
// waiter queue can attribute each Begin/End/Error block to the right
// pending command regardless of intervening Notification/Data lines.
func TestFIFOCorrelationScenario(t *testing.T) {
	stream := []string{
		"%begin 1690000000 1 1",
		"pane output line for C1",
		"%end 1690000000 1 1",
		"%output %3 some async output",
		"%begin 1690000001 2 1",
		"%end 1690000001 2 1",
		"%session-changed $2 mysession",
		"%begin 1690000002 3 1",
		"reply body for C3",
		"%end 1690000002 3 1",
	}
	wantKinds := []LineKind{
		LineBegin, LineData, LineEnd,
		LineNotification,
		LineBegin, LineEnd,
		LineNotification,
		LineBegin, LineData, LineEnd,
	}
	if len(stream) != len(wantKinds) {
		t.Fatalf("test setup mismatch")
	}
	var cmdNums []string
	for i, raw := range stream {
		l := ParseLine(raw)
		if l.Kind != wantKinds[i] {
			t.Fatalf("line %d (%q): kind = %v, want %v", i, raw, l.Kind, wantKinds[i])
		}
		if l.Kind == LineBegin || l.Kind == LineEnd {
			cmdNums = append(cmdNums, l.CmdNum)
		}
	}
	want := []string{"1", "1", "2", "2", "3", "3"}
	if len(cmdNums) != len(want) {
		t.Fatalf("cmdNums = %v, want %v", cmdNums, want)
	}
	for i := range want {
		if cmdNums[i] != want[i] {
			t.Fatalf("cmdNums[%d] = %q, want %q", i, cmdNums[i], want[i])
		}
	}
}
