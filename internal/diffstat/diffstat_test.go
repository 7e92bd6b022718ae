package diffstat

import "testing"

func TestParseNumstat(t *testing.T) {
	in := "3\t1\tsrc/a.rs\n-\t-\tbin.dat\n2\t0\tsrc/b.rs\n"
	files := Parse(in)
	if len(files) != 2 {
		t.Fatalf("expected 2 files (binary line skipped), got %d: %+v", len(files), files)
	}
	// Sorted by total change descending: src/a.rs (4) > src/b.rs (2).
	if files[0].Path != "src/a.rs" || files[0].Insertions != 3 || files[0].Deletions != 1 {
		t.Fatalf("unexpected first entry: %+v", files[0])
	}
	if files[1].Path != "src/b.rs" || files[1].Insertions != 2 || files[1].Deletions != 0 {
		t.Fatalf("unexpected second entry: %+v", files[1])
	}
	for _, f := range files {
		if f.Path == "bin.dat" {
			t.Fatalf("binary file should be skipped, got %+v", files)
		}
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	in := "not a valid line\n3\t1\tok.go\n"
	files := Parse(in)
	if len(files) != 1 || files[0].Path != "ok.go" {
		t.Fatalf("unexpected result: %+v", files)
	}
}

func TestTruncateCapsAt200(t *testing.T) {
	var in string
	for i := 0; i < 250; i++ {
		in += "1\t0\tfile.go\n"
	}
	files := Parse(in)
	if len(files) != 200 {
		t.Fatalf("expected truncation to 200, got %d", len(files))
	}
}

func TestParseUntrackedAppendsWithFlag(t *testing.T) {
	files := Parse("1\t0\ttracked.go\n")
	files = ParseUntracked(files, []string{"new.go"})
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	var found bool
	for _, f := range files {
		if f.Path == "new.go" {
			found = true
			if !f.Untracked {
				t.Fatalf("expected Untracked=true for new.go")
			}
		}
	}
	if !found {
		t.Fatalf("new.go not found in result")
	}
}
