package logs

import (
	"testing"
	"time"
)

func TestNewestUnclaimedSkipsClaimedPaths(t *testing.T) {
	now := time.Now()
	handles := []Handle{
		{LogPath: "/a", StartedAt: now.Add(-time.Minute)},
		{LogPath: "/b", StartedAt: now},
		{LogPath: "/c", StartedAt: now.Add(-2 * time.Minute)},
	}
	claimed := map[string]bool{"/b": true}

	best, ok := newestUnclaimed(handles, claimed)
	if !ok || best.LogPath != "/a" {
		t.Fatalf("newestUnclaimed = %+v, %v; want /a", best, ok)
	}
}

func TestNewestUnclaimedAllClaimed(t *testing.T) {
	handles := []Handle{{LogPath: "/a"}, {LogPath: "/b"}}
	claimed := map[string]bool{"/a": true, "/b": true}

	if _, ok := newestUnclaimed(handles, claimed); ok {
		t.Fatalf("expected no unclaimed handle")
	}
}
