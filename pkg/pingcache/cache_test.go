package pingcache

import (
	"context"
	"testing"
	"time"

	"github.com/ocupoint/relaysync/pkg/relay"
)

func TestSnapshotEmptyCache(t *testing.T) {
	c := New()
	if got := c.Snapshot(""); got != nil {
		t.Errorf("Snapshot(\"\") on empty cache = %v, want nil", got)
	}
	if got := c.Snapshot("us"); got != nil {
		t.Errorf("Snapshot(us) on empty cache = %v, want nil", got)
	}
}

func TestRefreshAllWithNoRegionsIsNoop(t *testing.T) {
	c := New()
	c.RefreshAll()
	if got := c.Snapshot(""); len(got) != 0 {
		t.Errorf("Snapshot after no-region refresh = %v, want empty", got)
	}
}

func TestRefreshAllPopulatesUnreachableRegionsWithZero(t *testing.T) {
	c := New()
	c.SetRegions([]relay.Region{
		{ShortName: "unreachable", Address: "wss://no-such-host.invalid"},
	})
	c.RefreshAll()

	entries := c.Snapshot("unreachable")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].LatencyMS != 0 {
		t.Errorf("LatencyMS = %d, want 0 for unresolvable region", entries[0].LatencyMS)
	}
	if entries[0].LastUpdated.IsZero() {
		t.Error("LastUpdated not set")
	}
}

func TestSnapshotFiltersByTarget(t *testing.T) {
	c := New()
	c.entries["us"] = Entry{Region: relay.Region{ShortName: "us"}, LatencyMS: 10, LastUpdated: time.Now()}
	c.entries["eu"] = Entry{Region: relay.Region{ShortName: "eu"}, LatencyMS: 20, LastUpdated: time.Now()}

	got := c.Snapshot("eu")
	if len(got) != 1 || got[0].Region.ShortName != "eu" {
		t.Fatalf("Snapshot(eu) = %v", got)
	}

	all := c.Snapshot("")
	if len(all) != 2 {
		t.Fatalf("Snapshot(\"\") = %v, want 2 entries", all)
	}
}

func TestProbeOneUnknownRegionReturnsNotFound(t *testing.T) {
	c := New()
	c.SetRegions([]relay.Region{{ShortName: "us", Address: "wss://no-such-host.invalid"}})

	if _, ok := c.ProbeOne("eu", 1); ok {
		t.Error("ProbeOne(eu) = ok, want not-found for a region absent from the configured list")
	}
}

func TestProbeOneStoresResultUnderCacheLock(t *testing.T) {
	c := New()
	c.SetRegions([]relay.Region{{ShortName: "unreachable", Address: "wss://no-such-host.invalid"}})

	entry, ok := c.ProbeOne("unreachable", 1)
	if !ok {
		t.Fatal("ProbeOne(unreachable) = not-found, want found in configured region list")
	}
	if entry.LatencyMS != 0 {
		t.Errorf("LatencyMS = %d, want 0 for unresolvable region", entry.LatencyMS)
	}

	snap := c.Snapshot("unreachable")
	if len(snap) != 1 {
		t.Fatalf("Snapshot after ProbeOne = %v, want 1 entry", snap)
	}
	if snap[0].LastUpdated.IsZero() {
		t.Error("LastUpdated not set by ProbeOne")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
