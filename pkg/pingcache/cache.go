// Package pingcache maintains each known region's most recently
// measured relay-service latency behind a single mutex, refreshed on a
// fixed background cycle so requests for already-cached regions never
// block on a live UDP probe round. ProbeOne runs a live probe for a
// region that has no entry yet.
package pingcache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ocupoint/relaysync/pkg/metrics"
	"github.com/ocupoint/relaysync/pkg/relay"
)

var log = logrus.WithField("component", "pingcache")

// RefreshInterval is the background refresh cycle's period.
const RefreshInterval = 30 * time.Second

// SamplesPerRegion is how many UDP probes StartPing averages over per
// refresh, per region.
const SamplesPerRegion = 20

// Entry is one region's most recently measured latency.
type Entry struct {
	Region      relay.Region
	LatencyMS   uint64
	LastUpdated time.Time
}

// Cache holds the latest Entry per region, keyed by region short name.
type Cache struct {
	mu      sync.Mutex
	regions []relay.Region
	entries map[string]Entry
}

// New returns a Cache that will probe regions once they are set via
// SetRegions (typically the result of relay.Client.DiscoverRegions).
func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

// SetRegions replaces the set of regions the cache refreshes. Existing
// entries for regions no longer present are retained: refreshes only
// overwrite the entries of regions in the current set.
func (c *Cache) SetRegions(regions []relay.Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions = regions
}

// Snapshot returns the current entry for target as a one-element slice,
// or nil if there is none. If target is empty, it returns all known
// entries, or nil if the cache is empty.
func (c *Cache) Snapshot(target string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if target != "" {
		if e, ok := c.entries[target]; ok {
			return []Entry{e}
		}
		return nil
	}

	if len(c.entries) == 0 {
		return nil
	}

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// RefreshAll probes every configured region and stores the resulting
// latencies, overwriting prior entries for those regions. Probing
// happens concurrently, one goroutine per region, matching the
// original implementation's per-region task fan-out.
func (c *Cache) RefreshAll() {
	c.mu.Lock()
	regions := c.regions
	c.mu.Unlock()

	if len(regions) == 0 {
		return
	}

	type result struct {
		region  relay.Region
		latency uint64
	}
	results := make(chan result, len(regions))

	var wg sync.WaitGroup
	for _, region := range regions {
		wg.Add(1)
		go func(region relay.Region) {
			defer wg.Done()
			pinger, err := relay.NewPinger(region)
			if err != nil {
				log.Warnf("region %s: %v", region.ShortName, err)
				results <- result{region: region, latency: 0}
				return
			}
			results <- result{region: region, latency: pinger.StartPing(SamplesPerRegion)}
		}(region)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for r := range results {
		c.entries[r.region.ShortName] = Entry{
			Region:      r.region,
			LatencyMS:   r.latency,
			LastUpdated: now,
		}
		metrics.RegionLatency.WithLabelValues(r.region.ShortName).Set(float64(r.latency))
		log.Debugf("region %s: %dms", r.region.ShortName, r.latency)
	}
}

// ProbeOne resolves shortName against the cache's configured region list
// and runs a one-off probe against it, storing and returning the result
// under the lock. Used for an on-demand REQUEST_PING naming a region the
// background refresh hasn't reached yet. Returns ok=false if shortName
// isn't in the configured region list.
func (c *Cache) ProbeOne(shortName string, samples int) (Entry, bool) {
	c.mu.Lock()
	var region relay.Region
	found := false
	for _, r := range c.regions {
		if r.ShortName == shortName {
			region = r
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return Entry{}, false
	}

	pinger, err := relay.NewPinger(region)
	var latency uint64
	if err != nil {
		log.Warnf("region %s: %v", region.ShortName, err)
	} else {
		latency = pinger.StartPing(samples)
	}

	entry := Entry{Region: region, LatencyMS: latency, LastUpdated: time.Now()}
	c.mu.Lock()
	c.entries[region.ShortName] = entry
	c.mu.Unlock()
	metrics.RegionLatency.WithLabelValues(region.ShortName).Set(float64(latency))

	return entry, true
}

// Run blocks, calling RefreshAll immediately and then every
// RefreshInterval, until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	c.RefreshAll()

	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RefreshAll()
		}
	}
}
