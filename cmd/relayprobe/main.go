// Command relayprobe is a minimal smoke test for the relay discovery
// and UDP latency-probe protocol: connect, discover regions, ping one
// region, print the result. It exists independently of the
// coordinator/node binaries for diagnosing relay connectivity in
// isolation.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ocupoint/relaysync/pkg/relay"
)

func main() {
	region := flag.String("region", "us", "Region short name to probe")
	samples := flag.Int("samples", 10, "Number of UDP probe samples to average")
	timeout := flag.Duration("timeout", 10*time.Second, "Overall timeout for discovery and probing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := relay.Dial(ctx)
	if err != nil {
		log.Fatalf("dial relay: %v", err)
	}
	defer client.Close()

	fmt.Println("Connected to relay service. Waiting for region list...")
	regions, err := client.DiscoverRegions(ctx)
	if err != nil {
		log.Fatalf("discover regions: %v", err)
	}
	fmt.Printf("Discovered %d regions\n", len(regions))

	var target *relay.Region
	for i := range regions {
		if regions[i].ShortName == *region {
			target = &regions[i]
			break
		}
	}
	if target == nil {
		log.Fatalf("region %q not found in discovery result", *region)
	}

	pinger, err := relay.NewPinger(*target)
	if err != nil {
		log.Fatalf("prepare pinger for %s: %v", target.ShortName, err)
	}

	latency := pinger.StartPing(*samples)
	fmt.Printf("Region %s (%s): %dms average over %d samples\n", target.ShortName, target.Address, latency, *samples)
}
