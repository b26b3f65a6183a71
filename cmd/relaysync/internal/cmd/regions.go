package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ocupoint/relaysync/pkg/relay"
)

var regionsTimeoutFlag time.Duration

func newRegionsCmd() *cobra.Command {
	regionsCmd := &cobra.Command{
		Use:   "regions",
		Short: "Discover relay regions and report their current latency",
		Long:  "Connects to the relay service, discovers the available regions, probes each over UDP, and prints a latency table.",
		Args:  cobra.NoArgs,
		RunE:  runRegions,
	}

	regionsCmd.Flags().DurationVar(&regionsTimeoutFlag, "timeout", 10*time.Second, "Overall timeout for discovery and probing")

	return regionsCmd
}

func runRegions(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), regionsTimeoutFlag)
	defer cancel()

	client, err := relay.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer client.Close()

	regions, err := client.DiscoverRegions(ctx)
	if err != nil {
		return fmt.Errorf("discover regions: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Region", "Address", "Latency (ms)"})

	for _, region := range regions {
		pinger, err := relay.NewPinger(region)
		latency := "n/a"
		if err == nil {
			latency = strconv.FormatUint(pinger.StartPing(5), 10)
		}
		table.Append([]string{region.ShortName, region.Address, latency})
	}

	table.Render()
	return nil
}
