package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ocupoint/relaysync/pkg/node"
	"github.com/ocupoint/relaysync/pkg/relay"
)

var (
	nodeCoordURLFlag     string
	nodeSkipDiscoverFlag bool
	nodeMetricsAddrFlag  string
)

func newNodeCmd() *cobra.Command {
	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Connect to a coordinator as a participant",
		Long:  "Dials the relay service to discover regions, then connects to a coordinator and waits for scheduled playback.",
		Args:  cobra.NoArgs,
		RunE:  runNode,
	}

	nodeCmd.Flags().StringVar(&nodeCoordURLFlag, "coord", "ws://127.0.0.1:8080/ws", "Coordinator WebSocket URL")
	nodeCmd.Flags().BoolVar(&nodeSkipDiscoverFlag, "skip-discover", false, "Skip relay region discovery (region-ping requests will return empty snapshots)")
	nodeCmd.Flags().StringVar(&nodeMetricsAddrFlag, "metrics-addr", "", "Address to serve Prometheus text format on (disabled if empty)")

	return nodeCmd
}

func runNode(cmd *cobra.Command, args []string) error {
	log := logrus.WithField("component", "cmd/node")
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if nodeMetricsAddrFlag != "" {
		go serveMetrics(log, nodeMetricsAddrFlag)
	}

	var regions []relay.Region
	if !nodeSkipDiscoverFlag {
		discovered, err := discoverRegions(ctx)
		if err != nil {
			log.Warnf("region discovery failed, continuing without it: %v", err)
		} else {
			regions = discovered
			log.Infof("discovered %d regions", len(regions))
		}
	}

	renderer := func(payload string) {
		fmt.Printf("PLAYING NOW: %s\n", payload)
	}

	n, err := node.Dial(ctx, nodeCoordURLFlag, regions, renderer)
	if err != nil {
		return fmt.Errorf("connect to coordinator: %w", err)
	}
	defer n.Close()

	log.Infof("connected to coordinator %s", nodeCoordURLFlag)
	return n.Run(ctx)
}

func discoverRegions(ctx context.Context) ([]relay.Region, error) {
	client, err := relay.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.DiscoverRegions(ctx)
}
