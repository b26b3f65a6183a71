package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ocupoint/relaysync/pkg/coordinator"
	"github.com/ocupoint/relaysync/pkg/diag"
)

var (
	coordBindFlag        string
	coordRecordFlag      string
	coordMetricsAddrFlag string
)

func newCoordCmd() *cobra.Command {
	coordCmd := &cobra.Command{
		Use:   "coord",
		Short: "Run the broadcast coordinator",
		Long:  "Accepts node connections over WebSocket, tracks per-participant RTT, and drives the synchronized-playback broadcast engine.",
		Args:  cobra.NoArgs,
		RunE:  runCoord,
	}

	coordCmd.Flags().StringVar(&coordBindFlag, "bind", "127.0.0.1:8080", "Address to bind the WebSocket listener on")
	coordCmd.Flags().StringVar(&coordRecordFlag, "record", "", "Path to append broadcast diagnostic events as Parquet rows (disabled if empty)")
	coordCmd.Flags().StringVar(&coordMetricsAddrFlag, "metrics-addr", "", "Address to serve Prometheus text format on (disabled if empty)")

	return coordCmd
}

func runCoord(cmd *cobra.Command, args []string) error {
	log := logrus.WithField("component", "cmd/coord")

	coord := coordinator.New()

	if coordRecordFlag != "" {
		f, err := os.Create(coordRecordFlag)
		if err != nil {
			return fmt.Errorf("open record file: %w", err)
		}
		coord.SetRecorder(diag.NewRecorder(f))
		log.Infof("recording broadcast events to %s", coordRecordFlag)
	}

	if coordMetricsAddrFlag != "" {
		go serveMetrics(log, coordMetricsAddrFlag)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", coord)

	log.Infof("coordinator listening on %s", coordBindFlag)
	return http.ListenAndServe(coordBindFlag, mux)
}
