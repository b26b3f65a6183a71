package cmd

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// serveMetrics runs a Prometheus text-format HTTP server on addr until
// it fails, logging the failure rather than tearing down the caller's
// main listener. Shared by the coord and node subcommands' optional
// -metrics-addr flag.
func serveMetrics(log *logrus.Entry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warnf("metrics server on %s stopped: %v", addr, err)
	}
}
