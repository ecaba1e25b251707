// Command transportd runs a standalone transport node: it joins discovery,
// brings up the node-shared runtime, and exposes Prometheus metrics plus a
// JSON status snapshot over HTTP. It advertises and subscribes to nothing
// on its own — it exists to host the coordination core as a long-running
// process that application code attaches to, the same role the teacher's
// cmd/arrow-server/main.go plays for its gRPC/Arrow server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/j-rivero/ign-transport-git/api"
	"github.com/j-rivero/ign-transport-git/config"
	"github.com/j-rivero/ign-transport-git/ignnode"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	metrics := api.DefaultMetrics

	n, err := ignnode.New(ignnode.Config{
		Host:      cfg.Host,
		Partition: cfg.Partition,
		Verbose:   cfg.Verbose,
		Metrics:   metrics,
	}, cfg.DiscoveryOptions()...)
	if err != nil {
		log.Fatalf("new node: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		log.Fatalf("start node: %v", err)
	}
	log.Printf("transportd: node started (partition=%q verbose=%v)", cfg.Partition, cfg.Verbose)

	metricsSrv := api.NewMetricsServer(cfg.MetricsAddr, func() any { return n.CurrentSnapshot() })
	metricsSrv.StartAsync()
	log.Printf("transportd: metrics/status server listening on %s", cfg.MetricsAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("transportd: shutting down...")
	if err := metricsSrv.Stop(); err != nil {
		log.Printf("transportd: metrics server stop: %v", err)
	}
	if err := n.Stop(); err != nil {
		log.Printf("transportd: node stop: %v", err)
	}
	log.Println("transportd: stopped")
}
