package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/contextforge/contextforge/pkg/coordinator"
	"github.com/contextforge/contextforge/pkg/log"
	"github.com/contextforge/contextforge/pkg/metrics"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator daemon",
	Long: `Starts the remote-agent coordinator: the dispatcher and health
monitor loops, plus an HTTP endpoint exposing Prometheus metrics.
Task and agent records persist to the configured key-value store, with
graceful degradation to memory when it cannot be opened.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		kvPath := cfg.KVPath
		if kvPath == "" && cfg.WorkspaceRoot != "" {
			kvPath = filepath.Join(cfg.WorkspaceRoot, ".contextforge", "coordinator.db")
			if err := os.MkdirAll(filepath.Dir(kvPath), 0755); err != nil {
				kvPath = ""
			}
		}
		kv := coordinator.OpenBackend(kvPath)
		defer kv.Close()

		registry := coordinator.NewRegistry(kv, cfg.HeartbeatTimeout)
		queue := coordinator.NewQueue(kv, cfg.MaxQueueSize)
		coord := coordinator.New(registry, queue, coordinator.Config{
			DispatchInterval:    cfg.DispatchInterval,
			HealthCheckInterval: cfg.HealthCheckInterval,
		})
		if err := coord.Start(); err != nil {
			return err
		}
		defer coord.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, "ok")
		})
		server := &http.Server{Addr: serveAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				l := log.WithComponent("serve")
				l.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer server.Close()

		color.Cyan("Coordinator running on %s (Ctrl+C to stop)", serveAddr)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9464", "metrics listen address")
}
