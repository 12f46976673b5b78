package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prismworks/prism/internal/observability"
	"github.com/prismworks/prism/internal/tracing"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Prometheus metrics until interrupted",
	Long: `Expose the process metrics endpoint. Useful when Prism is embedded as
a long-running worker and scraped by Prometheus.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9090", "listen address for /metrics")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	if err := tracing.Init(tracing.Options{
		ServiceName:    "prism",
		ServiceVersion: GetVersion(),
		SampleRatio:    cfg.Tracing.SampleRatio,
	}); err != nil {
		log.Warn().Err(err).Msg("OpenTelemetry init failed, continuing without traces")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("OpenTelemetry shutdown failed")
		}
	}()

	observability.EnsureRegistered()

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())

	server := &http.Server{Addr: serveAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serveAddr).Msg("Metrics server listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
