package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"live-transcriber/internal/bootstrap"
	"live-transcriber/internal/config"
	"live-transcriber/internal/domain"
	"live-transcriber/internal/logging"
	"live-transcriber/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("live-transcriber: %v", err)
	}
}

// run records from stdin until SIGINT or SIGTERM, serving operational
// endpoints on the side.
func run() error {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.LogMode())
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)

	app, err := bootstrap.New(*cfg, logger, met)
	if err != nil {
		return fmt.Errorf("bootstrap app: %w", err)
	}
	defer app.Close()

	for _, item := range app.GetDiagnostics().Items {
		if item.Status == domain.DiagnosticStatusFail {
			logger.Warn("diagnostic check failed",
				"check", item.ID, "message", item.Message, "hint", item.Hint)
		}
	}

	var server *http.Server
	if cfg.HTTP.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		server = &http.Server{Addr: cfg.HTTP.Address, Handler: mux}
		go func() {
			logger.Info("http listener started", "address", cfg.HTTP.Address)
			if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				logger.Error("http listener", "error", serveErr)
			}
		}()
	}

	if err := app.StartRecording(); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	logger.Info("recording from stdin, stop with SIGINT or SIGTERM")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	if err := app.StopRecording(); err != nil {
		logger.Warn("stop recording", "error", err)
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
	return nil
}

// defaultConfigPath is the config location under the user's home directory.
func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".live-transcriber", "config.yaml")
}
