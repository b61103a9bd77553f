package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pdm-trainer/internal/cfg"
	"pdm-trainer/internal/dataset"
	"pdm-trainer/internal/metrics"
	"pdm-trainer/internal/trainer"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// .env is optional; real deployments configure via CONFIG_FILE or env.
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	startMetricsServer(ctx, c)

	store, err := dataset.Open(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Str("data_path", c.DataPath).Msg("dataset store open failed")
	}
	defer store.Close()

	res, err := trainer.Run(ctx, c, store, m)
	if err != nil {
		log.Fatal().Err(err).Str("category", category(err)).Msg("training run aborted")
	}

	summary := log.Info().
		Str("model_type", string(res.Manifest.ModelType)).
		Str("artifact", res.Manifest.Path).
		Int("train_rows", res.TrainRows).
		Int("holdout_rows", res.HoldoutRows).
		Int("censored_rows", res.Censored).
		Strs("classes", res.Manifest.Classes)
	if res.Evaluation != nil {
		summary = summary.Float64("holdout_accuracy", res.Evaluation.Accuracy)
	}
	summary.Msg("training run complete")
}

// category names the failed precondition so the operator knows what to fix
// before re-running.
func category(err error) string {
	switch {
	case errors.Is(err, trainer.ErrSchema):
		return "schema"
	case errors.Is(err, trainer.ErrConfig):
		return "configuration"
	case errors.Is(err, trainer.ErrLeakage):
		return "leakage-window"
	case errors.Is(err, trainer.ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}

// startMetricsServer exposes /metrics and /health for the duration of the
// run when a port is configured.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	if c.MetricsPort == 0 {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
