package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"pdm-trainer/internal/artifact"
	"pdm-trainer/internal/dataset"
	"pdm-trainer/internal/evaluate"
	"pdm-trainer/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pdmeval loads a persisted pipeline artifact and scores it against a
// labeled feature table, writing summary, CSV and JSON reports.
func main() {
	var (
		dataPath    = flag.String("data", "data", "Path to the dataset store directory")
		datasetName = flag.String("name", "telemetry_features", "Dataset to evaluate against")
		artifactDir = flag.String("artifacts", "artifacts", "Artifact directory")
		modelType   = flag.String("model", string(model.DefaultType), "Artifact key: DecisionTree or RandomForest")
		outputPath  = flag.String("output", "reports", "Output directory for reports")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		startDate   = flag.String("start", "", "Only score rows on or after this date (YYYY-MM-DD)")
		endDate     = flag.String("end", "", "Only score rows before this date (YYYY-MM-DD)")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	astore, err := artifact.NewStore(*artifactDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open artifact store")
	}
	p, err := astore.Load(model.Type(*modelType))
	if err != nil {
		log.Fatal().Err(err).Str("model", *modelType).Msg("Failed to load artifact")
	}
	log.Info().Str("model", *modelType).Time("trained_at", p.TrainedAt).
		Int("trained_rows", p.TrainedRows).Msg("Artifact loaded")

	store, err := dataset.Open(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open dataset store")
	}
	defer store.Close()

	table, err := store.LoadTable(*datasetName)
	if err != nil {
		log.Fatal().Err(err).Str("dataset", *datasetName).Msg("Failed to load dataset")
	}

	table, err = filterByDate(table, *startDate, *endDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid date filter")
	}
	log.Info().Str("dataset", *datasetName).Int("rows", table.Len()).Msg("Dataset loaded")

	results, err := evaluate.Run(p, table)
	if err != nil {
		log.Fatal().Err(err).Msg("Evaluation failed")
	}

	reporter := evaluate.NewReporter(results, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}
	reporter.PrintSummary()

	log.Info().Str("output", *outputPath).Msg("Evaluation completed")
}

// filterByDate narrows the table to [start, end) when either bound is given.
func filterByDate(t *dataset.Table, startDate, endDate string) (*dataset.Table, error) {
	if startDate == "" && endDate == "" {
		return t, nil
	}

	start := time.Time{}
	end := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	var err error
	if startDate != "" {
		start, err = time.Parse("2006-01-02", startDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
		}
	}
	if endDate != "" {
		end, err = time.Parse("2006-01-02", endDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end date %q: %w", endDate, err)
		}
	}

	var keep []int
	for i, ts := range t.Timestamps {
		if !ts.Before(start) && ts.Before(end) {
			keep = append(keep, i)
		}
	}
	return t.Select(keep), nil
}
