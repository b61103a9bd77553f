// Package trainer orchestrates one training run: load the feature table,
// assemble the feature columns, fit the indexers over the full population,
// apply the time-aware split with censoring, fit the selected classifier on
// the training pool, and persist the artifact.
//
// Every failure is categorized (schema, configuration, leakage or
// persistence), the run aborts, and nothing is persisted. Retries are an
// external scheduling concern, as is serializing concurrent runs that
// target the same artifact key.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pdm-trainer/internal/artifact"
	"pdm-trainer/internal/cfg"
	"pdm-trainer/internal/dataset"
	"pdm-trainer/internal/evaluate"
	"pdm-trainer/internal/features"
	"pdm-trainer/internal/index"
	"pdm-trainer/internal/metrics"
	"pdm-trainer/internal/model"
	"pdm-trainer/internal/pipeline"
	"pdm-trainer/internal/split"
)

// Error categories. Callers match with errors.Is to report which
// precondition failed.
var (
	ErrSchema      = errors.New("schema error")
	ErrConfig      = errors.New("configuration error")
	ErrLeakage     = errors.New("label leakage error")
	ErrPersistence = errors.New("persistence error")
)

// Result summarizes a completed training run. Evaluation is nil when the
// holdout is empty or scoring it failed.
type Result struct {
	Pipeline    *pipeline.Pipeline
	Manifest    artifact.Manifest
	Evaluation  *evaluate.Results
	TrainRows   int
	HoldoutRows int
	Censored    int
}

// Run executes one training run end to end.
func Run(ctx context.Context, s cfg.Settings, store *dataset.Store, m *metrics.Metrics) (Result, error) {
	m.TrainingRuns.Inc()

	res, err := run(ctx, s, store, m)
	if err != nil {
		m.TrainingFailures.Inc()
		return Result{}, err
	}
	return res, nil
}

func run(ctx context.Context, s cfg.Settings, store *dataset.Store, m *metrics.Metrics) (Result, error) {
	table, err := store.LoadTable(s.DatasetName)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	m.RowsLoaded.Set(float64(table.Len()))
	log.Info().Str("dataset", s.DatasetName).Int("rows", table.Len()).Msg("dataset loaded")

	asm := features.NewAssembler(s.FeatureColumns, s.ExcludeColumns)
	cols, err := asm.Columns(table)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	m.FeatureCount.Set(float64(len(cols)))

	// Indexers are fitted over the FULL dataset before any split-based
	// filtering, so every class and categorical level observed anywhere
	// gets a stable index.
	fi := index.NewFeatureIndexer(s.MaxCategories, index.UnseenPolicy(s.UnseenPolicy))
	if err := fi.Fit(table, cols); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	li := &index.LabelIndexer{}
	if err := li.Fit(table.Labels); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	m.ClassCount.Set(float64(li.NumClasses()))
	log.Info().Int("features", len(cols)).Int("classes", li.NumClasses()).
		Int("categorical", countCategorical(fi)).Msg("indexers fitted on full dataset")

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sp, err := split.TimeSplit(table, s.CutoffTime, s.CensorWindow, split.CensorPolicy(s.CensorPolicy), s.NonFailureLabel)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if sp.Train.Len() == 0 {
		return Result{}, fmt.Errorf("%w: training pool empty at cutoff %s", ErrConfig, s.CutoffTime.Format(time.RFC3339))
	}
	if err := split.VerifyNoLeakage(sp.Train, s.CutoffTime, s.CensorWindow, s.NonFailureLabel); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrLeakage, err)
	}
	m.RowsTraining.Set(float64(sp.Train.Len()))
	m.RowsCensored.Set(float64(sp.Censored))
	log.Info().
		Time("cutoff", s.CutoffTime).
		Dur("censor_window", s.CensorWindow).
		Str("censor_policy", s.CensorPolicy).
		Int("train_rows", sp.Train.Len()).
		Int("holdout_rows", sp.Holdout.Len()).
		Int("censored_rows", sp.Censored).
		Msg("time-aware split applied")

	mcfg, known := model.Resolve(s.ModelType)
	if !known {
		log.Warn().Str("token", s.ModelType).Str("default", string(model.DefaultType)).
			Msg("unrecognized model type token, using documented default")
	}
	if err := mcfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	p, err := pipeline.New(cols, fi, li, mcfg)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	if err := p.Fit(sp.Train); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	m.FitDuration.Observe(time.Since(start).Seconds())
	log.Info().Str("model_type", string(mcfg.Type)).Dur("fit_duration", time.Since(start)).Msg("model fitted")

	// Holdout scoring is advisory: a failure here never blocks the save.
	var eval *evaluate.Results
	if sp.Holdout.Len() > 0 {
		eval, err = evaluate.Run(p, sp.Holdout)
		if err != nil {
			log.Warn().Err(err).Msg("holdout evaluation failed")
			eval = nil
		} else {
			m.HoldoutAccuracy.Set(eval.Accuracy)
			log.Info().Int("rows", eval.Rows).Float64("accuracy", eval.Accuracy).
				Float64("macro_f1", eval.MacroF1).Msg("holdout evaluated")
		}
	}

	astore, err := artifact.NewStore(s.ArtifactDir)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	manifest, err := astore.Save(p)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	m.ArtifactSaves.Inc()
	log.Info().Str("path", manifest.Path).Str("version", manifest.Version).Msg("artifact saved")

	return Result{
		Pipeline:    p,
		Manifest:    manifest,
		Evaluation:  eval,
		TrainRows:   sp.Train.Len(),
		HoldoutRows: sp.Holdout.Len(),
		Censored:    sp.Censored,
	}, nil
}

func countCategorical(fi *index.FeatureIndexer) int {
	n := 0
	for _, m := range fi.Metas {
		if m.Categorical {
			n++
		}
	}
	return n
}
