// Package pipeline composes the fitted indexing metadata and a classifier
// into the single fit/predict unit that training produces and that the
// evaluation and scoring stages consume.
package pipeline

import (
	"fmt"
	"time"

	"pdm-trainer/internal/dataset"
	"pdm-trainer/internal/features"
	"pdm-trainer/internal/index"
	"pdm-trainer/internal/model"
)

// Pipeline is the composed unit of (feature columns, feature indexing
// metadata, label indexing metadata, fitted classifier). It is created by
// one Fit call over the training pool and never mutated afterwards;
// retraining produces a new pipeline.
//
// The indexers must already be fitted over the full population before Fit
// is called on the training split. Fit re-applies the same metadata that
// Predict will use, so training and scoring vectors always line up.
type Pipeline struct {
	FeatureCols []string
	Features    *index.FeatureIndexer
	Labels      *index.LabelIndexer
	Config      model.Config

	Model       model.Classifier
	TrainedRows int
	TrainedAt   time.Time
}

// New assembles an unfitted pipeline from pre-fitted indexers and a
// validated model configuration.
func New(cols []string, fi *index.FeatureIndexer, li *index.LabelIndexer, cfg model.Config) (*Pipeline, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("pipeline: no feature columns")
	}
	if fi == nil || len(fi.Metas) == 0 {
		return nil, fmt.Errorf("pipeline: feature indexer not fitted")
	}
	if li == nil || li.NumClasses() < 2 {
		return nil, fmt.Errorf("pipeline: label indexer needs at least 2 classes")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if maxCard := fi.MaxCardinality(); cfg.MaxBins < maxCard {
		return nil, fmt.Errorf("pipeline: max bins %d below largest categorical cardinality %d", cfg.MaxBins, maxCard)
	}
	return &Pipeline{FeatureCols: cols, Features: fi, Labels: li, Config: cfg}, nil
}

// Fit trains the classifier on the training pool in a single pass. It may
// be called exactly once.
func (p *Pipeline) Fit(train *dataset.Table) error {
	if p.Model != nil {
		return fmt.Errorf("pipeline: already fitted")
	}
	if train.Len() == 0 {
		return fmt.Errorf("pipeline: empty training pool")
	}

	X, err := p.vectorize(train)
	if err != nil {
		return err
	}

	y := make([]int, train.Len())
	for i, label := range train.Labels {
		ci, err := p.Labels.Index(label)
		if err != nil {
			return fmt.Errorf("pipeline: training row %d: %w", i, err)
		}
		y[i] = ci
	}

	clf, err := model.NewClassifier(p.Config)
	if err != nil {
		return err
	}
	if err := clf.Fit(X, y, model.FitMeta{
		NumClasses:  p.Labels.NumClasses(),
		Categorical: p.categoricalFlags(),
	}); err != nil {
		return err
	}

	p.Model = clf
	p.TrainedRows = train.Len()
	p.TrainedAt = time.Now().UTC()
	return nil
}

// Predict applies the baked-in indexing metadata and returns one label per
// row, always drawn from the indexed class set.
func (p *Pipeline) Predict(t *dataset.Table) ([]string, error) {
	indices, err := p.PredictIndexed(t)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(indices))
	for i, ci := range indices {
		label, err := p.Labels.Label(ci)
		if err != nil {
			return nil, err
		}
		out[i] = label
	}
	return out, nil
}

// PredictIndexed returns dense class indices, for evaluation collaborators
// that work on the indexed encoding directly.
func (p *Pipeline) PredictIndexed(t *dataset.Table) ([]int, error) {
	if p.Model == nil {
		return nil, fmt.Errorf("pipeline: not fitted")
	}
	X, err := p.vectorize(t)
	if err != nil {
		return nil, err
	}
	return p.Model.Predict(X)
}

func (p *Pipeline) vectorize(t *dataset.Table) ([][]float64, error) {
	asm := features.NewAssembler(p.FeatureCols, nil)
	cols, err := asm.Columns(t)
	if err != nil {
		return nil, err
	}
	if len(cols) != len(p.FeatureCols) {
		return nil, fmt.Errorf("pipeline: table provides %d of %d feature columns", len(cols), len(p.FeatureCols))
	}
	return asm.Vectorize(t, p.FeatureCols, p.Features.Encoder())
}

func (p *Pipeline) categoricalFlags() []bool {
	flags := make([]bool, len(p.FeatureCols))
	for i, name := range p.FeatureCols {
		if m, ok := p.Features.Meta(name); ok {
			flags[i] = m.Categorical
		}
	}
	return flags
}
