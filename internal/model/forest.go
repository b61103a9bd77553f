package model

import (
	"fmt"
	"math/rand"
	"sync"
)

// RandomForest is a bagged ensemble of decision trees with per-split
// feature subsampling and per-tree bootstrap row sampling.
type RandomForest struct {
	Cfg        Config
	Trees      []*DecisionTree
	NumClasses int
}

// NewRandomForest returns an unfitted forest for the given configuration.
func NewRandomForest(c Config) *RandomForest {
	return &RandomForest{Cfg: c}
}

// Fit trains NumTrees trees in parallel, each on a bootstrap sample of
// SubsampleRate * n rows drawn with replacement. Tree seeds derive from the
// forest seed so a fit is reproducible.
func (rf *RandomForest) Fit(X [][]float64, y []int, meta FitMeta) error {
	if len(X) == 0 {
		return fmt.Errorf("model: empty training matrix")
	}
	n := len(X)
	sampleSize := int(rf.Cfg.SubsampleRate * float64(n))
	if sampleSize < 1 {
		sampleSize = 1
	}

	rf.NumClasses = meta.NumClasses
	rf.Trees = make([]*DecisionTree, rf.Cfg.NumTrees)

	var wg sync.WaitGroup
	errCh := make(chan error, rf.Cfg.NumTrees)
	for k := 0; k < rf.Cfg.NumTrees; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()

			treeCfg := rf.Cfg
			treeCfg.Type = TypeDecisionTree
			treeCfg.Seed = rf.Cfg.Seed + int64(k)
			rng := rand.New(rand.NewSource(treeCfg.Seed))

			sample := make([]int, sampleSize)
			for j := range sample {
				sample[j] = rng.Intn(n)
			}

			tree := NewDecisionTree(treeCfg)
			if err := tree.fitIndices(X, y, sample, meta, rng); err != nil {
				errCh <- fmt.Errorf("tree %d: %w", k, err)
				return
			}
			rf.Trees[k] = tree
		}(k)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// Predict returns the majority-vote class index per row. Ties resolve to
// the lowest class index, which is the most frequent label overall under
// the frequency-ordered label indexing.
func (rf *RandomForest) Predict(X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i := range X {
		pred, err := rf.PredictOne(X[i])
		if err != nil {
			return nil, err
		}
		out[i] = pred
	}
	return out, nil
}

// PredictOne returns the majority-vote class index for one feature vector.
func (rf *RandomForest) PredictOne(x []float64) (int, error) {
	if len(rf.Trees) == 0 {
		return 0, fmt.Errorf("model: forest not fitted")
	}
	votes := make([]int, rf.NumClasses)
	for _, tree := range rf.Trees {
		pred, err := tree.PredictOne(x)
		if err != nil {
			return 0, err
		}
		votes[pred]++
	}
	return argmax(votes), nil
}
