// Package model implements the classifier configurations and the
// decision-tree family classifiers used by the training pipeline.
//
// The supported model types form a closed set: a single CART decision tree
// and a bagged random-forest ensemble. A gradient-boosting variant is not
// represented at all because it only supports binary targets and the
// failure label is inherently multiclass.
package model

import (
	"fmt"
	"math"
)

// Type is a supported classifier family token.
type Type string

const (
	TypeDecisionTree Type = "DecisionTree"
	TypeRandomForest Type = "RandomForest"

	// DefaultType is the documented fallback for empty or unrecognized
	// model-type tokens.
	DefaultType = TypeRandomForest
)

// Impurity is the split quality criterion.
type Impurity string

const (
	ImpurityGini    Impurity = "gini"
	ImpurityEntropy Impurity = "entropy"
)

// FeatureSubset is the per-split feature sampling strategy.
type FeatureSubset string

const (
	SubsetAll  FeatureSubset = "all"
	SubsetSqrt FeatureSubset = "sqrt"
)

const defaultSeed = 1

// Config is the immutable record of a chosen algorithm and its
// hyperparameters. NumTrees, FeatureSubset and SubsampleRate only apply to
// the forest.
type Config struct {
	Type                Type          `json:"type"`
	MaxDepth            int           `json:"max_depth"`
	MaxBins             int           `json:"max_bins"`
	MinInstancesPerLeaf int           `json:"min_instances_per_leaf"`
	MinInfoGain         float64       `json:"min_info_gain"`
	Impurity            Impurity      `json:"impurity"`
	NumTrees            int           `json:"num_trees,omitempty"`
	FeatureSubset       FeatureSubset `json:"feature_subset,omitempty"`
	SubsampleRate       float64       `json:"subsample_rate,omitempty"`
	Seed                int64         `json:"seed"`
}

// DecisionTreeConfig returns the default single-tree configuration.
func DecisionTreeConfig() Config {
	return Config{
		Type:                TypeDecisionTree,
		MaxDepth:            15,
		MaxBins:             32,
		MinInstancesPerLeaf: 1,
		MinInfoGain:         0.0,
		Impurity:            ImpurityGini,
		FeatureSubset:       SubsetAll,
		Seed:                defaultSeed,
	}
}

// RandomForestConfig returns the default ensemble configuration.
func RandomForestConfig() Config {
	c := DecisionTreeConfig()
	c.Type = TypeRandomForest
	c.NumTrees = 200
	c.FeatureSubset = SubsetSqrt
	c.SubsampleRate = 0.632
	return c
}

// Resolve maps a model-type token to its configuration. Empty or unknown
// tokens resolve to the configuration of DefaultType; the second return
// value reports whether the token was recognized so the caller can log the
// fallback instead of silently training an unintended classifier.
func Resolve(token string) (Config, bool) {
	switch Type(token) {
	case TypeDecisionTree:
		return DecisionTreeConfig(), true
	case TypeRandomForest:
		return RandomForestConfig(), true
	default:
		return RandomForestConfig(), false
	}
}

// Validate rejects clearly invalid configurations.
func (c Config) Validate() error {
	switch c.Type {
	case TypeDecisionTree, TypeRandomForest:
	default:
		return fmt.Errorf("model: unsupported type %q", c.Type)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("model: max depth must be >= 1, got %d", c.MaxDepth)
	}
	if c.MaxBins < 2 {
		return fmt.Errorf("model: max bins must be >= 2, got %d", c.MaxBins)
	}
	if c.MinInstancesPerLeaf < 1 {
		return fmt.Errorf("model: min instances per leaf must be >= 1, got %d", c.MinInstancesPerLeaf)
	}
	if c.MinInfoGain < 0 {
		return fmt.Errorf("model: min info gain must be >= 0, got %f", c.MinInfoGain)
	}
	switch c.Impurity {
	case ImpurityGini, ImpurityEntropy:
	default:
		return fmt.Errorf("model: unknown impurity criterion %q", c.Impurity)
	}
	if c.Type == TypeRandomForest {
		if c.NumTrees < 1 {
			return fmt.Errorf("model: tree count must be >= 1, got %d", c.NumTrees)
		}
		if c.SubsampleRate <= 0 || c.SubsampleRate > 1 {
			return fmt.Errorf("model: subsample rate must be in (0,1], got %f", c.SubsampleRate)
		}
	}
	switch c.FeatureSubset {
	case SubsetAll, SubsetSqrt:
	default:
		return fmt.Errorf("model: unknown feature subset strategy %q", c.FeatureSubset)
	}
	return nil
}

// FitMeta carries the per-fit dataset facts a classifier needs beyond the
// raw matrix: the class count fixed by the label indexer over the full
// population, and which encoded columns are categorical.
type FitMeta struct {
	NumClasses  int
	Categorical []bool
}

// Classifier is the common fit/predict contract of the tree family.
type Classifier interface {
	Fit(X [][]float64, y []int, meta FitMeta) error
	Predict(X [][]float64) ([]int, error)
	PredictOne(x []float64) (int, error)
}

// NewClassifier constructs the classifier for a validated configuration.
func NewClassifier(c Config) (Classifier, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Type {
	case TypeDecisionTree:
		return NewDecisionTree(c), nil
	case TypeRandomForest:
		return NewRandomForest(c), nil
	}
	return nil, fmt.Errorf("model: unsupported type %q", c.Type)
}

// maxFeaturesFor resolves the per-split feature sample size.
func maxFeaturesFor(strategy FeatureSubset, p int) int {
	if strategy == SubsetSqrt {
		k := int(math.Sqrt(float64(p)))
		if k < 1 {
			k = 1
		}
		return k
	}
	return p
}
