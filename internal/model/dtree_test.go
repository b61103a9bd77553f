package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separableData returns a 3-class problem split cleanly on the first
// feature; the second feature is noise shared across classes.
func separableData() ([][]float64, []int) {
	var X [][]float64
	var y []int
	for i := 0; i < 20; i++ {
		noise := float64(i % 5)
		X = append(X, []float64{1.0 + noise*0.01, noise})
		y = append(y, 0)
		X = append(X, []float64{5.0 + noise*0.01, noise})
		y = append(y, 1)
		X = append(X, []float64{9.0 + noise*0.01, noise})
		y = append(y, 2)
	}
	return X, y
}

func TestDecisionTree_FitPredictSeparable(t *testing.T) {
	X, y := separableData()
	tree := NewDecisionTree(DecisionTreeConfig())
	require.NoError(t, tree.Fit(X, y, FitMeta{NumClasses: 3}))

	preds, err := tree.Predict(X)
	require.NoError(t, err)
	for i := range y {
		assert.Equal(t, y[i], preds[i], "row %d misclassified", i)
	}

	pred, err := tree.PredictOne([]float64{5.2, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, pred)
}

func TestDecisionTree_Deterministic(t *testing.T) {
	X, y := separableData()

	first := NewDecisionTree(DecisionTreeConfig())
	require.NoError(t, first.Fit(X, y, FitMeta{NumClasses: 3}))
	want, err := first.Predict(X)
	require.NoError(t, err)

	for run := 0; run < 5; run++ {
		tree := NewDecisionTree(DecisionTreeConfig())
		require.NoError(t, tree.Fit(X, y, FitMeta{NumClasses: 3}))
		got, err := tree.Predict(X)
		require.NoError(t, err)
		assert.Equal(t, want, got, "run %d diverged", run)
	}
}

func TestDecisionTree_CategoricalEqualitySplit(t *testing.T) {
	// Encoded categorical feature: category index 2 maps to class 1, all
	// other categories to class 0. A threshold split on the raw index
	// cannot isolate value 2 in one comparison; an equality split can.
	var X [][]float64
	var y []int
	for i := 0; i < 10; i++ {
		for cat := 0; cat < 4; cat++ {
			X = append(X, []float64{float64(cat)})
			if cat == 2 {
				y = append(y, 1)
			} else {
				y = append(y, 0)
			}
		}
	}
	cfg := DecisionTreeConfig()
	cfg.MaxDepth = 1
	tree := NewDecisionTree(cfg)
	require.NoError(t, tree.Fit(X, y, FitMeta{NumClasses: 2, Categorical: []bool{true}}))

	require.NotNil(t, tree.Root)
	require.False(t, tree.Root.Leaf, "depth-1 equality split should exist")
	assert.True(t, tree.Root.Cat)
	assert.Equal(t, 2.0, tree.Root.Threshold)

	pred, err := tree.PredictOne([]float64{2})
	require.NoError(t, err)
	assert.Equal(t, 1, pred)
	pred, err = tree.PredictOne([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, 0, pred)
}

func TestDecisionTree_NaNGoesRight(t *testing.T) {
	X := [][]float64{{1}, {1}, {1}, {9}, {9}, {9}}
	y := []int{0, 0, 0, 1, 1, 1}
	tree := NewDecisionTree(DecisionTreeConfig())
	require.NoError(t, tree.Fit(X, y, FitMeta{NumClasses: 2}))

	pred, err := tree.PredictOne([]float64{math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, 1, pred, "NaN should take the right branch")
}

func TestDecisionTree_MaxDepthLimit(t *testing.T) {
	X, y := separableData()
	cfg := DecisionTreeConfig()
	cfg.MaxDepth = 1
	tree := NewDecisionTree(cfg)
	require.NoError(t, tree.Fit(X, y, FitMeta{NumClasses: 3}))

	// One split yields two leaves; a stump cannot separate three classes.
	require.False(t, tree.Root.Leaf)
	assert.True(t, tree.Root.Left.Leaf)
	assert.True(t, tree.Root.Right.Leaf)
}

func TestDecisionTree_FitValidation(t *testing.T) {
	tree := NewDecisionTree(DecisionTreeConfig())

	assert.Error(t, tree.Fit(nil, nil, FitMeta{NumClasses: 2}))
	assert.Error(t, tree.Fit([][]float64{{1}, {2}}, []int{0}, FitMeta{NumClasses: 2}))
	assert.Error(t, tree.Fit([][]float64{{1}, {2}}, []int{0, 1}, FitMeta{NumClasses: 1}))
	assert.Error(t, tree.Fit([][]float64{{1}, {2, 3}}, []int{0, 1}, FitMeta{NumClasses: 2}))
	assert.Error(t, tree.Fit([][]float64{{1}, {2}}, []int{0, 5}, FitMeta{NumClasses: 2}))
	assert.Error(t, tree.Fit([][]float64{{1}, {2}}, []int{0, 1}, FitMeta{NumClasses: 2, Categorical: []bool{true, false}}))

	_, err := tree.PredictOne([]float64{1})
	assert.Error(t, err, "unfitted tree must refuse to predict")
}

func TestImpurityFunctions(t *testing.T) {
	assert.Equal(t, 0.0, gini([]int{10, 0}))
	assert.InDelta(t, 0.5, gini([]int{5, 5}), 1e-9)
	assert.Equal(t, 0.0, entropy([]int{10, 0}))
	assert.InDelta(t, 1.0, entropy([]int{5, 5}), 1e-9)
	assert.True(t, isPure([]int{0, 7, 0}))
	assert.False(t, isPure([]int{1, 7, 0}))
}
