package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Node is one tree node, exported so the fitted tree survives gob
// round-trips through the artifact store.
type Node struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Cat       bool // equality split on an encoded categorical value
	Left      *Node
	Right     *Node
	N         int
	Pred      int
	Probs     []float64
}

// DecisionTree is a CART-style multiclass classifier. Numeric features
// split on "x <= threshold", categorical features on "x == threshold";
// missing values (NaN) and unmatched categories take the right branch both
// at fit and at predict time.
type DecisionTree struct {
	Cfg        Config
	Root       *Node
	NumClasses int
	CatCols    []bool
}

// NewDecisionTree returns an unfitted tree for the given configuration.
func NewDecisionTree(c Config) *DecisionTree {
	return &DecisionTree{Cfg: c}
}

// Fit trains the tree on the full sample set.
func (t *DecisionTree) Fit(X [][]float64, y []int, meta FitMeta) error {
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(t.Cfg.Seed))
	return t.fitIndices(X, y, idx, meta, rng)
}

// fitIndices trains on a subset of rows, identified by index. The forest
// uses this for bootstrap samples without copying the matrix.
func (t *DecisionTree) fitIndices(X [][]float64, y []int, idx []int, meta FitMeta, rng *rand.Rand) error {
	if len(X) == 0 {
		return fmt.Errorf("model: empty training matrix")
	}
	if len(y) != len(X) {
		return fmt.Errorf("model: %d rows but %d labels", len(X), len(y))
	}
	if meta.NumClasses < 2 {
		return fmt.Errorf("model: need at least 2 classes, got %d", meta.NumClasses)
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return fmt.Errorf("model: row %d has %d features, want %d", i, len(X[i]), p)
		}
	}
	for _, i := range idx {
		if y[i] < 0 || y[i] >= meta.NumClasses {
			return fmt.Errorf("model: label index %d out of range [0,%d)", y[i], meta.NumClasses)
		}
	}
	cat := meta.Categorical
	if cat == nil {
		cat = make([]bool, p)
	}
	if len(cat) != p {
		return fmt.Errorf("model: %d categorical flags for %d features", len(cat), p)
	}

	t.NumClasses = meta.NumClasses
	t.CatCols = cat
	t.Root = t.build(X, y, idx, 0, rng)
	return nil
}

// Predict returns dense class indices for each row.
func (t *DecisionTree) Predict(X [][]float64) ([]int, error) {
	out := make([]int, len(X))
	for i := range X {
		pred, err := t.PredictOne(X[i])
		if err != nil {
			return nil, err
		}
		out[i] = pred
	}
	return out, nil
}

// PredictOne returns the dense class index for one feature vector.
func (t *DecisionTree) PredictOne(x []float64) (int, error) {
	if t.Root == nil {
		return 0, fmt.Errorf("model: tree not fitted")
	}
	node := t.Root
	for !node.Leaf {
		v := x[node.Feature]
		goLeft := false
		if !math.IsNaN(v) {
			if node.Cat {
				goLeft = v == node.Threshold
			} else {
				goLeft = v <= node.Threshold
			}
		}
		if goLeft {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Pred, nil
}

type candidate struct {
	gain      float64
	feature   int
	threshold float64
	cat       bool
	left      []int
	right     []int
}

func (t *DecisionTree) build(X [][]float64, y []int, idx []int, depth int, rng *rand.Rand) *Node {
	counts := make([]int, t.NumClasses)
	for _, i := range idx {
		counts[y[i]]++
	}
	node := &Node{N: len(idx), Pred: argmax(counts), Probs: countsToProbs(counts)}

	if depth >= t.Cfg.MaxDepth || isPure(counts) || len(idx) < 2*t.Cfg.MinInstancesPerLeaf {
		node.Leaf = true
		return node
	}

	p := len(X[0])
	feats := rng.Perm(p)[:maxFeaturesFor(t.Cfg.FeatureSubset, p)]

	parent := t.impurity(counts)
	best := candidate{gain: t.Cfg.MinInfoGain, feature: -1}
	for _, f := range feats {
		var c candidate
		if t.CatCols[f] {
			c = t.bestCategoricalSplit(X, y, idx, f, parent)
		} else {
			c = t.bestNumericSplit(X, y, idx, f, parent)
		}
		if c.feature != -1 && c.gain > best.gain {
			best = c
		}
	}

	if best.feature == -1 {
		node.Leaf = true
		return node
	}

	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Cat = best.cat
	node.Left = t.build(X, y, best.left, depth+1, rng)
	node.Right = t.build(X, y, best.right, depth+1, rng)
	return node
}

// bestCategoricalSplit tries one-vs-rest equality splits over the encoded
// category values present in the subset.
func (t *DecisionTree) bestCategoricalSplit(X [][]float64, y []int, idx []int, f int, parent float64) candidate {
	best := candidate{gain: t.Cfg.MinInfoGain, feature: -1}

	values := make(map[float64]struct{})
	for _, i := range idx {
		v := X[i][f]
		if !math.IsNaN(v) {
			values[v] = struct{}{}
		}
	}
	if len(values) < 2 {
		return best
	}
	ordered := make([]float64, 0, len(values))
	for v := range values {
		ordered = append(ordered, v)
	}
	sort.Float64s(ordered)

	for _, v := range ordered {
		left := make([]int, 0, len(idx))
		right := make([]int, 0, len(idx))
		for _, i := range idx {
			if X[i][f] == v {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		if g, ok := t.splitGain(y, left, right, parent); ok && g > best.gain {
			best = candidate{gain: g, feature: f, threshold: v, cat: true, left: left, right: right}
		}
	}
	return best
}

// bestNumericSplit scans thresholds at midpoints between adjacent distinct
// values. When the feature has more distinct values than MaxBins, candidate
// thresholds are thinned to MaxBins-1 evenly ranked boundaries, matching the
// discretization-bin contract.
func (t *DecisionTree) bestNumericSplit(X [][]float64, y []int, idx []int, f int, parent float64) candidate {
	best := candidate{gain: t.Cfg.MinInfoGain, feature: -1}

	type cell struct {
		v float64
		i int
	}
	valid := make([]cell, 0, len(idx))
	var nans []int
	for _, i := range idx {
		v := X[i][f]
		if math.IsNaN(v) {
			nans = append(nans, i)
		} else {
			valid = append(valid, cell{v, i})
		}
	}
	if len(valid) < 2 {
		return best
	}
	sort.Slice(valid, func(a, b int) bool { return valid[a].v < valid[b].v })

	// Boundary positions between runs of equal values.
	var bounds []int
	for s := 1; s < len(valid); s++ {
		if valid[s].v != valid[s-1].v {
			bounds = append(bounds, s)
		}
	}
	if len(bounds) == 0 {
		return best
	}
	if len(bounds) > t.Cfg.MaxBins-1 {
		thinned := make([]int, 0, t.Cfg.MaxBins-1)
		step := float64(len(bounds)) / float64(t.Cfg.MaxBins-1)
		for k := 0; k < t.Cfg.MaxBins-1; k++ {
			thinned = append(thinned, bounds[int(float64(k)*step)])
		}
		bounds = thinned
	}

	for _, s := range bounds {
		thr := (valid[s-1].v + valid[s].v) / 2

		left := make([]int, 0, s)
		for _, c := range valid[:s] {
			left = append(left, c.i)
		}
		right := make([]int, 0, len(valid)-s+len(nans))
		for _, c := range valid[s:] {
			right = append(right, c.i)
		}
		right = append(right, nans...)

		if g, ok := t.splitGain(y, left, right, parent); ok && g > best.gain {
			best = candidate{gain: g, feature: f, threshold: thr, left: left, right: right}
		}
	}
	return best
}

func (t *DecisionTree) splitGain(y []int, left, right []int, parent float64) (float64, bool) {
	if len(left) < t.Cfg.MinInstancesPerLeaf || len(right) < t.Cfg.MinInstancesPerLeaf {
		return 0, false
	}
	lc := make([]int, t.NumClasses)
	for _, i := range left {
		lc[y[i]]++
	}
	rc := make([]int, t.NumClasses)
	for _, i := range right {
		rc[y[i]]++
	}
	n := float64(len(left) + len(right))
	weighted := float64(len(left))/n*t.impurity(lc) + float64(len(right))/n*t.impurity(rc)
	return parent - weighted, true
}

func (t *DecisionTree) impurity(counts []int) float64 {
	if t.Cfg.Impurity == ImpurityEntropy {
		return entropy(counts)
	}
	return gini(counts)
}

func gini(counts []int) float64 {
	n := 0.0
	for _, c := range counts {
		n += float64(c)
	}
	if n == 0 {
		return 0
	}
	res := 0.0
	for _, c := range counts {
		p := float64(c) / n
		res += p * (1 - p)
	}
	return res
}

func entropy(counts []int) float64 {
	n := 0.0
	for _, c := range counts {
		n += float64(c)
	}
	if n == 0 {
		return 0
	}
	res := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		res -= p * math.Log2(p)
	}
	return res
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func countsToProbs(counts []int) []float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	probs := make([]float64, len(counts))
	if n == 0 {
		return probs
	}
	for i, c := range counts {
		probs[i] = float64(c) / float64(n)
	}
	return probs
}

func argmax(counts []int) int {
	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	return best
}
