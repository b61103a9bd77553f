// Package index builds the categorical/continuous feature metadata and the
// label-to-index mapping used by the training pipeline.
//
// Both indexers are fitted exactly once, over the entire available dataset
// rather than a training split, so every class and categorical level
// observed anywhere is assigned a stable dense index. Refitting on a split
// would risk index mismatch between training and scoring.
package index

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"pdm-trainer/internal/dataset"
)

// UnseenPolicy controls what happens when a value absent from the fitted
// metadata shows up at transform time.
type UnseenPolicy string

const (
	// UnseenReject fails the transform with a descriptive error.
	UnseenReject UnseenPolicy = "reject"
	// UnseenOther maps the value to a reserved trailing bucket.
	UnseenOther UnseenPolicy = "other"
)

// DefaultMaxCategories is the distinct-value-count threshold below which a
// numeric feature is treated as categorical.
const DefaultMaxCategories = 10

// FeatureMeta is the fitted metadata for one input feature.
type FeatureMeta struct {
	Name        string
	Categorical bool
	// Categories holds the category levels in dense-index order:
	// lexically ascending for string features, numerically ascending
	// (formatted) for low-cardinality numeric features.
	Categories []string
}

func (m *FeatureMeta) categoryIndex(cat string) (int, bool) {
	i := sort.SearchStrings(m.Categories, cat)
	if i < len(m.Categories) && m.Categories[i] == cat {
		return i, true
	}
	// Numeric-derived categories are ordered numerically, not lexically,
	// so fall back to a scan.
	for j, c := range m.Categories {
		if c == cat {
			return j, true
		}
	}
	return 0, false
}

// FeatureIndexer decides categorical vs. continuous per feature and holds
// the category-to-index maps. Fit once over the full population.
type FeatureIndexer struct {
	MaxCategories int
	Policy        UnseenPolicy
	Metas         []FeatureMeta
}

// NewFeatureIndexer returns an unfitted indexer. maxCategories <= 0 selects
// DefaultMaxCategories.
func NewFeatureIndexer(maxCategories int, policy UnseenPolicy) *FeatureIndexer {
	if maxCategories <= 0 {
		maxCategories = DefaultMaxCategories
	}
	if policy == "" {
		policy = UnseenReject
	}
	return &FeatureIndexer{MaxCategories: maxCategories, Policy: policy}
}

// Fit builds per-feature metadata over the given table and column set.
func (fi *FeatureIndexer) Fit(t *dataset.Table, cols []string) error {
	fi.Metas = fi.Metas[:0]
	for _, name := range cols {
		c, ok := t.Column(name)
		if !ok {
			return fmt.Errorf("index: feature column %q not in schema", name)
		}
		meta := FeatureMeta{Name: name}
		switch c.Kind {
		case dataset.KindCategorical:
			meta.Categorical = true
			meta.Categories = distinctStrings(c.Cats)
		case dataset.KindNumeric:
			distinct := distinctFloats(c.Nums)
			if len(distinct) <= fi.MaxCategories {
				meta.Categorical = true
				meta.Categories = make([]string, len(distinct))
				for i, v := range distinct {
					meta.Categories[i] = formatCategory(v)
				}
			}
		}
		fi.Metas = append(fi.Metas, meta)
	}
	return nil
}

// Meta returns the fitted metadata for a feature name.
func (fi *FeatureIndexer) Meta(name string) (FeatureMeta, bool) {
	for _, m := range fi.Metas {
		if m.Name == name {
			return m, true
		}
	}
	return FeatureMeta{}, false
}

// MaxCardinality returns the largest categorical level count across all
// fitted features. The model's discretization bin count must cover it.
func (fi *FeatureIndexer) MaxCardinality() int {
	max := 0
	for _, m := range fi.Metas {
		if m.Categorical && len(m.Categories) > max {
			max = len(m.Categories)
		}
	}
	return max
}

// Encoder returns the per-cell encoder applied during vectorization:
// continuous values pass through, categorical values map to their dense
// index, and unseen categories follow the configured policy.
func (fi *FeatureIndexer) Encoder() func(col dataset.Column, row int) (float64, error) {
	metas := make(map[string]*FeatureMeta, len(fi.Metas))
	for i := range fi.Metas {
		metas[fi.Metas[i].Name] = &fi.Metas[i]
	}

	return func(col dataset.Column, row int) (float64, error) {
		m, ok := metas[col.Name]
		if !ok {
			return 0, fmt.Errorf("no indexing metadata for feature %q", col.Name)
		}
		if !m.Categorical {
			return col.Nums[row], nil
		}

		var cat string
		if col.Kind == dataset.KindCategorical {
			cat = col.Cats[row]
		} else {
			v := col.Nums[row]
			if math.IsNaN(v) {
				return fi.unseen(m, "NaN")
			}
			cat = formatCategory(v)
		}
		if i, ok := m.categoryIndex(cat); ok {
			return float64(i), nil
		}
		return fi.unseen(m, cat)
	}
}

func (fi *FeatureIndexer) unseen(m *FeatureMeta, cat string) (float64, error) {
	if fi.Policy == UnseenOther {
		return float64(len(m.Categories)), nil
	}
	return 0, fmt.Errorf("feature %q: category %q not seen during indexing", m.Name, cat)
}

func distinctStrings(vals []string) []string {
	seen := make(map[string]struct{}, len(vals))
	var out []string
	for _, v := range vals {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func distinctFloats(vals []float64) []float64 {
	seen := make(map[float64]struct{}, len(vals))
	var out []float64
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func formatCategory(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
