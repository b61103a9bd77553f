package index

import (
	"fmt"
	"sort"
)

// LabelIndexer assigns each distinct label value a dense integer index,
// ordered by descending frequency with ties broken lexically ascending.
// The ordering is deterministic: repeated fits over the same dataset yield
// an identical mapping.
type LabelIndexer struct {
	Classes []string
}

// Fit builds the label mapping over the full set of observed labels.
func (li *LabelIndexer) Fit(labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("index: no labels to fit")
	}
	counts := make(map[string]int, 8)
	for i, l := range labels {
		if l == "" {
			return fmt.Errorf("index: empty label at row %d", i)
		}
		counts[l]++
	}

	classes := make([]string, 0, len(counts))
	for l := range counts {
		classes = append(classes, l)
	}
	sort.Slice(classes, func(i, j int) bool {
		if counts[classes[i]] != counts[classes[j]] {
			return counts[classes[i]] > counts[classes[j]]
		}
		return classes[i] < classes[j]
	})
	li.Classes = classes
	return nil
}

// Index returns the dense index of a label. A label never seen during
// fitting is an explicit error, not a silent fallback.
func (li *LabelIndexer) Index(label string) (int, error) {
	for i, c := range li.Classes {
		if c == label {
			return i, nil
		}
	}
	return 0, fmt.Errorf("index: label %q not seen during indexing", label)
}

// Label returns the label value for a dense index.
func (li *LabelIndexer) Label(i int) (string, error) {
	if i < 0 || i >= len(li.Classes) {
		return "", fmt.Errorf("index: class index %d out of range [0,%d)", i, len(li.Classes))
	}
	return li.Classes[i], nil
}

// NumClasses returns the number of indexed classes.
func (li *LabelIndexer) NumClasses() int { return len(li.Classes) }
