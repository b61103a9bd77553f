// Package evaluate scores a fitted pipeline against a labeled table,
// typically the post-cutoff holdout left over by the time-aware split.
package evaluate

import (
	"fmt"
	"time"

	"pdm-trainer/internal/dataset"
	"pdm-trainer/internal/pipeline"
)

// ClassStats holds per-class evaluation metrics.
type ClassStats struct {
	Label     string  `json:"label"`
	Support   int     `json:"support"`
	Predicted int     `json:"predicted"`
	Correct   int     `json:"correct"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Results holds the evaluation of one pipeline against one table. The
// confusion matrix is indexed [truth][predicted] in indexed class order.
type Results struct {
	Rows        int          `json:"rows"`
	Correct     int          `json:"correct"`
	Accuracy    float64      `json:"accuracy"`
	MacroF1     float64      `json:"macro_f1"`
	Labels      []string     `json:"labels"`
	Classes     []ClassStats `json:"classes"`
	Confusion   [][]int      `json:"confusion"`
	EvaluatedAt time.Time    `json:"evaluated_at"`
}

// Run scores the pipeline row by row. Every truth label must already be in
// the pipeline's indexed class set; the indexers are fitted over the full
// dataset before splitting, so a miss here means the table does not belong
// to the training population.
func Run(p *pipeline.Pipeline, t *dataset.Table) (*Results, error) {
	if t.Len() == 0 {
		return nil, fmt.Errorf("evaluate: empty table")
	}

	preds, err := p.PredictIndexed(t)
	if err != nil {
		return nil, fmt.Errorf("evaluate: predict: %w", err)
	}

	k := p.Labels.NumClasses()
	confusion := make([][]int, k)
	for i := range confusion {
		confusion[i] = make([]int, k)
	}

	correct := 0
	for i, label := range t.Labels {
		truth, err := p.Labels.Index(label)
		if err != nil {
			return nil, fmt.Errorf("evaluate: row %d: %w", i, err)
		}
		confusion[truth][preds[i]]++
		if truth == preds[i] {
			correct++
		}
	}

	res := &Results{
		Rows:        t.Len(),
		Correct:     correct,
		Accuracy:    float64(correct) / float64(t.Len()),
		Labels:      append([]string(nil), p.Labels.Classes...),
		Confusion:   confusion,
		EvaluatedAt: time.Now().UTC(),
	}

	macro := 0.0
	for ci := 0; ci < k; ci++ {
		stats := ClassStats{Label: res.Labels[ci], Correct: confusion[ci][ci]}
		for cj := 0; cj < k; cj++ {
			stats.Support += confusion[ci][cj]
			stats.Predicted += confusion[cj][ci]
		}
		if stats.Predicted > 0 {
			stats.Precision = float64(stats.Correct) / float64(stats.Predicted)
		}
		if stats.Support > 0 {
			stats.Recall = float64(stats.Correct) / float64(stats.Support)
		}
		if stats.Precision+stats.Recall > 0 {
			stats.F1 = 2 * stats.Precision * stats.Recall / (stats.Precision + stats.Recall)
		}
		macro += stats.F1
		res.Classes = append(res.Classes, stats)
	}
	res.MacroF1 = macro / float64(k)

	return res, nil
}
