package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdm-trainer/internal/dataset"
	"pdm-trainer/internal/index"
	"pdm-trainer/internal/model"
)

// pipelineTable builds a small labeled table where high pressure rows carry
// failure labels, so a shallow tree can separate them.
func pipelineTable(t *testing.T, n int) *dataset.Table {
	t.Helper()
	table, err := dataset.New(dataset.Schema{Columns: []dataset.ColumnSpec{
		{Name: "pressure", Kind: dataset.KindNumeric},
		{Name: "vibration", Kind: dataset.KindNumeric},
		{Name: "model", Kind: dataset.KindCategorical},
	}})
	require.NoError(t, err)

	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		label := "none"
		pressure := 100.0 + float64(i%10)
		if i%4 == 0 {
			label = "comp1_failure"
			pressure = 180.0 + float64(i%10)
		}
		err := table.Append(dataset.Row{
			MachineID: fmt.Sprintf("machine_%03d", i%3+1),
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Label:     label,
			Numeric:   map[string]float64{"pressure": pressure, "vibration": 40 + float64(i%5)},
			Categorical: map[string]string{
				"model": fmt.Sprintf("model%d", i%2+1),
			},
		})
		require.NoError(t, err)
	}
	return table
}

func fittedIndexers(t *testing.T, table *dataset.Table, cols []string) (*index.FeatureIndexer, *index.LabelIndexer) {
	t.Helper()
	fi := index.NewFeatureIndexer(index.DefaultMaxCategories, index.UnseenReject)
	require.NoError(t, fi.Fit(table, cols))
	li := &index.LabelIndexer{}
	require.NoError(t, li.Fit(table.Labels))
	return fi, li
}

func TestPipeline_FitPredict(t *testing.T) {
	table := pipelineTable(t, 60)
	cols := []string{"pressure", "vibration", "model"}
	fi, li := fittedIndexers(t, table, cols)

	p, err := New(cols, fi, li, model.DecisionTreeConfig())
	require.NoError(t, err)
	require.NoError(t, p.Fit(table))

	assert.Equal(t, 60, p.TrainedRows)
	assert.False(t, p.TrainedAt.IsZero())

	preds, err := p.Predict(table)
	require.NoError(t, err)
	require.Len(t, preds, 60)
	for i, pred := range preds {
		assert.Contains(t, li.Classes, pred, "row %d predicted a label outside the indexed class set", i)
	}
	// The separable signal should be recovered.
	assert.Equal(t, "comp1_failure", preds[0])
	assert.Equal(t, "none", preds[1])
}

func TestPipeline_FitOnce(t *testing.T) {
	table := pipelineTable(t, 40)
	cols := []string{"pressure", "vibration", "model"}
	fi, li := fittedIndexers(t, table, cols)

	p, err := New(cols, fi, li, model.DecisionTreeConfig())
	require.NoError(t, err)
	require.NoError(t, p.Fit(table))

	err = p.Fit(table)
	assert.Error(t, err, "second Fit must be rejected")
}

func TestPipeline_PredictBeforeFit(t *testing.T) {
	table := pipelineTable(t, 40)
	cols := []string{"pressure", "vibration", "model"}
	fi, li := fittedIndexers(t, table, cols)

	p, err := New(cols, fi, li, model.DecisionTreeConfig())
	require.NoError(t, err)

	_, err = p.Predict(table)
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	table := pipelineTable(t, 40)
	cols := []string{"pressure", "vibration", "model"}
	fi, li := fittedIndexers(t, table, cols)

	_, err := New(nil, fi, li, model.DecisionTreeConfig())
	assert.Error(t, err, "empty column list")

	_, err = New(cols, index.NewFeatureIndexer(10, index.UnseenReject), li, model.DecisionTreeConfig())
	assert.Error(t, err, "unfitted feature indexer")

	single := &index.LabelIndexer{}
	require.NoError(t, single.Fit([]string{"none", "none"}))
	_, err = New(cols, fi, single, model.DecisionTreeConfig())
	assert.Error(t, err, "single-class label indexer")

	bad := model.DecisionTreeConfig()
	bad.MaxDepth = 0
	_, err = New(cols, fi, li, bad)
	assert.Error(t, err, "invalid model config")
}

func TestNew_MaxBinsBelowCardinality(t *testing.T) {
	table := pipelineTable(t, 40)
	cols := []string{"pressure", "vibration", "model"}
	fi, li := fittedIndexers(t, table, cols)

	cfg := model.DecisionTreeConfig()
	cfg.MaxBins = fi.MaxCardinality() - 1
	if cfg.MaxBins < 2 {
		cfg.MaxBins = 2
	}
	// vibration has 5 distinct values and indexes as categorical, so bins
	// of 2 cannot cover it.
	_, err := New(cols, fi, li, cfg)
	assert.Error(t, err)
}

func TestPipeline_FitEmptyPool(t *testing.T) {
	table := pipelineTable(t, 40)
	cols := []string{"pressure", "vibration", "model"}
	fi, li := fittedIndexers(t, table, cols)

	p, err := New(cols, fi, li, model.DecisionTreeConfig())
	require.NoError(t, err)

	empty := table.Select(nil)
	err = p.Fit(empty)
	assert.Error(t, err)
}

func TestPipeline_PredictMissingColumn(t *testing.T) {
	table := pipelineTable(t, 40)
	cols := []string{"pressure", "vibration", "model"}
	fi, li := fittedIndexers(t, table, cols)

	p, err := New(cols, fi, li, model.DecisionTreeConfig())
	require.NoError(t, err)
	require.NoError(t, p.Fit(table))

	other, err := dataset.New(dataset.Schema{Columns: []dataset.ColumnSpec{
		{Name: "pressure", Kind: dataset.KindNumeric},
	}})
	require.NoError(t, err)
	require.NoError(t, other.Append(dataset.Row{
		MachineID: "machine_001",
		Timestamp: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		Label:     "none",
		Numeric:   map[string]float64{"pressure": 100},
	}))

	_, err = p.Predict(other)
	assert.Error(t, err, "scoring table lacking trained columns must be rejected")
}
