package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdm-trainer/internal/dataset"
	"pdm-trainer/internal/index"
	"pdm-trainer/internal/model"
	"pdm-trainer/internal/pipeline"
)

func fittedPipeline(t *testing.T, cfg model.Config) (*pipeline.Pipeline, *dataset.Table) {
	t.Helper()
	table, err := dataset.New(dataset.Schema{Columns: []dataset.ColumnSpec{
		{Name: "pressure", Kind: dataset.KindNumeric},
		{Name: "model", Kind: dataset.KindCategorical},
	}})
	require.NoError(t, err)

	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		label := "none"
		pressure := 100.0 + float64(i%12)
		if i%3 == 0 {
			label = "comp2_failure"
			pressure = 200.0 + float64(i%12)
		}
		require.NoError(t, table.Append(dataset.Row{
			MachineID:   fmt.Sprintf("machine_%03d", i%4+1),
			Timestamp:   start.Add(time.Duration(i) * time.Hour),
			Label:       label,
			Numeric:     map[string]float64{"pressure": pressure},
			Categorical: map[string]string{"model": fmt.Sprintf("model%d", i%2+1)},
		}))
	}

	cols := []string{"pressure", "model"}
	fi := index.NewFeatureIndexer(index.DefaultMaxCategories, index.UnseenReject)
	require.NoError(t, fi.Fit(table, cols))
	li := &index.LabelIndexer{}
	require.NoError(t, li.Fit(table.Labels))

	p, err := pipeline.New(cols, fi, li, cfg)
	require.NoError(t, err)
	require.NoError(t, p.Fit(table))
	return p, table
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	p, table := fittedPipeline(t, model.DecisionTreeConfig())
	want, err := p.Predict(table)
	require.NoError(t, err)

	m, err := store.Save(p)
	require.NoError(t, err)
	assert.Equal(t, model.TypeDecisionTree, m.ModelType)
	assert.Equal(t, 60, m.TrainingRows)
	assert.Equal(t, p.Labels.Classes, m.Classes)
	assert.FileExists(t, m.Path)

	loaded, err := store.Load(model.TypeDecisionTree)
	require.NoError(t, err)

	got, err := loaded.Predict(table)
	require.NoError(t, err)
	assert.Equal(t, want, got, "loaded pipeline must predict identically")
}

func TestSaveLoad_ForestRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := model.RandomForestConfig()
	cfg.NumTrees = 10
	p, table := fittedPipeline(t, cfg)
	want, err := p.Predict(table)
	require.NoError(t, err)

	_, err = store.Save(p)
	require.NoError(t, err)

	loaded, err := store.Load(model.TypeRandomForest)
	require.NoError(t, err)
	got, err := loaded.Predict(table)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_OverwritesSameKey(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	p, _ := fittedPipeline(t, model.DecisionTreeConfig())
	first, err := store.Save(p)
	require.NoError(t, err)

	second, err := store.Save(p)
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path, "same model type keys the same artifact path")

	manifests, err := store.Manifests()
	require.NoError(t, err)
	assert.Len(t, manifests, 1, "overwrite must not grow the manifest")
}

func TestSave_DistinctKeysPerModelType(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	tree, _ := fittedPipeline(t, model.DecisionTreeConfig())
	_, err = store.Save(tree)
	require.NoError(t, err)

	cfg := model.RandomForestConfig()
	cfg.NumTrees = 5
	forest, _ := fittedPipeline(t, cfg)
	_, err = store.Save(forest)
	require.NoError(t, err)

	manifests, err := store.Manifests()
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.NotEqual(t, manifests[model.TypeDecisionTree].Path, manifests[model.TypeRandomForest].Path)
}

func TestSave_RejectsUnfittedPipeline(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(nil)
	assert.Error(t, err)
	_, err = store.Save(&pipeline.Pipeline{})
	assert.Error(t, err)
}

func TestLoad_Missing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(model.TypeDecisionTree)
	assert.Error(t, err)
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	_, err := NewStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = NewStore("")
	assert.Error(t, err)
}

func TestManifests_EmptyStore(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	manifests, err := store.Manifests()
	require.NoError(t, err)
	assert.Empty(t, manifests)
}
