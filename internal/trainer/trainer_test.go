package trainer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdm-trainer/internal/artifact"
	"pdm-trainer/internal/cfg"
	"pdm-trainer/internal/dataset"
	"pdm-trainer/internal/metrics"
	"pdm-trainer/internal/model"
)

var trainStart = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// seedDataset writes 100 labeled weekly telemetry rows (2 machines, 50
// weeks) into a fresh store. Each failure class shifts one sensor away from
// its healthy baseline so the classes are separable.
func seedDataset(t *testing.T, dir, name string) {
	t.Helper()
	store, err := dataset.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	table, err := dataset.New(dataset.Schema{Columns: []dataset.ColumnSpec{
		{Name: "volt_24h_mean", Kind: dataset.KindNumeric},
		{Name: "rotate_24h_mean", Kind: dataset.KindNumeric},
		{Name: "pressure_24h_mean", Kind: dataset.KindNumeric},
		{Name: "model", Kind: dataset.KindCategorical},
	}})
	require.NoError(t, err)

	for mi := 0; mi < 2; mi++ {
		machineID := fmt.Sprintf("machine_%03d", mi+1)
		machineModel := []string{"modelA", "modelB"}[mi]
		for week := 0; week < 50; week++ {
			label := "none"
			volt, rotate, pressure := 170.0, 450.0, 100.0
			switch week % 12 {
			case 5:
				label = "comp1_failure"
				volt += 40
			case 8:
				label = "comp2_failure"
				rotate -= 120
			case 11:
				label = "comp4_failure"
				pressure += 50
			}
			jitter := float64(week)*0.01 + float64(mi)*0.005
			require.NoError(t, table.Append(dataset.Row{
				MachineID: machineID,
				Timestamp: trainStart.AddDate(0, 0, week*7),
				Label:     label,
				Numeric: map[string]float64{
					"volt_24h_mean":     volt + jitter,
					"rotate_24h_mean":   rotate + jitter,
					"pressure_24h_mean": pressure + jitter,
				},
				Categorical: map[string]string{"model": machineModel},
			}))
		}
	}
	require.Equal(t, 100, table.Len())
	require.NoError(t, store.SaveTable(name, table))
}

func testSettings(dataDir, artifactDir string) cfg.Settings {
	return cfg.Settings{
		DataPath:        dataDir,
		DatasetName:     "telemetry_features",
		ArtifactDir:     artifactDir,
		ModelType:       "RandomForest",
		CutoffTime:      trainStart.AddDate(0, 0, 290),
		CensorWindow:    7 * 24 * time.Hour,
		CensorPolicy:    "drop",
		NonFailureLabel: "none",
		MaxCategories:   10,
		UnseenPolicy:    "reject",
	}
}

func TestRun_EndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	artifactDir := filepath.Join(t.TempDir(), "artifacts")
	seedDataset(t, dataDir, "telemetry_features")

	store, err := dataset.Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	s := testSettings(dataDir, artifactDir)

	res, err := Run(context.Background(), s, store, m)
	require.NoError(t, err)

	// Weeks 0..41 fall at or before the cutoff; the week-41 failure rows sit
	// inside the 7-day censor window and are dropped.
	assert.Equal(t, 82, res.TrainRows)
	assert.Equal(t, 16, res.HoldoutRows)
	assert.Equal(t, 2, res.Censored)

	require.NotNil(t, res.Evaluation)
	assert.Equal(t, 16, res.Evaluation.Rows)
	assert.Equal(t, []string{"none", "comp1_failure", "comp2_failure", "comp4_failure"}, res.Evaluation.Labels)

	assert.Equal(t, model.TypeRandomForest, res.Manifest.ModelType)
	assert.Equal(t, 82, res.Manifest.TrainingRows)
	// Frequency-ordered classes with lexical tie-break among the failures.
	assert.Equal(t, []string{"none", "comp1_failure", "comp2_failure", "comp4_failure"}, res.Manifest.Classes)
	assert.FileExists(t, res.Manifest.Path)

	// The persisted artifact predicts identically to the in-memory pipeline,
	// and only labels from the indexed class set ever come out.
	loaded, err := mustArtifactStore(t, artifactDir).Load(model.TypeRandomForest)
	require.NoError(t, err)

	full, err := store.LoadTable("telemetry_features")
	require.NoError(t, err)
	want, err := res.Pipeline.Predict(full)
	require.NoError(t, err)
	got, err := loaded.Predict(full)
	require.NoError(t, err)
	require.Equal(t, want, got)
	for i, label := range got {
		assert.Contains(t, res.Manifest.Classes, label, "row %d predicted outside the class set", i)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingRuns))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TrainingFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactSaves))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.RowsLoaded))
	assert.Equal(t, 82.0, testutil.ToFloat64(m.RowsTraining))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsCensored))
}

func TestRun_UnknownModelTokenUsesDefault(t *testing.T) {
	dataDir := t.TempDir()
	seedDataset(t, dataDir, "telemetry_features")

	store, err := dataset.Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	s := testSettings(dataDir, filepath.Join(t.TempDir(), "artifacts"))
	s.ModelType = "GBTClassifier"

	res, err := Run(context.Background(), s, store, metrics.NewWithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultType, res.Manifest.ModelType)
}

func TestRun_ErrorCategories(t *testing.T) {
	dataDir := t.TempDir()
	seedDataset(t, dataDir, "telemetry_features")

	store, err := dataset.Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	tests := []struct {
		name   string
		mutate func(*cfg.Settings)
		want   error
	}{
		{"missing dataset", func(s *cfg.Settings) { s.DatasetName = "absent" }, ErrSchema},
		{"unknown feature column", func(s *cfg.Settings) { s.FeatureColumns = []string{"humidity"} }, ErrSchema},
		{"zero cutoff", func(s *cfg.Settings) { s.CutoffTime = time.Time{} }, ErrConfig},
		{"empty training pool", func(s *cfg.Settings) { s.CutoffTime = trainStart.AddDate(0, 0, -1) }, ErrConfig},
		{"artifact dir is a file", func(s *cfg.Settings) { s.ArtifactDir = filepath.Join(blocker, "sub") }, ErrPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewWithRegistry(prometheus.NewRegistry())
			s := testSettings(dataDir, filepath.Join(t.TempDir(), "artifacts"))
			tt.mutate(&s)

			_, err := Run(context.Background(), s, store, m)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "expected %v category, got: %v", tt.want, err)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.TrainingFailures))
		})
	}
}

func TestRun_CanceledContext(t *testing.T) {
	dataDir := t.TempDir()
	seedDataset(t, dataDir, "telemetry_features")

	store, err := dataset.Open(dataDir)
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Run(ctx, testSettings(dataDir, filepath.Join(t.TempDir(), "artifacts")), store, metrics.NewWithRegistry(prometheus.NewRegistry()))
	assert.ErrorIs(t, err, context.Canceled)
}

func mustArtifactStore(t *testing.T, dir string) *artifact.Store {
	t.Helper()
	s, err := artifact.NewStore(dir)
	require.NoError(t, err)
	return s
}
