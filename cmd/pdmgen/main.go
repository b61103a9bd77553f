package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"time"

	"pdm-trainer/internal/dataset"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// pdmgen writes a synthetic labeled telemetry feature table into the
// dataset store, for local runs and for exercising the trainer end to end.
func main() {
	var (
		dataPath = flag.String("data", "data", "Dataset store directory")
		name     = flag.String("name", "telemetry_features", "Dataset name")
		machines = flag.Int("machines", 20, "Number of machines")
		months   = flag.Int("months", 12, "Months of daily observations")
		seed     = flag.Int64("seed", 7, "Random seed")
	)
	flag.Parse()
	_ = godotenv.Load()

	store, err := dataset.Open(*dataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("dataset store open failed")
	}
	defer store.Close()

	table, err := generate(*machines, *months, *seed)
	if err != nil {
		log.Fatal().Err(err).Msg("generation failed")
	}
	if err := store.SaveTable(*name, table); err != nil {
		log.Fatal().Err(err).Msg("dataset save failed")
	}

	log.Info().Str("dataset", *name).Int("rows", table.Len()).
		Int("machines", *machines).Int("months", *months).Msg("synthetic dataset written")
}

var failureLabels = []string{"comp1_failure", "comp2_failure", "comp4_failure"}

func generate(machines, months int, seed int64) (*dataset.Table, error) {
	schema := dataset.Schema{Columns: []dataset.ColumnSpec{
		{Name: "volt_24h_mean", Kind: dataset.KindNumeric},
		{Name: "rotate_24h_mean", Kind: dataset.KindNumeric},
		{Name: "pressure_24h_mean", Kind: dataset.KindNumeric},
		{Name: "vibration_24h_mean", Kind: dataset.KindNumeric},
		{Name: "error_count_24h", Kind: dataset.KindNumeric},
		{Name: "age_years", Kind: dataset.KindNumeric},
		{Name: "model", Kind: dataset.KindCategorical},
	}}

	t, err := dataset.New(schema)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	days := months * 30

	for mi := 0; mi < machines; mi++ {
		machineID := fmt.Sprintf("machine_%03d", mi+1)
		machineModel := fmt.Sprintf("model%d", rng.Intn(4)+1)
		age := float64(rng.Intn(20))

		// Each machine degrades toward a few failure days; rows shortly
		// before a failure drift away from the healthy baseline.
		failDays := map[int]string{}
		for f := 0; f < days/90; f++ {
			failDays[30+rng.Intn(days-30)] = failureLabels[rng.Intn(len(failureLabels))]
		}

		for d := 0; d < days; d++ {
			stress := 0.0
			label := "none"
			for fd, fl := range failDays {
				gap := fd - d
				if gap >= 0 && gap < 7 {
					stress = 1.0 - float64(gap)/7.0
					label = fl
				}
			}

			row := dataset.Row{
				MachineID: machineID,
				Timestamp: start.AddDate(0, 0, d),
				Label:     label,
				Numeric: map[string]float64{
					"volt_24h_mean":      170 + rng.NormFloat64()*5 + stress*20,
					"rotate_24h_mean":    450 + rng.NormFloat64()*20 - stress*50,
					"pressure_24h_mean":  100 + rng.NormFloat64()*8 + stress*25,
					"vibration_24h_mean": 40 + rng.NormFloat64()*3 + stress*12,
					"error_count_24h":    math.Floor(rng.Float64()*2 + stress*5),
					"age_years":          age,
				},
				Categorical: map[string]string{"model": machineModel},
			}
			if err := t.Append(row); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}
