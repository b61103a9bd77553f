// Package split implements the time-aware train/holdout split with label
// censoring near the cutoff boundary.
//
// Rows stamped at or before the cutoff form the training pool, later rows
// the holdout pool. Rows inside the censoring window immediately before the
// cutoff carry labels that can only be known from post-cutoff information,
// so they must never contribute a failure label to training. Violating this
// leaks future information into the model.
package split

import (
	"fmt"
	"time"

	"pdm-trainer/internal/dataset"
)

// DefaultCensorWindow is the span before the cutoff within which failure
// labels are unobservable at train time.
const DefaultCensorWindow = 7 * 24 * time.Hour

// CensorPolicy selects how boundary-window rows are handled.
type CensorPolicy string

const (
	// CensorDrop excludes boundary-window rows from the training pool.
	CensorDrop CensorPolicy = "drop"
	// CensorRelabel keeps boundary-window rows with their label reset to
	// the non-failure class.
	CensorRelabel CensorPolicy = "relabel"
)

// Result carries the two pools plus censoring accounting.
type Result struct {
	Train    *dataset.Table
	Holdout  *dataset.Table
	Censored int // rows dropped or relabeled
}

// TimeSplit partitions the table at cutoff and applies the censoring policy
// over (cutoff-window, cutoff]. nonFailure is the label written by
// CensorRelabel.
func TimeSplit(t *dataset.Table, cutoff time.Time, window time.Duration, policy CensorPolicy, nonFailure string) (Result, error) {
	if cutoff.IsZero() {
		return Result{}, fmt.Errorf("split: cutoff time not set")
	}
	if window < 0 {
		return Result{}, fmt.Errorf("split: negative censor window %v", window)
	}
	switch policy {
	case CensorDrop, CensorRelabel:
	default:
		return Result{}, fmt.Errorf("split: unknown censor policy %q", policy)
	}
	if policy == CensorRelabel && nonFailure == "" {
		return Result{}, fmt.Errorf("split: relabel policy requires a non-failure label")
	}

	windowStart := cutoff.Add(-window)
	var trainIdx, holdoutIdx []int
	censored := 0

	for i, ts := range t.Timestamps {
		if ts.After(cutoff) {
			holdoutIdx = append(holdoutIdx, i)
			continue
		}
		if ts.After(windowStart) {
			censored++
			if policy == CensorDrop {
				continue
			}
		}
		trainIdx = append(trainIdx, i)
	}

	train := t.Select(trainIdx)
	if policy == CensorRelabel {
		// Indices shifted by Select; relabel by timestamp instead.
		for i, ts := range train.Timestamps {
			if ts.After(windowStart) && !ts.After(cutoff) {
				train.SetLabel(i, nonFailure)
			}
		}
	}

	return Result{Train: train, Holdout: t.Select(holdoutIdx), Censored: censored}, nil
}

// VerifyNoLeakage checks the training pool against the censoring invariant:
// no row inside the window before the cutoff may carry a label other than
// the non-failure class. It is the data-preparation precondition gate run
// before fitting.
func VerifyNoLeakage(train *dataset.Table, cutoff time.Time, window time.Duration, nonFailure string) error {
	windowStart := cutoff.Add(-window)
	for i, ts := range train.Timestamps {
		if ts.After(cutoff) {
			return fmt.Errorf("split: training row %d (machine %s) stamped after cutoff %s",
				i, train.MachineIDs[i], cutoff.Format(time.RFC3339))
		}
		if ts.After(windowStart) && train.Labels[i] != nonFailure {
			return fmt.Errorf("split: training row %d (machine %s, %s) carries failure label %q inside the %v censor window",
				i, train.MachineIDs[i], ts.Format(time.RFC3339), train.Labels[i], window)
		}
	}
	return nil
}
