// Package artifact persists trained pipelines to durable storage, keyed
// deterministically by model type, with overwrite-on-success semantics: a
// save either fully replaces the prior artifact or leaves it intact. No
// partial artifact is ever observable by a concurrent reader.
//
// Coordinating concurrent training runs against the same key is the
// caller's (scheduler's) responsibility, not this store's.
package artifact

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdm-trainer/internal/model"
	"pdm-trainer/internal/pipeline"
)

func init() {
	gob.Register(&model.DecisionTree{})
	gob.Register(&model.RandomForest{})
}

const manifestFile = "manifest.json"

// Manifest describes one saved artifact for downstream consumers.
type Manifest struct {
	Version      string     `json:"version"`
	ModelType    model.Type `json:"model_type"`
	Path         string     `json:"path"`
	CreatedAt    time.Time  `json:"created_at"`
	TrainingRows int        `json:"training_rows"`
	Classes      []string   `json:"classes"`
}

// Store writes and reads pipeline artifacts under a single directory.
type Store struct {
	dir string
}

// NewStore creates the artifact directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("artifact: empty artifact directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("artifact: create directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the deterministic artifact location for a model type.
func (s *Store) Path(mt model.Type) string {
	return filepath.Join(s.dir, strings.ToLower(string(mt))+".model")
}

// Save serializes the fitted pipeline to the model-type key. The artifact
// is written to a temp file and renamed into place, so a failed save leaves
// any previous artifact readable.
func (s *Store) Save(p *pipeline.Pipeline) (Manifest, error) {
	if p == nil || p.Model == nil {
		return Manifest{}, fmt.Errorf("artifact: pipeline not fitted")
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return Manifest{}, fmt.Errorf("artifact: encode pipeline: %w", err)
	}

	dst := s.Path(p.Config.Type)
	if err := writeAtomic(dst, buf.Bytes()); err != nil {
		return Manifest{}, fmt.Errorf("artifact: write %s: %w", dst, err)
	}

	m := Manifest{
		Version:      time.Now().UTC().Format("20060102-150405"),
		ModelType:    p.Config.Type,
		Path:         dst,
		CreatedAt:    time.Now().UTC(),
		TrainingRows: p.TrainedRows,
		Classes:      p.Labels.Classes,
	}
	if err := s.updateManifest(m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Load reconstructs the pipeline saved under the model-type key. The loaded
// pipeline predicts identically to the one saved.
func (s *Store) Load(mt model.Type) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(s.Path(mt))
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s: %w", s.Path(mt), err)
	}
	var p pipeline.Pipeline
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return nil, fmt.Errorf("artifact: decode %s: %w", s.Path(mt), err)
	}
	return &p, nil
}

// Manifests returns the manifest entries keyed by model type.
func (s *Store) Manifests() (map[model.Type]Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return map[model.Type]Manifest{}, nil
		}
		return nil, fmt.Errorf("artifact: read manifest: %w", err)
	}
	var out map[model.Type]Manifest
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("artifact: parse manifest: %w", err)
	}
	return out, nil
}

func (s *Store) updateManifest(m Manifest) error {
	all, err := s.Manifests()
	if err != nil {
		return err
	}
	all[m.ModelType] = m
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal manifest: %w", err)
	}
	if err := writeAtomic(filepath.Join(s.dir, manifestFile), data); err != nil {
		return fmt.Errorf("artifact: write manifest: %w", err)
	}
	return nil
}

func writeAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
