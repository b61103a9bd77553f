package dataset

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	schemasBucket  = "schemas" // Bucket holding one schema record per dataset
	rowsBucketFmt  = "rows_%s" // Per-dataset row bucket name
	storeFileName  = "pdm-data.db"
	storeOpenDelay = 1 * time.Second
)

// Store persists named feature tables in a BoltDB file. Rows are keyed by
// "machineID_unixnano" so a cursor scan returns them ordered by machine and
// timestamp regardless of insertion order; the ordered schema is stored
// separately so column order survives round-trips.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the dataset store under dataPath.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, storeFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: storeOpenDelay})
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(schemasBucket)); err != nil {
			return fmt.Errorf("create schemas bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveTable persists a table under the given dataset name, replacing any
// prior contents of that dataset.
func (s *Store) SaveTable(name string, t *Table) error {
	if name == "" {
		return fmt.Errorf("dataset: empty dataset name")
	}
	rowsBucket := []byte(fmt.Sprintf(rowsBucketFmt, name))

	return s.db.Update(func(tx *bbolt.Tx) error {
		schemaData, err := json.Marshal(t.Schema())
		if err != nil {
			return fmt.Errorf("marshal schema: %w", err)
		}
		if err := tx.Bucket([]byte(schemasBucket)).Put([]byte(name), schemaData); err != nil {
			return fmt.Errorf("put schema: %w", err)
		}

		if tx.Bucket(rowsBucket) != nil {
			if err := tx.DeleteBucket(rowsBucket); err != nil {
				return fmt.Errorf("replace rows bucket: %w", err)
			}
		}
		b, err := tx.CreateBucket(rowsBucket)
		if err != nil {
			return fmt.Errorf("create rows bucket: %w", err)
		}

		for i := 0; i < t.Len(); i++ {
			row := t.Row(i)
			data, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("marshal row: %w", err)
			}
			key := fmt.Sprintf("%s_%d", row.MachineID, row.Timestamp.UnixNano())
			if err := b.Put([]byte(key), data); err != nil {
				return fmt.Errorf("put row: %w", err)
			}
		}
		return nil
	})
}

// LoadTable loads the named dataset. It fails with a descriptive error when
// the dataset or its schema record is missing, before any fitting happens.
func (s *Store) LoadTable(name string) (*Table, error) {
	var t *Table

	err := s.db.View(func(tx *bbolt.Tx) error {
		schemaData := tx.Bucket([]byte(schemasBucket)).Get([]byte(name))
		if schemaData == nil {
			return fmt.Errorf("dataset %q not found", name)
		}
		var schema Schema
		if err := json.Unmarshal(schemaData, &schema); err != nil {
			return fmt.Errorf("unmarshal schema for %q: %w", name, err)
		}

		var err error
		t, err = New(schema)
		if err != nil {
			return err
		}

		b := tx.Bucket([]byte(fmt.Sprintf(rowsBucketFmt, name)))
		if b == nil {
			return fmt.Errorf("dataset %q has no rows bucket", name)
		}
		return b.ForEach(func(_, v []byte) error {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("unmarshal row: %w", err)
			}
			return t.Append(row)
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListDatasets returns the names of all stored datasets.
func (s *Store) ListDatasets() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(schemasBucket)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}
