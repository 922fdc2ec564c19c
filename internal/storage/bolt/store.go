// Package bolt stores documents in a single bbolt file: one bucket per
// tenant nested under the documents root bucket, JSON values keyed by id.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"

	"invoicer/internal/core"
)

var documentsBucket = []byte("documents")

var (
	_ prometheus.Collector = (*Store)(nil)

	documentsDesc = prometheus.NewDesc(
		"invoicer_bolt_documents_total",
		"Number of live documents per tenant in the bolt store",
		[]string{"tenant"}, nil)

	boltWritesDesc = prometheus.NewDesc(
		"invoicer_boltdb_writes_total",
		"Total number of boltdb write transactions",
		nil, nil)

	boltReadsDesc = prometheus.NewDesc(
		"invoicer_boltdb_reads_total",
		"Total number of boltdb read transactions",
		nil, nil)
)

// Store is a bbolt backed document store.
type Store struct {
	Path string
	db   *bolt.DB
	Now  func() time.Time
}

// Open creates or opens the database file and ensures the root bucket.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open boltdb; is another invoicer running? %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to initialize boltdb: %w", err)
	}
	return &Store{Path: path, db: db, Now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(documentsBucket) == nil {
			return fmt.Errorf("bucket %q missing", documentsBucket)
		}
		return nil
	})
}

var errStop = errors.New("stop")

func tenantBucket(tx *bolt.Tx, tenantID string) *bolt.Bucket {
	return tx.Bucket(documentsBucket).Bucket([]byte(tenantID))
}

// Get implements ports.DocumentReader
func (s *Store) Get(ctx context.Context, tenantID, id string) (core.Document, error) {
	var d core.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tenantBucket(tx, tenantID)
		if b == nil {
			return core.ErrNotFound
		}
		v := b.Get([]byte(id))
		if v == nil {
			return core.ErrNotFound
		}
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("decode document %s: %w", id, err)
		}
		if d.Deleted {
			return core.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return core.Document{}, err
	}
	return d, nil
}

// List implements ports.DocumentReader
func (s *Store) List(ctx context.Context, f core.Filter) ([]core.Document, error) {
	if f.TenantID == "" {
		return nil, core.ErrMissingTenant
	}
	var docs []core.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tenantBucket(tx, f.TenantID)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var d core.Document
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("decode document %s: %w", k, err)
			}
			if f.Match(d) {
				docs = append(docs, d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	core.Sort(docs, core.SortIssueDate, true)
	return docs, nil
}

// Tenants implements ports.TenantLister
func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	var tenants []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(documentsBucket).ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			b := tx.Bucket(documentsBucket).Bucket(k)
			live := false
			_ = b.ForEach(func(_, raw []byte) error {
				var d core.Document
				if json.Unmarshal(raw, &d) == nil && !d.Deleted {
					live = true
					return errStop
				}
				return nil
			})
			if live {
				tenants = append(tenants, string(k))
			}
			return nil
		})
	})
	return tenants, err
}

// Create implements ports.DocumentWriter
func (s *Store) Create(ctx context.Context, d core.Document) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(documentsBucket).CreateBucketIfNotExists([]byte(d.TenantID))
		if err != nil {
			return fmt.Errorf("create tenant bucket: %w", err)
		}
		if b.Get([]byte(d.ID)) != nil {
			return fmt.Errorf("document %s already exists", d.ID)
		}
		if err := checkNumber(b, d); err != nil {
			return err
		}
		return put(b, d)
	})
}

// Update implements ports.DocumentWriter
func (s *Store) Update(ctx context.Context, d core.Document) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tenantBucket(tx, d.TenantID)
		if b == nil {
			return core.ErrNotFound
		}
		prev, err := get(b, d.ID)
		if err != nil {
			return err
		}
		if prev.Deleted {
			return core.ErrNotFound
		}
		if err := checkNumber(b, d); err != nil {
			return err
		}
		return put(b, d)
	})
}

// Delete implements ports.DocumentWriter
func (s *Store) Delete(ctx context.Context, tenantID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tenantBucket(tx, tenantID)
		if b == nil {
			return core.ErrNotFound
		}
		d, err := get(b, id)
		if err != nil {
			return err
		}
		if d.Deleted {
			return core.ErrNotFound
		}
		d.Deleted = true
		d.UpdatedAt = s.Now()
		return put(b, d)
	})
}

func get(b *bolt.Bucket, id string) (core.Document, error) {
	v := b.Get([]byte(id))
	if v == nil {
		return core.Document{}, core.ErrNotFound
	}
	var d core.Document
	if err := json.Unmarshal(v, &d); err != nil {
		return core.Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return d, nil
}

func put(b *bolt.Bucket, d core.Document) error {
	v, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return b.Put([]byte(d.ID), v)
}

// checkNumber rejects a number already used by another live document of the
// same kind.
func checkNumber(b *bolt.Bucket, d core.Document) error {
	return b.ForEach(func(k, v []byte) error {
		if string(k) == d.ID {
			return nil
		}
		var other core.Document
		if err := json.Unmarshal(v, &other); err != nil {
			return nil
		}
		if !other.Deleted && other.Kind == d.Kind && other.Number == d.Number {
			return fmt.Errorf("%w: %s", core.ErrDuplicateNumber, d.Number)
		}
		return nil
	})
}

// Describe returns all descriptions of the collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	ch <- documentsDesc
	ch <- boltWritesDesc
	ch <- boltReadsDesc
}

// Collect returns the current state of all metrics of the collector.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	stats := s.db.Stats()
	writes := stats.TxStats.Write
	reads := stats.TxN

	ch <- prometheus.MustNewConstMetric(boltWritesDesc, prometheus.CounterValue, float64(writes))
	ch <- prometheus.MustNewConstMetric(boltReadsDesc, prometheus.CounterValue, float64(reads))

	counts := make(map[string]int)
	_ = s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(documentsBucket)
		return root.ForEach(func(tenant, v []byte) error {
			if v != nil {
				return nil // not a nested bucket
			}
			return root.Bucket(tenant).ForEach(func(_, v []byte) error {
				var d struct {
					Deleted bool `json:"deleted"`
				}
				if json.Unmarshal(v, &d) == nil && !d.Deleted {
					counts[string(tenant)]++
				}
				return nil
			})
		})
	})
	tenants := make([]string, 0, len(counts))
	for t := range counts {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	for _, t := range tenants {
		ch <- prometheus.MustNewConstMetric(documentsDesc, prometheus.GaugeValue, float64(counts[t]), t)
	}
}
