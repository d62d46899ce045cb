package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

// Bucket names in bbolt
var (
	bucketScans         = []byte("scans")
	bucketOpportunities = []byte("opportunities")
)

var (
	// ErrNotFound means no scan row exists under the requested id.
	ErrNotFound = errors.New("store: scan not found")

	// ErrScanFinal means a completed or failed scan was asked to transition
	// again. Scans finalize exactly once.
	ErrScanFinal = errors.New("store: scan already finalized")
)

// Store persists scan rows and their opportunities. Scans live in bbolt with
// an in-memory btree index over the rows for recency queries; opportunities
// are append-only and keyed scanID||oppID so one prefix seek fetches a scan's
// findings.
type Store struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	index *btree.BTreeG[*waste.Scan]
	now   func() time.Time
}

// Open prepares the store under dir, creating the database on first use.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dir, "scans.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening scan db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketScans, bucketOpportunities} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing scan db: %w", err)
	}

	s := &Store{
		db: db,
		index: btree.NewG[*waste.Scan](32, func(a, b *waste.Scan) bool {
			return a.ID < b.ID
		}),
		now: time.Now,
	}
	if err := s.rebuildIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebuildIndex loads every scan row from disk into the btree.
func (s *Store) rebuildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScans).ForEach(func(_, raw []byte) error {
			var sc waste.Scan
			if err := json.Unmarshal(raw, &sc); err != nil {
				return fmt.Errorf("rebuilding scan index: %w", err)
			}
			s.index.ReplaceOrInsert(&sc)
			return nil
		})
	})
}

// CreateScan inserts a new running scan row and returns it with its assigned
// id. Ids are store-assigned and monotonically increasing.
func (s *Store) CreateScan(provider waste.Provider, region string) (*waste.Scan, error) {
	sc := &waste.Scan{
		Provider:  provider,
		Region:    region,
		Status:    waste.StatusRunning,
		StartedAt: s.now().UTC(),
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketScans)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		sc.ID = id
		return putScan(b, sc)
	})
	if err != nil {
		return nil, fmt.Errorf("creating scan: %w", err)
	}

	s.mu.Lock()
	s.index.ReplaceOrInsert(cloneScan(sc))
	s.mu.Unlock()
	return sc, nil
}

// CompleteScan finalizes a running scan: status, total savings and the
// opportunity count land in one transaction.
func (s *Store) CompleteScan(id uint64, totalSavings float64, opportunityCount int) error {
	return s.finalize(id, func(sc *waste.Scan) {
		sc.Status = waste.StatusCompleted
		sc.TotalSavings = totalSavings
		sc.OpportunityCount = opportunityCount
	})
}

// FailScan finalizes a running scan as failed, recording the reason.
func (s *Store) FailScan(id uint64, message string) error {
	return s.finalize(id, func(sc *waste.Scan) {
		sc.Status = waste.StatusFailed
		sc.ErrorMessage = message
	})
}

func (s *Store) finalize(id uint64, apply func(*waste.Scan)) error {
	var updated *waste.Scan
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketScans)
		sc, err := getScan(b, id)
		if err != nil {
			return err
		}
		if sc.Status != waste.StatusRunning {
			return fmt.Errorf("scan %d is %s: %w", id, sc.Status, ErrScanFinal)
		}
		apply(sc)
		sc.FinishedAt = s.now().UTC()
		updated = sc
		return putScan(b, sc)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.index.ReplaceOrInsert(cloneScan(updated))
	s.mu.Unlock()
	return nil
}

// GetScan returns one scan row.
func (s *Store) GetScan(id uint64) (*waste.Scan, error) {
	var sc *waste.Scan
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		sc, err = getScan(tx.Bucket(bucketScans), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// ListScans returns scan rows newest first. A non-positive limit returns all.
func (s *Store) ListScans(limit int) ([]waste.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []waste.Scan
	s.index.Descend(func(sc *waste.Scan) bool {
		out = append(out, *sc)
		return limit <= 0 || len(out) < limit
	})
	return out, nil
}

// SaveOpportunities appends a scan's findings. Rows are immutable once
// written; a zero DetectedAt is stamped at write time.
func (s *Store) SaveOpportunities(scanID uint64, opps []waste.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getScan(tx.Bucket(bucketScans), scanID); err != nil {
			return err
		}
		b := tx.Bucket(bucketOpportunities)
		for i := range opps {
			id, err := b.NextSequence()
			if err != nil {
				return err
			}
			opps[i].ID = id
			opps[i].ScanID = scanID
			if opps[i].DetectedAt.IsZero() {
				opps[i].DetectedAt = s.now().UTC()
			}
			raw, err := json.Marshal(opps[i])
			if err != nil {
				return fmt.Errorf("encoding opportunity: %w", err)
			}
			if err := b.Put(opportunityKey(scanID, id), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOpportunities returns a scan's findings in insertion order.
func (s *Store) GetOpportunities(scanID uint64) ([]waste.Opportunity, error) {
	var out []waste.Opportunity
	err := s.db.View(func(tx *bbolt.Tx) error {
		if _, err := getScan(tx.Bucket(bucketScans), scanID); err != nil {
			return err
		}
		prefix := itob(scanID)
		c := tx.Bucket(bucketOpportunities).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var o waste.Opportunity
			if err := json.Unmarshal(v, &o); err != nil {
				return fmt.Errorf("decoding opportunity: %w", err)
			}
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getScan(b *bbolt.Bucket, id uint64) (*waste.Scan, error) {
	raw := b.Get(itob(id))
	if raw == nil {
		return nil, ErrNotFound
	}
	var sc waste.Scan
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("decoding scan %d: %w", id, err)
	}
	return &sc, nil
}

func putScan(b *bbolt.Bucket, sc *waste.Scan) error {
	raw, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encoding scan: %w", err)
	}
	return b.Put(itob(sc.ID), raw)
}

func cloneScan(sc *waste.Scan) *waste.Scan {
	c := *sc
	return &c
}

// opportunityKey is scanID||oppID so per-scan rows are contiguous.
func opportunityKey(scanID, oppID uint64) []byte {
	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], scanID)
	binary.BigEndian.PutUint64(k[8:], oppID)
	return k
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
