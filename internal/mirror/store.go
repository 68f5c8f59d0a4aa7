package mirror

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	bolt "go.etcd.io/bbolt"
)

// Session is the coordination-service session the manager mirrors transition
// state into. The manager writes through two operations, both potentially
// blocking: Upsert and Delete; Get reads a node back and Close ends the
// session. Spurious reconnects must be tolerated by making both writes
// idempotent; an in-process implementation trivially satisfies that.
type Session interface {
	Upsert(path string, payload []byte) error
	Delete(path string) error
	Get(path string) ([]byte, bool, error)
	Close() error
}

const (
	fileName       = "mirror.db"
	nodesBucket    = "nodes"
	rootNodePath   = "root-region-location"
)

// BoltSession persists mirror nodes in a single bbolt bucket keyed by path,
// following the shape of the evolved PD layer's boltRegionStore: one bucket,
// one file per manager instance, guarded additionally by an advisory file
// lock so two manager processes never open the same mirror directory at
// once.
type BoltSession struct {
	db   *bolt.DB
	lock *flock.Flock
}

// OpenBoltSession opens (creating if absent) a bbolt-backed mirror session
// rooted at dir.
func OpenBoltSession(dir string) (*BoltSession, error) {
	if dir == "" {
		return nil, fmt.Errorf("mirror: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	lockPath := filepath.Join(dir, ".mirror.lock")
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("mirror: acquire directory lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("mirror: directory %s already locked by another process", dir)
	}

	dbPath := filepath.Join(dir, fileName)
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 0})
	if err != nil {
		_ = fl.Unlock()
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(nodesBucket))
		return err
	}); err != nil {
		_ = db.Close()
		_ = fl.Unlock()
		return nil, err
	}
	return &BoltSession{db: db, lock: fl}, nil
}

func (s *BoltSession) Upsert(path string, payload []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(nodesBucket))
		if b == nil {
			return fmt.Errorf("mirror: bucket %s missing", nodesBucket)
		}
		return b.Put([]byte(path), payload)
	})
}

func (s *BoltSession) Delete(path string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(nodesBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(path))
	})
}

func (s *BoltSession) Get(path string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(nodesBucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(path))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

func (s *BoltSession) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

// RootLocationPath is the dedicated node path the root server address is
// written to.
func RootLocationPath() string { return rootNodePath }

// InMemorySession is a non-durable Session used by tests and by manager
// instances that do not need the mirror to survive a restart.
type InMemorySession struct {
	nodes map[string][]byte
}

func NewInMemorySession() *InMemorySession {
	return &InMemorySession{nodes: make(map[string][]byte)}
}

func (s *InMemorySession) Upsert(path string, payload []byte) error {
	s.nodes[path] = append([]byte(nil), payload...)
	return nil
}

func (s *InMemorySession) Delete(path string) error {
	delete(s.nodes, path)
	return nil
}

func (s *InMemorySession) Get(path string) ([]byte, bool, error) {
	v, ok := s.nodes[path]
	return v, ok, nil
}

func (s *InMemorySession) Close() error { return nil }
