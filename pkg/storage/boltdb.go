package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

var (
	bucketGroups    = []byte("groups")
	bucketSnapshots = []byte("snapshots")
)

// groupKey is the on-disk key for a group record: <request-id>/<group-id>,
// matching the domain's in-memory addressing so recovery needs no extra
// index.
func groupKey(requestID, groupID string) []byte {
	return []byte(requestID + "/" + groupID)
}

// BoltStore implements Store using an embedded bbolt database, one file
// per domain scheduler replica.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the scheduler's bbolt database
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "scheduler.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketGroups, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveGroup upserts a group's persisted state.
func (s *BoltStore) SaveGroup(requestID, groupID string, group *types.GroupInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		data, err := json.Marshal(group)
		if err != nil {
			return err
		}
		return b.Put(groupKey(requestID, groupID), data)
	})
}

// GetGroup retrieves one group by request and group id.
func (s *BoltStore) GetGroup(requestID, groupID string) (*types.GroupInfo, error) {
	var group types.GroupInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		data := b.Get(groupKey(requestID, groupID))
		if data == nil {
			return schederr.New(schederr.CodeNotFound, "group %s/%s not found", requestID, groupID)
		}
		return json.Unmarshal(data, &group)
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// ListGroups returns every persisted group.
func (s *BoltStore) ListGroups() ([]*types.GroupInfo, error) {
	var groups []*types.GroupInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		return b.ForEach(func(k, v []byte) error {
			var group types.GroupInfo
			if err := json.Unmarshal(v, &group); err != nil {
				return err
			}
			groups = append(groups, &group)
			return nil
		})
	})
	return groups, err
}

// ListGroupsByOwner returns the groups this replica owns, for recovery
// after a restart or HA failover.
func (s *BoltStore) ListGroupsByOwner(localID string) ([]*types.GroupInfo, error) {
	all, err := s.ListGroups()
	if err != nil {
		return nil, err
	}
	owned := make([]*types.GroupInfo, 0, len(all))
	for _, g := range all {
		if g.OwnerProxy == localID {
			owned = append(owned, g)
		}
	}
	return owned, nil
}

// DeleteGroup removes a group's persisted state. Idempotent.
func (s *BoltStore) DeleteGroup(requestID, groupID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		return b.Delete(groupKey(requestID, groupID))
	})
}

// snapshotRecord wraps the unit list so additional metadata (taken-at
// revision, replica id) can be added later without breaking the format.
type snapshotRecord struct {
	Units []*types.ResourceUnit `json:"units"`
}

// SaveSnapshot persists a full resource-unit checkpoint under name.
func (s *BoltStore) SaveSnapshot(name string, units []*types.ResourceUnit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		data, err := json.Marshal(snapshotRecord{Units: units})
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}

// LoadSnapshot retrieves a previously saved checkpoint.
func (s *BoltStore) LoadSnapshot(name string) ([]*types.ResourceUnit, error) {
	var rec snapshotRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		data := b.Get([]byte(name))
		if data == nil {
			return schederr.New(schederr.CodeNotFound, "snapshot %q not found", name)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.Units, nil
}
