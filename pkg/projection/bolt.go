package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/quotaledger/pkg/types"
)

var (
	bucketOrganizations = []byte("organizations")
	bucketSandboxes     = []byte("sandboxes")
	bucketSnapshots     = []byte("snapshots")
	bucketVolumes       = []byte("volumes")
)

// BoltProjectionStore is a go.etcd.io/bbolt-backed Store: one bucket per
// entity kind, JSON-encoded values keyed by entity id, adapted from the
// teacher's BoltStore bucket/transaction layout.
type BoltProjectionStore struct {
	db *bolt.DB
}

// NewBoltProjectionStore opens (creating if absent) a bbolt file under
// dataDir and ensures every bucket exists.
func NewBoltProjectionStore(dataDir string) (*BoltProjectionStore, error) {
	dbPath := filepath.Join(dataDir, "projection.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open projection db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketOrganizations, bucketSandboxes, bucketSnapshots, bucketVolumes} {
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

	return &BoltProjectionStore{db: db}, nil
}

func (s *BoltProjectionStore) Close() error {
	return s.db.Close()
}

// PutOrganization and the other Put* methods below seed the projection in
// tests; the live system treats this store as
// read-only, populated by whatever owns the relational source of truth.
func (s *BoltProjectionStore) PutOrganization(org *types.Organization) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(org)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketOrganizations).Put([]byte(org.ID), data)
	})
}

func (s *BoltProjectionStore) GetOrganization(ctx context.Context, id types.OrganizationID) (*types.Organization, error) {
	var org types.Organization
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketOrganizations).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &org)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("organization not found: %s", id)
	}
	return &org, nil
}

func (s *BoltProjectionStore) ListOrganizations(ctx context.Context) ([]types.OrganizationID, error) {
	var ids []types.OrganizationID
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrganizations).ForEach(func(k, v []byte) error {
			ids = append(ids, types.OrganizationID(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltProjectionStore) PutSandbox(sb *types.SandboxProjection) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sb)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSandboxes).Put([]byte(sb.ID), data)
	})
}

func (s *BoltProjectionStore) GetSandbox(ctx context.Context, id string) (*types.SandboxProjection, error) {
	var sb types.SandboxProjection
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSandboxes).Get([]byte(id))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &sb)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("sandbox not found: %s", id)
	}
	return &sb, nil
}

func (s *BoltProjectionStore) PutSnapshot(snap *types.SnapshotProjection) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSnapshots).Put([]byte(snap.ID), data)
	})
}

func (s *BoltProjectionStore) PutVolume(vol *types.VolumeProjection) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(vol)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVolumes).Put([]byte(vol.ID), data)
	})
}

// FetchSandboxUsage sums cpu/mem/disk across every sandbox belonging to
// org, per its current state's consume-set membership.
func (s *BoltProjectionStore) FetchSandboxUsage(ctx context.Context, org types.OrganizationID) (SandboxUsage, error) {
	var usage SandboxUsage
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSandboxes).ForEach(func(k, v []byte) error {
			var sb types.SandboxProjection
			if err := json.Unmarshal(v, &sb); err != nil {
				return err
			}
			if sb.OrganizationID != org {
				return nil
			}
			if types.ConsumesCompute(sb.State) {
				usage.CPU += sb.CPU
				usage.Mem += sb.Mem
			}
			if types.ConsumesDisk(sb.State) {
				usage.Disk += sb.Disk
			}
			return nil
		})
	})
	return usage, err
}

// FetchSnapshotCount counts org's snapshots not in the ignored-states set.
func (s *BoltProjectionStore) FetchSnapshotCount(ctx context.Context, org types.OrganizationID) (int64, error) {
	var count int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var snap types.SnapshotProjection
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			if snap.OrganizationID == org && types.SnapshotCounts(snap.State) {
				count++
			}
			return nil
		})
	})
	return count, err
}

// FetchVolumeCount counts org's volumes not in the ignored-states set.
func (s *BoltProjectionStore) FetchVolumeCount(ctx context.Context, org types.OrganizationID) (int64, error) {
	var count int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVolumes).ForEach(func(k, v []byte) error {
			var vol types.VolumeProjection
			if err := json.Unmarshal(v, &vol); err != nil {
				return err
			}
			if vol.OrganizationID == org && types.VolumeCounts(vol.State) {
				count++
			}
			return nil
		})
	})
	return count, err
}
