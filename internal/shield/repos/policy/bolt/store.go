package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/libreshield/shieldd/internal/shield/domain"
	"github.com/libreshield/shieldd/internal/shield/repos/policy"
)

var (
	bucketPolicy    = []byte("policy")
	bucketOverrides = []byte("overrides")

	keySettings   = []byte("settings")
	keyCredential = []byte("credential")
	keyStats      = []byte("stats")
)

// boltStore implements policy.Store using bbolt. The settings, credential,
// and stats live as JSON values in the policy bucket; overrides get one
// key per (kind, value) pair so replacement writes stay small.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (policy.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, storageErr(err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPolicy); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketOverrides); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, storageErr(err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Load(_ context.Context) (domain.Record, error) {
	rec := domain.DefaultRecord()
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPolicy)
		if v := b.Get(keySettings); v != nil {
			if err := json.Unmarshal(v, &rec.Settings); err != nil {
				return fmt.Errorf("decoding settings: %w", err)
			}
		}
		if v := b.Get(keyCredential); v != nil {
			var c domain.Credential
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decoding credential: %w", err)
			}
			rec.Credential = &c
		}
		if v := b.Get(keyStats); v != nil {
			if err := json.Unmarshal(v, &rec.UsageStats); err != nil {
				return fmt.Errorf("decoding stats: %w", err)
			}
		}
		ob := tx.Bucket(bucketOverrides)
		return ob.ForEach(func(_, v []byte) error {
			var o domain.Override
			if err := json.Unmarshal(v, &o); err != nil {
				return fmt.Errorf("decoding override: %w", err)
			}
			rec.Overrides = append(rec.Overrides, o)
			return nil
		})
	})
	if err != nil {
		return domain.Record{}, storageErr(err)
	}
	rec.Settings = rec.Settings.MergeDefaults()
	if rec.UsageStats.BlocksByKey == nil {
		rec.UsageStats.BlocksByKey = make(map[string]int)
	}
	return rec, nil
}

func (s *boltStore) SaveSettings(_ context.Context, set domain.Settings) error {
	return s.putJSON(bucketPolicy, keySettings, set)
}

func (s *boltStore) SaveCredential(_ context.Context, c *domain.Credential) error {
	if c == nil {
		err := s.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketPolicy).Delete(keyCredential)
		})
		return storageErr(err)
	}
	return s.putJSON(bucketPolicy, keyCredential, c)
}

func (s *boltStore) SaveStats(_ context.Context, st domain.UsageStats) error {
	return s.putJSON(bucketPolicy, keyStats, st)
}

func (s *boltStore) SaveOverrides(_ context.Context, overrides []domain.Override) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketOverrides); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketOverrides)
		if err != nil {
			return err
		}
		for _, o := range overrides {
			v, err := json.Marshal(o)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(o.Key()), v); err != nil {
				return err
			}
		}
		return nil
	})
	return storageErr(err)
}

func (s *boltStore) Replace(ctx context.Context, r domain.Record) error {
	if err := s.SaveSettings(ctx, r.Settings); err != nil {
		return err
	}
	if err := s.SaveCredential(ctx, r.Credential); err != nil {
		return err
	}
	if err := s.SaveStats(ctx, r.UsageStats); err != nil {
		return err
	}
	return s.SaveOverrides(ctx, r.Overrides)
}

func (s *boltStore) Reset(ctx context.Context) error {
	return s.Replace(ctx, domain.DefaultRecord())
}

func (s *boltStore) putJSON(bucket, key []byte, val any) error {
	v, err := json.Marshal(val)
	if err != nil {
		return storageErr(err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, v)
	})
	return storageErr(err)
}

// storageErr classifies store failures so decision paths can fail closed
// instead of swallowing them into an allow verdict.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

var _ policy.Store = (*boltStore)(nil)
