package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
)

var jobKeyPrefix = []byte("job/")

// BadgerJobIndex implements core.JobIndex on an embedded badger database.
// Records are stored as JSON, so every Get returns a fresh copy.
type BadgerJobIndex struct {
	db *badger.DB
}

var _ core.JobIndex = (*BadgerJobIndex)(nil)

// NewBadgerJobIndex wraps an open badger database.
func NewBadgerJobIndex(db *badger.DB) *BadgerJobIndex {
	return &BadgerJobIndex{db: db}
}

func jobKey(id string) []byte {
	return append(append([]byte{}, jobKeyPrefix...), id...)
}

// Put inserts or replaces the record keyed by its id.
func (r *BadgerJobIndex) Put(ctx context.Context, job *model.JobRecord) error {
	if job == nil {
		return ErrNilJob
	}
	if job.ID == "" {
		return ErrInvalidJobID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(jobKey(job.ID), b)
	}); err != nil {
		return fmt.Errorf("index put %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the record for id or ErrJobNotFound.
func (r *BadgerJobIndex) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	if id == "" {
		return nil, ErrInvalidJobID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec model.JobRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(jobKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index get %s: %w", id, err)
	}
	return &rec, nil
}

// List returns every indexed record, newest first.
func (r *BadgerJobIndex) List(ctx context.Context) ([]*model.JobRecord, error) {
	var out []*model.JobRecord
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = jobKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec model.JobRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index list: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
