package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/target/evalorch/internal/core"
	"github.com/target/evalorch/internal/domain/model"
)

const snapshotExt = ".json"

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// FileSnapshotRepo stores one JSON snapshot per job id in a flat directory.
// Each save replaces the previous file atomically via rename.
type FileSnapshotRepo struct {
	dir string
}

var _ core.SnapshotStore = (*FileSnapshotRepo)(nil)

// NewFileSnapshotRepo creates the results directory if needed and returns a repo rooted at it.
func NewFileSnapshotRepo(dir string) (*FileSnapshotRepo, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("results directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create results directory %s: %w", dir, err)
	}
	return &FileSnapshotRepo{dir: dir}, nil
}

// Dir returns the directory snapshots are written to.
func (r *FileSnapshotRepo) Dir() string {
	return r.dir
}

// MarshalSnapshot returns the canonical serialized form of a record.
// encoding/json sorts map keys, so equal records always produce equal bytes.
func MarshalSnapshot(job *model.JobRecord) ([]byte, error) {
	b, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(b, '\n'), nil
}

// Save overwrites the snapshot for job.ID.
func (r *FileSnapshotRepo) Save(ctx context.Context, job *model.JobRecord) error {
	if job == nil {
		return ErrNilJob
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := r.path(job.ID)
	if err != nil {
		return err
	}
	b, err := MarshalSnapshot(job)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func(cause error) error {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return errors.Join(cause, fmt.Errorf("remove temp snapshot: %w", rmErr))
		}
		return cause
	}

	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		return cleanup(fmt.Errorf("write snapshot %s: %w", job.ID, err))
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return cleanup(fmt.Errorf("sync snapshot %s: %w", job.ID, err))
	}
	if err = tmp.Close(); err != nil {
		return cleanup(fmt.Errorf("close snapshot %s: %w", job.ID, err))
	}
	if err = os.Rename(tmpName, path); err != nil {
		return cleanup(fmt.Errorf("rename snapshot %s: %w", job.ID, err))
	}
	return nil
}

// Load reads the snapshot for id.
func (r *FileSnapshotRepo) Load(_ context.Context, id string) (*model.JobRecord, error) {
	path, err := r.path(id)
	if err != nil {
		return nil, err
	}
	rec, err := readSnapshot(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrJobNotFound
	}
	return rec, err
}

// LoadAll reads every snapshot in the directory, ordered by start time then id.
// Unreadable files are skipped and reported together in the returned error.
func (r *FileSnapshotRepo) LoadAll(ctx context.Context) ([]*model.JobRecord, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read results directory: %w", err)
	}

	var (
		out  []*model.JobRecord
		errs []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		rec, readErr := readSnapshot(filepath.Join(r.dir, e.Name()))
		if readErr != nil {
			errs = append(errs, readErr)
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, errors.Join(errs...)
}

func (r *FileSnapshotRepo) path(id string) (string, error) {
	if !jobIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, id)
	}
	return filepath.Join(r.dir, id+snapshotExt), nil
}

func readSnapshot(path string) (*model.JobRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", filepath.Base(path), err)
	}
	var rec model.JobRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), ErrInvalidJobID)
	}
	return &rec, nil
}
