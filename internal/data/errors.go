package data

import (
	"errors"

	"github.com/target/evalorch/internal/core"
)

// Shared sentinel errors for data-layer repositories.
var (
	// Job index and snapshot sentinels.
	ErrJobNotFound  = core.ErrJobNotFound
	ErrInvalidJobID = core.ErrInvalidJobID
	ErrNilJob       = errors.New("evaluation job is nil")

	// Archive repository sentinels.
	ErrArchiveNotConfigured = errors.New("evaluation archive not configured")
	ErrArchiveNotFound      = errors.New("archived evaluation not found")
)
