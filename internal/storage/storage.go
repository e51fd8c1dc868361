// Package storage keeps a local journal of failed key requests. Keys
// themselves are never stored.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedType is returned by NewStore for an unknown backend.
var ErrUnsupportedType = errors.New("unsupported storage type")

// Failure is a single journaled key request failure.
type Failure struct {
	At       time.Time `json:"at"`
	Endpoint string    `json:"endpoint"`
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
}

// Store records failures and lists the most recent ones.
type Store interface {
	Close() error
	RecordFailure(f Failure) error
	RecentFailures(limit int) ([]Failure, error)
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	FailureTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultFailureTTL      = 7 * 24 * time.Hour
	defaultCleanupInterval = 6 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedType, typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = defaultFailureTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                          { return nil }
func (noopStore) RecordFailure(Failure) error           { return nil }
func (noopStore) RecentFailures(int) ([]Failure, error) { return nil, nil }
