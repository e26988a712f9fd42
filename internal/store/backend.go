package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/quill/internal/config"
)

// ErrClosed is returned by operations on a backend after Close.
var ErrClosed = errors.New("store: backend closed")

// Backend is a key-value slot store.
//
// Get reports found=false with a nil error when the key is absent.
// Set replaces the value wholesale. Delete of an absent key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open creates the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendSQLite, "":
		return OpenSQLite(cfg.Path)
	case config.BackendFile:
		return OpenFile(cfg.Path)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	case config.BackendNATS:
		return OpenNATS(ctx, cfg.NATSURL, cfg.Bucket)
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", cfg.Backend)
	}
}
