// Package mounts defines where mount definitions live.
//
// The server consumes mount definitions read-only; they are created and
// edited out-of-band (the static store reads them from the configuration
// file, the badger store is managed with the davadm tool).
package mounts

import (
	"context"
	"errors"

	"github.com/browncloud/davfs/pkg/registry"
)

var (
	// ErrNotFound is returned when no mount with the given prefix exists.
	ErrNotFound = errors.New("mount not found")

	// ErrReadOnly is returned by stores that cannot be modified at runtime.
	ErrReadOnly = errors.New("mount store is read-only")
)

// Store is a source of mount definitions.
type Store interface {
	// List returns all mount definitions in a stable order.
	List(ctx context.Context) ([]*registry.Mount, error)

	// Put creates or replaces the mount with the same URL prefix.
	Put(ctx context.Context, m *registry.Mount) error

	// Remove deletes the mount with the given URL prefix.
	Remove(ctx context.Context, urlPrefix string) error

	// Close releases store resources.
	Close() error
}
