package mounts

import (
	"context"

	"github.com/browncloud/davfs/pkg/registry"
)

// StaticStore serves the mount list parsed from the configuration file. It is
// read-only: edits happen in the file, picked up on the next start.
type StaticStore struct {
	mounts []*registry.Mount
}

// NewStaticStore wraps a configured mount list.
func NewStaticStore(mounts []*registry.Mount) *StaticStore {
	return &StaticStore{mounts: mounts}
}

func (s *StaticStore) List(ctx context.Context) ([]*registry.Mount, error) {
	out := make([]*registry.Mount, len(s.mounts))
	copy(out, s.mounts)
	return out, nil
}

func (s *StaticStore) Put(ctx context.Context, m *registry.Mount) error {
	return ErrReadOnly
}

func (s *StaticStore) Remove(ctx context.Context, urlPrefix string) error {
	return ErrReadOnly
}

func (s *StaticStore) Close() error { return nil }
