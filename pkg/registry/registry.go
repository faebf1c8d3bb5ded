// Package registry holds the set of configured mounts and resolves incoming
// request paths to the mount serving them.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/browncloud/davfs/internal/logger"
)

var (
	// ErrNotFound means no usable mount matches the request path.
	ErrNotFound = errors.New("no mount matches path")

	// ErrPathEscape means a resolved path would leave the mount root.
	ErrPathEscape = errors.New("path escapes mount root")
)

// Registry is the set of registered mounts. It is built once at startup from
// the mount store and is read-only afterwards; the external admin surface
// mutates mounts out-of-band and the server is restarted to pick them up.
type Registry struct {
	mu     sync.RWMutex
	mounts []*Mount
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a mount. The URL prefix is normalized before use and must be
// unique. Registration order is significant: when two mounts share a prefix
// of equal length, the first registered wins.
func (r *Registry) Register(m *Mount) error {
	if m == nil {
		return fmt.Errorf("cannot register nil mount")
	}
	if m.URLPrefix == "" {
		return fmt.Errorf("cannot register mount with empty url prefix")
	}
	if m.LocalRoot == "" {
		return fmt.Errorf("cannot register mount %q with empty local root", m.URLPrefix)
	}

	m.URLPrefix = normalizePrefix(m.URLPrefix)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.mounts {
		if existing.URLPrefix == m.URLPrefix {
			return fmt.Errorf("mount %q already registered", m.URLPrefix)
		}
	}
	r.mounts = append(r.mounts, m)
	return nil
}

// Mounts returns the registered mounts in registration order.
func (r *Registry) Mounts() []*Mount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Mount, len(r.mounts))
	copy(out, r.mounts)
	return out
}

// Resolve finds the mount serving a request path.
//
// Among all mounts whose prefix is a prefix of the cleaned path and whose
// local root currently exists as a directory, the longest prefix wins; ties
// fall to registration order. A match whose root directory is missing is a
// misconfiguration: it is logged and skipped, so a shorter healthy mount can
// still serve the path. Returns ErrNotFound when nothing usable matches.
func (r *Registry) Resolve(requestPath string) (*Mount, error) {
	cleaned := path.Clean("/" + requestPath)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Mount
	matched := false
	for _, m := range r.mounts {
		if !matchesPrefix(cleaned, m.URLPrefix) {
			continue
		}
		matched = true
		if info, err := os.Stat(m.LocalRoot); err != nil || !info.IsDir() {
			logger.Warn("mount %q has non-existent local root %q, skipping", m.URLPrefix, m.LocalRoot)
			continue
		}
		if best == nil || len(m.URLPrefix) > len(best.URLPrefix) {
			best = m
		}
	}

	if best == nil {
		if matched {
			return nil, fmt.Errorf("every mount matching %q is misconfigured: %w", cleaned, ErrNotFound)
		}
		logger.Debug("no mount defined for path %q", cleaned)
		return nil, fmt.Errorf("path %q: %w", cleaned, ErrNotFound)
	}
	return best, nil
}
