package registry

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Mount maps a URL prefix to a directory on the local filesystem, together
// with the quota ceilings and static access lists that govern it.
//
// Mounts are defined by the external admin surface (configuration file or the
// mount store managed by davadm) and are read-only once registered. The
// request path never mutates a Mount.
type Mount struct {
	// URLPrefix is the normalized URL path prefix this mount serves,
	// e.g. "/pub". It is the match key and must be unique.
	URLPrefix string `json:"url_prefix"`

	// LocalRoot is the absolute directory the mount exposes. A mount whose
	// root does not exist at lookup time is skipped and logged.
	LocalRoot string `json:"local_root"`

	// QuotaBytes is the byte ceiling for everything under LocalRoot.
	// 0 means unlimited.
	QuotaBytes uint64 `json:"quota_bytes"`

	// MaxFiles is the file-count ceiling under LocalRoot. 0 means unlimited.
	MaxFiles uint64 `json:"max_files"`

	// Owner is the username that bypasses every permission check.
	Owner string `json:"owner"`

	// Static access lists, one per permission kind. Each entry is a principal
	// token: "*", a bare name (username or group), "user:<name>" or
	// "group:<name>". An empty list leaves the kind unrestricted.
	ReadList   []string `json:"read_list"`
	WriteList  []string `json:"write_list"`
	DeleteList []string `json:"delete_list"`
	CreateList []string `json:"create_list"`

	// writeMu serializes quota-gated writes on this mount, closing the
	// check-then-write window between the quota walk and file close.
	writeMu sync.Mutex
}

// StaticList returns the mount-level token list for a permission kind.
// Unknown kinds return nil, which callers treat as unrestricted.
func (m *Mount) StaticList(kind string) []string {
	switch kind {
	case "read":
		return m.ReadList
	case "write":
		return m.WriteList
	case "delete":
		return m.DeleteList
	case "new_file":
		return m.CreateList
	}
	return nil
}

// LockWrites acquires the mount's write lock. Held across the quota pre-check
// and the streaming write of a PUT.
func (m *Mount) LockWrites() { m.writeMu.Lock() }

// UnlockWrites releases the mount's write lock.
func (m *Mount) UnlockWrites() { m.writeMu.Unlock() }

// ResolveLocal translates a request path into a local filesystem path under
// the mount's root.
//
// The URL prefix is stripped, the remainder joined onto LocalRoot and the
// result cleaned. Anything that normalizes outside LocalRoot (a ".." escape,
// an absolute-path trick) fails with ErrPathEscape and is never served. An
// empty remainder resolves to LocalRoot itself, the mount's collection.
func (m *Mount) ResolveLocal(requestPath string) (string, error) {
	cleaned := path.Clean("/" + requestPath)
	if !matchesPrefix(cleaned, m.URLPrefix) {
		return "", fmt.Errorf("path %q not under mount %q: %w", requestPath, m.URLPrefix, ErrPathEscape)
	}

	remainder := strings.TrimPrefix(cleaned, m.URLPrefix)
	local := filepath.Clean(filepath.Join(m.LocalRoot, filepath.FromSlash(remainder)))

	root := filepath.Clean(m.LocalRoot)
	if local != root && !strings.HasPrefix(local, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes mount root %q: %w", requestPath, root, ErrPathEscape)
	}
	return local, nil
}

// normalizePrefix cleans a configured URL prefix into its canonical match
// form: leading slash, no trailing slash (except the bare root).
func normalizePrefix(prefix string) string {
	return path.Clean("/" + strings.Trim(prefix, "/"))
}

// matchesPrefix reports whether a cleaned request path lies under a
// normalized mount prefix. "/pub" matches "/pub" and "/pub/a.txt" but never
// "/public".
func matchesPrefix(cleaned, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return cleaned == prefix || strings.HasPrefix(cleaned, prefix+"/")
}
