package webdav

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/internal/quota"
)

// handleCopyMove serves COPY and MOVE. The destination comes from the
// Destination header and is resolved through the registry like any request
// path, so cross-mount transfers run both mounts' authorization and the
// destination mount's quota. A destination equal to the source or inside it
// is refused before any I/O: the overwrite removal would destroy the source.
func (d *Dispatcher) handleCopyMove(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	moving := r.Method == "MOVE"

	if authz.IsACLPath(rc.LocalPath) {
		if !d.authorizeACLTarget(w, r, rc) {
			return
		}
	} else if moving && !d.authorize(w, r, rc, authz.PermDelete) {
		return
	}

	dst, ok := d.resolveDestination(w, r, rc)
	if !ok {
		return
	}

	if authz.IsACLPath(dst.LocalPath) {
		if !d.authorizeACLTarget(w, r, dst) {
			return
		}
	} else if !d.authorize(w, r, dst, authz.PermNewFile) {
		return
	}

	if dst.LocalPath == rc.LocalPath ||
		strings.HasPrefix(dst.LocalPath, rc.LocalPath+string(filepath.Separator)) {
		logger.Warn("%s %s -> %s: destination is the source or inside it, refusing",
			r.Method, rc.Path, dst.Path)
		writeStatus(w, http.StatusForbidden)
		return
	}

	srcInfo, err := os.Stat(rc.LocalPath)
	if err != nil {
		writeStatus(w, http.StatusNotFound)
		return
	}

	_, dstStatErr := os.Stat(dst.LocalPath)
	overwriting := dstStatErr == nil

	if moving && dst.Mount == rc.Mount {
		d.renameWithinMount(w, r, rc, dst, overwriting)
		return
	}

	dst.Mount.LockWrites()
	defer dst.Mount.UnlockWrites()

	incoming, files := treeSize(rc.LocalPath, srcInfo)
	used := quota.Compute(dst.Mount.LocalRoot)
	if overwriting {
		// The replaced tree is removed first, so its usage does not count.
		replaced, replacedFiles := treeSizeAt(dst.LocalPath)
		if used.Bytes >= replaced {
			used.Bytes -= replaced
		}
		if used.Files >= replacedFiles {
			used.Files -= replacedFiles
		}
	}
	if err := quota.CheckTree(dst.Mount, used, incoming, files); err != nil {
		logger.Warn("%s %s -> %s: %v", r.Method, rc.Path, dst.Path, err)
		d.metrics.RecordQuotaRejection(dst.Mount.URLPrefix)
		writeStatus(w, http.StatusForbidden)
		return
	}

	if overwriting {
		if err := os.RemoveAll(dst.LocalPath); err != nil {
			internalError(w, r, dst, err)
			return
		}
	}

	written, err := copyTree(rc.LocalPath, dst.LocalPath, srcInfo)
	d.metrics.AddBytesTransferred(dst.Mount.URLPrefix, "write", int64(written))
	if err != nil {
		internalError(w, r, dst, err)
		return
	}

	if moving {
		if err := os.RemoveAll(rc.LocalPath); err != nil {
			internalError(w, r, rc, err)
			return
		}
	}

	logger.Info("%s %s -> %s: %d bytes (mount %q -> %q)",
		r.Method, rc.Path, dst.Path, written, rc.Mount.URLPrefix, dst.Mount.URLPrefix)
	if overwriting {
		writeStatus(w, http.StatusNoContent)
		return
	}
	writeStatus(w, http.StatusCreated)
}

// resolveDestination turns the Destination header into a fully resolved
// request context. A missing or unresolvable destination is terminal.
func (d *Dispatcher) resolveDestination(w http.ResponseWriter, r *http.Request, rc *RequestContext) (*RequestContext, bool) {
	raw := r.Header.Get("Destination")
	if raw == "" {
		logger.Debug("%s %s: missing Destination header", r.Method, rc.Path)
		writeStatus(w, http.StatusBadRequest)
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		writeStatus(w, http.StatusBadRequest)
		return nil, false
	}
	dstPath := path.Clean("/" + u.Path)

	m, err := d.registry.Resolve(dstPath)
	if err != nil {
		writeStatus(w, http.StatusNotFound)
		return nil, false
	}
	local, err := m.ResolveLocal(dstPath)
	if err != nil {
		logger.Warn("%s %s: destination %v", r.Method, rc.Path, err)
		writeStatus(w, http.StatusNotFound)
		return nil, false
	}
	return &RequestContext{
		Principal: rc.Principal,
		Mount:     m,
		Path:      dstPath,
		LocalPath: local,
	}, true
}

// renameWithinMount serves the cheap MOVE case: source and destination live
// on the same mount, so the tree moves with a single rename and the mount's
// usage is unchanged.
func (d *Dispatcher) renameWithinMount(w http.ResponseWriter, r *http.Request, rc, dst *RequestContext, overwriting bool) {
	rc.Mount.LockWrites()
	defer rc.Mount.UnlockWrites()

	if overwriting {
		if err := os.RemoveAll(dst.LocalPath); err != nil {
			internalError(w, r, dst, err)
			return
		}
	}
	if err := os.Rename(rc.LocalPath, dst.LocalPath); err != nil {
		internalError(w, r, rc, err)
		return
	}

	logger.Info("MOVE %s -> %s: renamed within mount %q", rc.Path, dst.Path, rc.Mount.URLPrefix)
	if overwriting {
		writeStatus(w, http.StatusNoContent)
		return
	}
	writeStatus(w, http.StatusCreated)
}

// treeSize measures the bytes and files an existing source would add to the
// destination. Symlinks are skipped like everywhere else in the accounting.
func treeSize(root string, info os.FileInfo) (bytes, files uint64) {
	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return 0, 0
		}
		return uint64(info.Size()), 1
	}
	return treeSizeAt(root)
}

func treeSizeAt(root string) (bytes, files uint64) {
	filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				bytes += uint64(fi.Size())
				files++
			}
		}
		return nil
	})
	return bytes, files
}

// copyTree duplicates a file or directory tree. Symlinks are skipped, never
// followed, so a copy cannot smuggle content from outside the mount.
func copyTree(src, dst string, info os.FileInfo) (uint64, error) {
	if !info.IsDir() {
		return copyFile(src, dst)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}
		childInfo, err := entry.Info()
		if err != nil {
			return total, err
		}
		n, err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name()), childInfo)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func copyFile(src, dst string) (uint64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return uint64(n), copyErr
	}
	return uint64(n), closeErr
}
