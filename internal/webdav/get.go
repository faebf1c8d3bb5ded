package webdav

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
)

// handleGet serves GET and HEAD. The target must be an existing regular
// file; directories are not downloadable.
func (d *Dispatcher) handleGet(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	if authz.IsACLPath(rc.LocalPath) {
		if !d.authorizeACLTarget(w, r, rc) {
			return
		}
	} else if !d.authorize(w, r, rc, authz.PermRead) {
		return
	}

	info, err := os.Stat(rc.LocalPath)
	if err != nil || !info.Mode().IsRegular() {
		writeStatus(w, http.StatusNotFound)
		return
	}

	f, err := os.Open(rc.LocalPath)
	if err != nil {
		internalError(w, r, rc, err)
		return
	}
	defer f.Close()

	name := filepath.Base(rc.LocalPath)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, f)
	d.metrics.AddBytesTransferred(rc.Mount.URLPrefix, "read", n)
	if err != nil {
		// Headers are gone; all that is left is to log the broken transfer.
		logger.Warn("GET %s: transfer aborted after %d bytes: %v", rc.Path, n, err)
		return
	}
	logger.Debug("GET %s: served %d bytes from %q", rc.Path, n, rc.LocalPath)
}
