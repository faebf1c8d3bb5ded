package webdav

import (
	"net/http"
	"os"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
)

// handleMkcol creates exactly one new collection level. Intermediate
// collections are never created implicitly.
func (d *Dispatcher) handleMkcol(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	if !d.authorize(w, r, rc, authz.PermNewFile) {
		return
	}

	if _, err := os.Stat(rc.LocalPath); err == nil {
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	if err := os.Mkdir(rc.LocalPath, 0755); err != nil {
		if os.IsNotExist(err) {
			// Parent collection missing.
			writeStatus(w, http.StatusNotFound)
			return
		}
		internalError(w, r, rc, err)
		return
	}

	logger.Info("MKCOL %s: created collection %q (mount %q)", rc.Path, rc.LocalPath, rc.Mount.URLPrefix)
	writeStatus(w, http.StatusCreated)
}
