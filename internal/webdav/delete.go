package webdav

import (
	"net/http"
	"os"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
)

// handleDelete removes a file or a whole directory tree.
func (d *Dispatcher) handleDelete(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	if authz.IsACLPath(rc.LocalPath) {
		if !d.authorizeACLTarget(w, r, rc) {
			return
		}
	} else if !d.authorize(w, r, rc, authz.PermDelete) {
		return
	}

	info, err := os.Stat(rc.LocalPath)
	if err != nil {
		writeStatus(w, http.StatusNotFound)
		return
	}

	if info.IsDir() {
		err = os.RemoveAll(rc.LocalPath)
	} else {
		err = os.Remove(rc.LocalPath)
	}
	if err != nil {
		internalError(w, r, rc, err)
		return
	}

	logger.Info("DELETE %s: removed %q (mount %q)", rc.Path, rc.LocalPath, rc.Mount.URLPrefix)
	writeStatus(w, http.StatusNoContent)
}
