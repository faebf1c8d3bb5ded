package webdav

import (
	"fmt"
	"net/http"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
)

// davCapabilities is advertised on OPTIONS and multistatus responses.
// Compliance class 2 is historical: locks are advertised for client
// compatibility but LOCK/UNLOCK are not implemented.
const davCapabilities = "1, 2, ordered-collections"

func writeStatus(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
	if status != http.StatusNoContent {
		fmt.Fprintln(w, http.StatusText(status))
	}
}

// challenge answers an unauthenticated request to a restricted operation with
// a Basic-auth challenge so the client can retry with credentials.
func (d *Dispatcher) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", d.realm))
	writeStatus(w, http.StatusUnauthorized)
}

// authorize runs the gate for one permission kind and writes the terminal
// 401/403 response on failure. Returns true when the handler may proceed.
func (d *Dispatcher) authorize(w http.ResponseWriter, r *http.Request, rc *RequestContext, kind authz.Permission) bool {
	switch d.gate.Authorize(kind, rc.Principal, rc.Mount, rc.aclDir()) {
	case authz.Allowed:
		return true
	case authz.Unauthorized:
		logger.Info("%s %s: challenging unauthenticated request (mount %q, needs %s)",
			r.Method, rc.Path, rc.Mount.URLPrefix, kind)
		d.metrics.RecordDenial(r.Method, rc.Mount.URLPrefix)
		d.challenge(w)
		return false
	default:
		name := "<anonymous>"
		if rc.Principal != nil {
			name = rc.Principal.Name
		}
		logger.Warn("%s %s: denied %s for principal %q on mount %q (local %q)",
			r.Method, rc.Path, kind, name, rc.Mount.URLPrefix, rc.LocalPath)
		d.metrics.RecordDenial(r.Method, rc.Mount.URLPrefix)
		writeStatus(w, http.StatusForbidden)
		return false
	}
}

// authorizeACLTarget gates access to the reserved ACL file itself. Principals
// lacking the acl permission get 404, never 401/403: for them the file does
// not exist.
func (d *Dispatcher) authorizeACLTarget(w http.ResponseWriter, r *http.Request, rc *RequestContext) bool {
	if d.gate.Authorize(authz.PermACL, rc.Principal, rc.Mount, rc.aclDir()) == authz.Allowed {
		return true
	}
	logger.Warn("%s %s: hiding ACL file on mount %q", r.Method, rc.Path, rc.Mount.URLPrefix)
	writeStatus(w, http.StatusNotFound)
	return false
}

// internalError masks an unexpected filesystem failure as 403. The client
// learns nothing about server internals; the full error goes to the log.
func internalError(w http.ResponseWriter, r *http.Request, rc *RequestContext, err error) {
	logger.Error("%s %s: I/O failure on mount %q (local %q): %v",
		r.Method, rc.Path, rc.Mount.URLPrefix, rc.LocalPath, err)
	writeStatus(w, http.StatusForbidden)
}
