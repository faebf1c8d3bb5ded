package webdav

import "net/http"

// handleOptions advertises the implemented method set and DAV compliance.
func (d *Dispatcher) handleOptions(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	w.Header().Set("Allow", d.allow)
	w.Header().Set("DAV", davCapabilities)
	w.WriteHeader(http.StatusOK)
}
