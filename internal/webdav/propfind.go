package webdav

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/davxml"
	"github.com/browncloud/davfs/internal/logger"
)

// The property set a client may request; anything else is silently ignored.
const (
	propCreationDate  = "creationdate"
	propLastModified  = "getlastmodified"
	propContentLength = "getcontentlength"
	propResourceType  = "resourcetype"
)

// handlePropfind lists a collection as a 207 multistatus document.
//
// The target must be an existing directory and the body a parseable propfind
// document; only the requested properties are serialized. Entries that fail
// to stat get a per-entry 404 propstat rather than failing the listing.
func (d *Dispatcher) handlePropfind(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	if !d.authorize(w, r, rc, authz.PermRead) {
		return
	}

	info, err := os.Stat(rc.LocalPath)
	if err != nil || !info.IsDir() {
		writeStatus(w, http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}
	requested, err := parsePropfind(body)
	if err != nil {
		logger.Debug("PROPFIND %s: bad request body: %v", rc.Path, err)
		writeStatus(w, http.StatusBadRequest)
		return
	}

	entries, err := os.ReadDir(rc.LocalPath)
	if err != nil {
		internalError(w, r, rc, err)
		return
	}

	showACL := d.gate.Authorize(authz.PermACL, rc.Principal, rc.Mount, rc.LocalPath) == authz.Allowed

	multistatus := davxml.New("multistatus", davxml.Attr{Name: "xmlns", Value: "DAV:"})
	addEntry(multistatus, hrefFor(rc.Path, ""), rc.LocalPath, requested)
	for _, entry := range entries {
		if entry.Name() == authz.ACLFileName && !showACL {
			continue
		}
		addEntry(multistatus, hrefFor(rc.Path, entry.Name()),
			filepath.Join(rc.LocalPath, entry.Name()), requested)
	}

	logger.Debug("PROPFIND %s: returned collection %q from %q",
		rc.Path, rc.Mount.URLPrefix, rc.LocalPath)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Header().Set("DAV", davCapabilities)
	w.WriteHeader(http.StatusMultiStatus)
	w.Write(multistatus.Document())
}

// parsePropfind extracts the requested property names from a
// <propfind><prop>...</prop></propfind> body. Namespaces and unknown
// elements are ignored.
func parsePropfind(body []byte) (map[string]bool, error) {
	root, err := davxml.Parse(body)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]bool)
	for _, prop := range root.FindChildren("prop") {
		for _, name := range prop.ChildNames() {
			requested[name] = true
		}
	}
	return requested, nil
}

// hrefFor builds the percent-encoded href of a listed entry.
func hrefFor(requestPath, name string) string {
	u := url.URL{Path: path.Join(requestPath, name)}
	return u.EscapedPath()
}

// addEntry appends one <response> for a filesystem entry.
func addEntry(multistatus *davxml.Elem, href, localPath string, requested map[string]bool) {
	response := multistatus.Add(davxml.New("response"))
	response.Add(davxml.New("href")).AddText(href)
	propstat := response.Add(davxml.New("propstat"))

	info, err := os.Stat(localPath)
	if err != nil {
		// The entry exists in the listing but cannot be described.
		propstat.Add(davxml.New("prop"))
		propstat.Add(davxml.New("status")).AddText("HTTP/1.1 404 Not Found")
		logger.Warn("PROPFIND: failed to stat %q: %v", localPath, err)
		return
	}

	prop := propstat.Add(davxml.New("prop"))
	if requested[propCreationDate] {
		// FileInfo carries no birth time, so creationdate repeats the
		// modification time.
		prop.Add(davxml.New(propCreationDate)).AddText(info.ModTime().UTC().Format(http.TimeFormat))
	}
	if requested[propLastModified] {
		prop.Add(davxml.New(propLastModified)).AddText(info.ModTime().UTC().Format(http.TimeFormat))
	}
	if requested[propContentLength] && !info.IsDir() {
		prop.Add(davxml.New(propContentLength)).AddText(strconv.FormatInt(info.Size(), 10))
	}
	if info.IsDir() {
		prop.Add(davxml.New(propResourceType)).Add(davxml.New("collection"))
	} else if requested[propResourceType] {
		prop.Add(davxml.New(propResourceType))
	}
	propstat.Add(davxml.New("status")).AddText("HTTP/1.1 200 OK")
}
