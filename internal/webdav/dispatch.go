// Package webdav implements the WebDAV method handlers and the dispatcher
// that routes requests to them.
//
// Every request runs the same pipeline: resolve the mount, translate the URL
// path to a local path, authorize against the mount's policy, validate
// preconditions, perform the filesystem operation, serialize the response.
// Any stage may short-circuit with a terminal response; filesystem errors
// never propagate past a handler.
package webdav

import (
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/browncloud/davfs/internal/authz"
	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/pkg/metrics"
	"github.com/browncloud/davfs/pkg/registry"
)

// Dispatcher routes requests by HTTP method through an immutable routing
// table built at construction time.
type Dispatcher struct {
	registry *registry.Registry
	gate     *authz.Gate
	metrics  metrics.DAVMetrics
	realm    string

	handlers map[string]Handler
	allow    string // precomputed Allow header value
}

// Config carries the dispatcher's collaborators.
type Config struct {
	Registry *registry.Registry
	Gate     *authz.Gate
	Metrics  metrics.DAVMetrics

	// Realm is the Basic-auth realm advertised in challenges.
	// Defaults to "WebDAV".
	Realm string
}

// NewDispatcher builds the routing table and returns the dispatcher. The
// table is never mutated afterwards.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		registry: cfg.Registry,
		gate:     cfg.Gate,
		metrics:  cfg.Metrics,
		realm:    cfg.Realm,
	}
	if d.realm == "" {
		d.realm = "WebDAV"
	}
	if d.metrics == nil {
		d.metrics = metrics.NewNoopDAVMetrics()
	}

	d.handlers = map[string]Handler{
		http.MethodOptions: HandlerFunc(d.handleOptions),
		"PROPFIND":         HandlerFunc(d.handlePropfind),
		http.MethodGet:     HandlerFunc(d.handleGet),
		http.MethodHead:    HandlerFunc(d.handleGet),
		http.MethodPut:     HandlerFunc(d.handlePut),
		http.MethodDelete:  HandlerFunc(d.handleDelete),
		"MKCOL":            HandlerFunc(d.handleMkcol),
		"COPY":             HandlerFunc(d.handleCopyMove),
		"MOVE":             HandlerFunc(d.handleCopyMove),
	}

	methods := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	d.allow = strings.Join(methods, ", ")

	return d
}

// Methods returns the Allow header value advertising every routed method.
func (d *Dispatcher) Methods() string {
	return d.allow
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	d.metrics.RequestStarted(r.Method)
	defer d.metrics.RequestFinished(r.Method)

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	mountLabel := d.dispatch(recorder, r)
	d.metrics.RecordRequest(r.Method, mountLabel, recorder.status, time.Since(start))
}

// dispatch runs the pipeline and returns the mount label for metrics.
func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request) string {
	handler, ok := d.handlers[r.Method]
	if !ok {
		logger.Debug("%s %s: method not routed", r.Method, r.URL.Path)
		w.Header().Set("Allow", d.allow)
		writeStatus(w, http.StatusMethodNotAllowed)
		return ""
	}

	rc := &RequestContext{
		Principal: PrincipalFromContext(r.Context()),
		Path:      path.Clean("/" + r.URL.Path),
	}

	// OPTIONS advertises capabilities without touching any mount.
	if r.Method == http.MethodOptions {
		handler.Handle(w, r, rc)
		return ""
	}

	m, err := d.registry.Resolve(rc.Path)
	if err != nil {
		writeStatus(w, http.StatusNotFound)
		return ""
	}
	rc.Mount = m

	local, err := m.ResolveLocal(rc.Path)
	if err != nil {
		// A traversal attempt is answered like a missing resource: the path
		// it aimed for is never acknowledged.
		logger.Warn("%s %s: %v", r.Method, r.URL.Path, err)
		writeStatus(w, http.StatusNotFound)
		return m.URLPrefix
	}
	rc.LocalPath = local

	handler.Handle(w, r, rc)
	return m.URLPrefix
}

// statusRecorder captures the final status code for metrics and logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}
