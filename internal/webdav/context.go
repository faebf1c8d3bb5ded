package webdav

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/browncloud/davfs/internal/users"
	"github.com/browncloud/davfs/pkg/registry"
)

type contextKey int

const principalKey contextKey = iota

// WithPrincipal attaches the authenticated principal to a request context.
// The authentication middleware calls this; a request that carried no valid
// credentials simply has no principal.
func WithPrincipal(ctx context.Context, p *users.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, or nil for an
// unauthenticated request.
func PrincipalFromContext(ctx context.Context) *users.Principal {
	p, _ := ctx.Value(principalKey).(*users.Principal)
	return p
}

// RequestContext carries the resolved state every method handler works from:
// who is asking, which mount serves the path, and where the target lives on
// disk. It is computed fresh per request and never outlives it.
type RequestContext struct {
	Principal *users.Principal
	Mount     *registry.Mount

	// Path is the cleaned URL path of the request.
	Path string

	// LocalPath is the target translated under the mount's local root.
	LocalPath string
}

// aclDir returns the directory whose ACL governs the target: the target
// itself when it is an existing directory, otherwise its parent.
func (rc *RequestContext) aclDir() string {
	if info, err := os.Stat(rc.LocalPath); err == nil && info.IsDir() {
		return rc.LocalPath
	}
	return filepath.Dir(rc.LocalPath)
}

// Handler is the uniform contract every WebDAV method implements.
type Handler interface {
	Handle(w http.ResponseWriter, r *http.Request, rc *RequestContext)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, rc *RequestContext)

func (f HandlerFunc) Handle(w http.ResponseWriter, r *http.Request, rc *RequestContext) {
	f(w, r, rc)
}
