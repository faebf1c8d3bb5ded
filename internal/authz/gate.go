// Package authz decides whether a principal may perform an operation on a
// mount. It combines the mount's static access lists, the per-directory ACL
// files and the owner bypass into a single gate.
package authz

import (
	"strings"

	"github.com/browncloud/davfs/internal/logger"
	"github.com/browncloud/davfs/internal/users"
	"github.com/browncloud/davfs/pkg/registry"
)

// Permission is an operation category gated by the authorization model.
type Permission string

const (
	PermRead    Permission = "read"
	PermWrite   Permission = "write"
	PermDelete  Permission = "delete"
	PermNewFile Permission = "new_file"
	// PermACL governs the reserved ACL file itself: reading it, listing it
	// and overwriting it all require this permission.
	PermACL Permission = "acl"
)

// Policy selects which generation of the authorization model is active.
type Policy string

const (
	// PolicyStatic decides from the mount's static lists only; directory ACL
	// files are ignored.
	PolicyStatic Policy = "static"

	// PolicyACL decides from the nearest directory ACL file. Directories not
	// covered by any ACL file fall back to the mount's static lists.
	PolicyACL Policy = "acl"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Allowed permits the operation.
	Allowed Decision = iota

	// Unauthorized means no principal was presented for a restricted
	// operation; the client gets a Basic-auth challenge and may retry.
	Unauthorized

	// Denied means the authenticated principal lacks the permission.
	Denied
)

// Gate evaluates the layered authorization model for one configured policy.
type Gate struct {
	policy Policy
}

// NewGate creates a gate for the given policy.
func NewGate(policy Policy) *Gate {
	return &Gate{policy: policy}
}

// Authorize decides an operation of the given kind against a mount.
//
// localDir is the directory whose ACL applies: the target itself when the
// target is a directory, otherwise the directory containing it. The mount
// owner passes every check regardless of lists.
func (g *Gate) Authorize(kind Permission, p *users.Principal, m *registry.Mount, localDir string) Decision {
	if m.Owner != "" && p != nil && p.Name == m.Owner {
		return Allowed
	}

	if g.policy == PolicyACL {
		acl, err := LoadACL(localDir, m.LocalRoot)
		if err != nil {
			logger.Warn("ACL lookup under mount %q failed: %v", m.URLPrefix, err)
			return deny(p)
		}
		if acl != nil {
			// An ACL file is an explicit policy: a kind it does not grant is
			// owner-only, even if the mount's static lists are wider.
			if matchAny(acl.Tokens(kind), p) {
				return Allowed
			}
			return deny(p)
		}
	}

	// Static lists (also the fallback when no ACL file covers the directory).
	if kind == PermACL {
		// Mounts carry no static acl list; managing ACL files is owner-only
		// until a directory ACL delegates it.
		return deny(p)
	}
	tokens := m.StaticList(string(kind))
	if len(tokens) == 0 {
		// No static restriction configured for this kind.
		return Allowed
	}
	if matchAny(tokens, p) {
		return Allowed
	}
	return deny(p)
}

func deny(p *users.Principal) Decision {
	if p == nil {
		return Unauthorized
	}
	return Denied
}

// matchAny reports whether any token grants the principal. Token forms:
// "*" (any principal, authenticated or not), "user:<name>", "group:<name>",
// or a bare name matching the username or any group.
func matchAny(tokens []string, p *users.Principal) bool {
	for _, token := range tokens {
		if matchToken(token, p) {
			return true
		}
	}
	return false
}

func matchToken(token string, p *users.Principal) bool {
	if token == "*" {
		return true
	}
	if p == nil {
		return false
	}
	if name, ok := strings.CutPrefix(token, "user:"); ok {
		return p.Name == name
	}
	if name, ok := strings.CutPrefix(token, "group:"); ok {
		return p.InGroup(name)
	}
	return p.Name == token || p.InGroup(token)
}
