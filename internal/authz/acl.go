package authz

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/browncloud/davfs/internal/logger"
)

// ACLFileName is the reserved per-directory access-control file. It is owned
// by the core in the sense that it is interpreted here, but the core never
// writes it: principals holding the "acl" permission manage it over WebDAV
// like any other file.
const ACLFileName = ".webdav-acl"

// IsACLPath reports whether a resolved local path targets the reserved ACL
// file itself.
func IsACLPath(localPath string) bool {
	return filepath.Base(localPath) == ACLFileName
}

// ACL holds the parsed permission lists of one directory ACL file.
//
// The format is line-oriented: each line is "<listname>=<tokens>", with
// tokens separated by spaces or commas. Blank lines and lines without "=" are
// ignored. List names are the permission kinds: read, write, delete,
// new_file, acl.
type ACL struct {
	lists map[Permission][]string
	// Dir is the directory whose ACL file supplied these lists.
	Dir string
}

// Tokens returns the token list for a permission kind. Within an ACL file a
// missing list means no explicit grant, not "unrestricted".
func (a *ACL) Tokens(kind Permission) []string {
	if a == nil {
		return nil
	}
	return a.lists[kind]
}

// ParseACL parses the reserved file's line-oriented format.
func ParseACL(data []byte) map[Permission][]string {
	lists := make(map[Permission][]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		kind := Permission(strings.TrimSpace(name))
		switch kind {
		case PermRead, PermWrite, PermDelete, PermNewFile, PermACL:
		default:
			continue
		}
		tokens := strings.FieldsFunc(value, func(r rune) bool {
			return r == ' ' || r == ',' || r == '\t'
		})
		lists[kind] = tokens
	}
	return lists
}

// LoadACL finds the ACL governing a directory: starting at dir and walking
// upward toward root (inclusive), the first directory containing the reserved
// filename supplies the lists. Returns nil when no ancestor has one.
//
// The file is read fresh on every call; there is deliberately no cross-request
// cache, so edits to an ACL file take effect on the next request.
func LoadACL(dir, root string) (*ACL, error) {
	dir = filepath.Clean(dir)
	root = filepath.Clean(root)

	if dir != root && !strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return nil, fmt.Errorf("directory %q is outside root %q", dir, root)
	}

	for {
		candidate := filepath.Join(dir, ACLFileName)
		data, err := os.ReadFile(candidate)
		if err == nil {
			return &ACL{lists: ParseACL(data), Dir: dir}, nil
		}
		if !os.IsNotExist(err) {
			logger.Warn("failed to read ACL file %q: %v", candidate, err)
		}
		if dir == root {
			return nil, nil
		}
		dir = filepath.Dir(dir)
	}
}
