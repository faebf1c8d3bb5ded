// Package users is the authentication collaborator of the WebDAV core: it
// loads the users file and turns Basic-auth credentials into a Principal.
package users

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/browncloud/davfs/internal/logger"
)

// Principal is an authenticated identity: a username plus the groups it
// belongs to. A nil *Principal means the request is unauthenticated.
type Principal struct {
	Name   string
	Groups []string
}

// InGroup reports whether the principal belongs to the named group.
func (p *Principal) InGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// User is one entry of the users file.
type User struct {
	Name string `yaml:"name"`
	// PasswordHash is a bcrypt hash, as produced by HashPassword.
	PasswordHash string   `yaml:"password_hash"`
	Groups       []string `yaml:"groups"`
}

type usersFile struct {
	Users []User `yaml:"users"`
}

// Store holds the parsed users file.
type Store struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewStore creates an empty store. Authenticate always fails until Load.
func NewStore() *Store {
	return &Store{users: make(map[string]User)}
}

// Load reads a YAML users file. A missing file is not an error: the store is
// simply empty and every authentication attempt fails with a challenge.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("users file %q does not exist, no principals can authenticate", path)
			return nil
		}
		return fmt.Errorf("failed to read users file: %w", err)
	}

	var parsed usersFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse users file %q: %w", path, err)
	}

	users := make(map[string]User, len(parsed.Users))
	for _, u := range parsed.Users {
		if u.Name == "" {
			return fmt.Errorf("users file %q contains an entry without a name", path)
		}
		if _, exists := users[u.Name]; exists {
			return fmt.Errorf("users file %q defines user %q twice", path, u.Name)
		}
		users[u.Name] = u
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	logger.Info("loaded %d users from %q", len(users), path)
	return nil
}

// Authenticate verifies a username/password pair and returns the Principal on
// success, or nil when the user is unknown or the password does not match.
func (s *Store) Authenticate(name, password string) *Principal {
	s.mu.RLock()
	u, ok := s.users[name]
	s.mu.RUnlock()

	if !ok {
		logger.Debug("authentication failed: unknown user %q", name)
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logger.Debug("authentication failed: password mismatch for user %q", name)
		return nil
	}
	return &Principal{Name: u.Name, Groups: u.Groups}
}

// HashPassword produces the bcrypt hash stored in the users file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
