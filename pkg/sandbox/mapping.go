// Package sandbox owns everything that decides where a user's files live:
// the username-to-subfolder mapping, its on-disk persistence, and the path
// resolver that turns client-supplied relative paths into canonical absolute
// paths guaranteed to stay inside the user's sandbox.
package sandbox

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"sandgate/internal/logger"
)

// AdminUser is the reserved administrative account. Its sandbox is the root
// folder itself, so the mapping always carries an entry pinning it to ".".
const AdminUser = "admin"

const adminFolder = "."

// mappingFile is the YAML document persisted to the side file.
type mappingFile struct {
	Folders map[string]string `yaml:"folders"`
}

// Mapping is the concurrent username-to-sandbox-subfolder table.
//
// Users without an entry fall back to a subfolder named after the username,
// so the table only needs explicit rows for renamed sandboxes and the
// reserved administrative account.
type Mapping struct {
	mu      sync.RWMutex
	path    string
	folders map[string]string
}

// LoadMapping reads the mapping side file. A missing file is not an error:
// the mapping starts empty apart from the reserved administrative entry.
func LoadMapping(path string) (*Mapping, error) {
	m := &Mapping{
		path:    path,
		folders: map[string]string{AdminUser: adminFolder},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("Mapping file %s absent, starting with defaults", path)
			return m, nil
		}
		return nil, fmt.Errorf("read mapping file: %w", err)
	}

	var doc mappingFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mapping file: %w", err)
	}

	for username, folder := range doc.Folders {
		m.folders[username] = folder
	}
	// The administrative entry is not overridable from disk.
	m.folders[AdminUser] = adminFolder

	logger.Info("Loaded folder mapping: %d entries from %s", len(m.folders), path)
	return m, nil
}

// Save serializes the full mapping and replaces the side file in one rename.
func (m *Mapping) Save() error {
	m.mu.RLock()
	doc := mappingFile{Folders: make(map[string]string, len(m.folders))}
	for username, folder := range m.folders {
		doc.Folders[username] = folder
	}
	m.mu.RUnlock()

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("serialize mapping: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write mapping file: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace mapping file: %w", err)
	}

	logger.Debug("Saved folder mapping: %d entries to %s", len(doc.Folders), m.path)
	return nil
}

// Folder returns the sandbox subfolder for a username, defaulting to the
// username itself when no entry exists.
func (m *Mapping) Folder(username string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if folder, ok := m.folders[username]; ok {
		return folder
	}
	return username
}

// Set records or replaces a user's sandbox subfolder. The administrative
// entry cannot be redirected.
func (m *Mapping) Set(username, folder string) {
	if username == AdminUser {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[username] = folder
}

// Remove drops a user's entry. Removing the administrative entry is refused.
func (m *Mapping) Remove(username string) {
	if username == AdminUser {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.folders, username)
}

// Snapshot returns a copy of the table, mainly for diagnostics and tests.
func (m *Mapping) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.folders))
	for username, folder := range m.folders {
		out[username] = folder
	}
	return out
}

// AccountCreated implements the credential-store observer: a new account
// gets a mapping entry named after the username.
func (m *Mapping) AccountCreated(username string) {
	m.Set(username, username)
}

// AccountDeleted implements the credential-store observer.
func (m *Mapping) AccountDeleted(username string) {
	m.Remove(username)
}

// Path returns the side-file location this mapping persists to.
func (m *Mapping) Path() string {
	return m.path
}
