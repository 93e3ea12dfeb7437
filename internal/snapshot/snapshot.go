package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// IDFormat is the time layout of snapshot ids.
const IDFormat = "20060102-150405"

const (
	manifestFile = "manifest.yaml"
	latestFile   = "latest"
)

// Store is a live directory covered by snapshots.
type Store struct {
	// Name is the sub-directory used inside a snapshot.
	Name string
	// Path is the live location.
	Path string
	// Optional stores may be absent on the host.
	Optional bool
}

// StoreRecord describes one store inside a snapshot.
type StoreRecord struct {
	Name    string `yaml:"name"`
	Source  string `yaml:"source"`
	Files   int    `yaml:"files"`
	Present bool   `yaml:"present"`
}

// Snapshot is an immutable copy of the certificate stores.
type Snapshot struct {
	ID        string        `yaml:"id"`
	CreatedAt time.Time     `yaml:"created_at"`
	Domain    string        `yaml:"domain,omitempty"`
	Stores    []StoreRecord `yaml:"stores"`

	// Dir is the snapshot directory.
	Dir string `yaml:"-"`
}

// StorePath returns the directory holding the copy of the named store.
func (s *Snapshot) StorePath(name string) string {
	return filepath.Join(s.Dir, name)
}

// Record returns the record for the named store.
func (s *Snapshot) Record(name string) (StoreRecord, bool) {
	for _, r := range s.Stores {
		if r.Name == name {
			return r, true
		}
	}
	return StoreRecord{}, false
}

// Files returns the total number of files across all stores.
func (s *Snapshot) Files() int {
	total := 0
	for _, r := range s.Stores {
		total += r.Files
	}
	return total
}

func writeManifest(dir string, s *Snapshot) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func readManifest(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}

	s := &Snapshot{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse manifest in %s: %w", dir, err)
	}
	s.Dir = dir
	return s, nil
}
