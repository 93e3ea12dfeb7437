package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/logger"
)

const (
	stagingPrefix = ".staging-"
	restoreSuffix = ".nascert-restore"
	oldSuffix     = ".nascert-old"
)

// Manager creates, lists and restores snapshots under a backup root.
type Manager struct {
	root   string
	stores []Store
	domain string
	now    func() time.Time

	// rename is os.Rename, replaceable in tests to inject swap failures.
	rename func(oldpath, newpath string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for snapshot ids.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithDomain records the domain in every manifest.
func WithDomain(domain string) Option {
	return func(m *Manager) {
		m.domain = domain
	}
}

// NewManager creates a Manager for the given stores. The first store is the
// primary store and is restored first.
func NewManager(root string, stores []Store, opts ...Option) *Manager {
	m := &Manager{
		root:   root,
		stores: stores,
		now:    time.Now,
		rename: os.Rename,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the backup root.
func (m *Manager) Root() string {
	return m.root
}

// Create copies every store into a new snapshot and makes it the latest.
// On failure nothing is left behind and the latest pointer is unchanged.
func (m *Manager) Create(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackup, "failed to create backup root", err)
	}

	created := m.now()
	id, err := m.nextID(created)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackup, "failed to allocate snapshot id", err)
	}

	staging := filepath.Join(m.root, stagingPrefix+id)
	if err := os.RemoveAll(staging); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackup, "failed to clear staging directory", err)
	}
	if err := os.MkdirAll(staging, 0700); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackup, "failed to create staging directory", err)
	}

	snap := &Snapshot{
		ID:        id,
		CreatedAt: created,
		Domain:    m.domain,
	}

	fail := func(msg string, err error) (*Snapshot, error) {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			logger.Warn("Failed to remove staging directory %s: %v", staging, rmErr)
		}
		return nil, errors.Wrap(errors.ErrCodeBackup, msg, err)
	}

	for _, store := range m.stores {
		record := StoreRecord{Name: store.Name, Source: store.Path}

		if _, err := os.Stat(store.Path); err != nil {
			if os.IsNotExist(err) && store.Optional {
				logger.Debug("Store %s (%s) not present, skipping", store.Name, store.Path)
				snap.Stores = append(snap.Stores, record)
				continue
			}
			return fail(fmt.Sprintf("cannot read store %s", store.Path), err)
		}

		files, err := copyTree(ctx, store.Path, filepath.Join(staging, store.Name))
		if err != nil {
			return fail(fmt.Sprintf("failed to copy %s", store.Path), err)
		}
		record.Files = files
		record.Present = true
		snap.Stores = append(snap.Stores, record)

		logger.DebugFields("Store copied", map[string]interface{}{
			"store": store.Name,
			"path":  store.Path,
			"files": files,
		})
	}

	if err := writeManifest(staging, snap); err != nil {
		return fail("failed to write manifest", err)
	}

	dir := filepath.Join(m.root, id)
	if err := os.Chmod(staging, 0755); err != nil {
		return fail("failed to finalize snapshot", err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return fail("failed to finalize snapshot", err)
	}
	snap.Dir = dir

	if err := writeFileAtomic(filepath.Join(m.root, latestFile), []byte(id), 0644); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn("Failed to remove snapshot directory %s: %v", dir, rmErr)
		}
		return nil, errors.Wrap(errors.ErrCodeBackup, "failed to update latest pointer", err)
	}

	logger.InfoFields("Snapshot created", map[string]interface{}{
		"id":    id,
		"files": snap.Files(),
	})
	return snap, nil
}

// nextID formats t as an id, adding a numeric suffix when taken.
func (m *Manager) nextID(t time.Time) (string, error) {
	base := t.Format(IDFormat)
	id := base
	for n := 2; ; n++ {
		_, err := os.Lstat(filepath.Join(m.root, id))
		if os.IsNotExist(err) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// Latest returns the id of the latest snapshot. It returns a
// SnapshotNotFound error when no snapshot has been created.
func (m *Manager) Latest() (string, error) {
	data, err := os.ReadFile(filepath.Join(m.root, latestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.SnapshotNotFound("")
		}
		return "", errors.Wrap(errors.ErrCodeInternal, "failed to read latest pointer", err)
	}

	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", errors.SnapshotNotFound("")
	}
	return id, nil
}

// Get loads the snapshot with the given id. An empty id resolves to latest.
func (m *Manager) Get(id string) (*Snapshot, error) {
	if id == "" {
		latest, err := m.Latest()
		if err != nil {
			return nil, err
		}
		id = latest
	}

	if !validID(id) {
		return nil, errors.SnapshotNotFound(id)
	}

	dir := filepath.Join(m.root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.SnapshotNotFound(id)
	}

	snap, err := readManifest(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.SnapshotNotFound(id)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, "failed to read snapshot", err)
	}
	return snap, nil
}

// validID rejects ids that would escape the backup root.
func validID(id string) bool {
	return id != "." && id != ".." && !strings.HasPrefix(id, ".") &&
		!strings.ContainsAny(id, `/\`) && id != latestFile
}

// List returns every snapshot, newest first.
func (m *Manager) List() ([]*Snapshot, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup root: %w", err)
	}

	var snaps []*Snapshot
	for _, e := range entries {
		if !e.IsDir() || !validID(e.Name()) {
			continue
		}
		snap, err := readManifest(filepath.Join(m.root, e.Name()))
		if err != nil {
			logger.Debug("Skipping %s: %v", e.Name(), err)
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return snaps[i].ID > snaps[j].ID
	})
	return snaps, nil
}

// Prune removes the oldest snapshots so that at most keep remain. The latest
// snapshot is never removed. It returns the removed ids.
func (m *Manager) Prune(keep int) ([]string, error) {
	if keep < 1 {
		return nil, errors.Validationf("keep must be at least 1, got %d", keep)
	}

	snaps, err := m.List()
	if err != nil {
		return nil, err
	}

	latest, err := m.Latest()
	if err != nil && !errors.Is(err, errors.ErrSnapshotNotFound) {
		return nil, err
	}

	var removed []string
	kept := 0
	for _, s := range snaps {
		if s.ID == latest || kept < keep {
			kept++
			continue
		}
		if err := os.RemoveAll(s.Dir); err != nil {
			return removed, fmt.Errorf("failed to remove snapshot %s: %w", s.ID, err)
		}
		logger.Debug("Pruned snapshot %s", s.ID)
		removed = append(removed, s.ID)
	}
	return removed, nil
}

// swap tracks one store replaced during a restore.
type swap struct {
	live string
	old  string
	// hadLive is false when the live directory did not exist before.
	hadLive bool
}

// Restore replaces the live stores with the snapshot contents. An empty id
// resolves to latest. When the snapshot cannot be resolved the live stores
// are not touched and a SnapshotNotFound error is returned; any other
// failure leaves the live stores as they were and returns RestoreFailed.
func (m *Manager) Restore(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	var done []swap
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			s := done[i]
			if err := os.RemoveAll(s.live); err != nil {
				logger.Error("Rollback of %s failed: %v", s.live, err)
				continue
			}
			if s.hadLive {
				if err := m.rename(s.old, s.live); err != nil {
					logger.Error("Rollback of %s failed: %v", s.live, err)
				}
			}
		}
	}

	for _, store := range m.stores {
		record, ok := snap.Record(store.Name)
		if !ok {
			logger.Debug("Store %s not in snapshot %s, leaving it untouched", store.Name, snap.ID)
			continue
		}

		var s swap
		if record.Present {
			s, err = m.swapIn(ctx, store, snap.StorePath(store.Name))
		} else {
			// absent when the snapshot was taken, so it must be absent after
			s, err = m.moveAside(store)
		}
		if err != nil {
			rollback()
			return nil, errors.Wrap(errors.ErrCodeRestore,
				fmt.Sprintf("failed to restore %s from snapshot %s", store.Path, snap.ID), err)
		}
		done = append(done, s)
		logger.Debug("Restored %s from snapshot %s", store.Path, snap.ID)
	}

	for _, s := range done {
		if s.hadLive {
			if err := os.RemoveAll(s.old); err != nil {
				logger.Warn("Failed to remove %s: %v", s.old, err)
			}
		}
	}

	logger.InfoFields("Snapshot restored", map[string]interface{}{
		"id": snap.ID,
	})
	return snap, nil
}

// moveAside moves a live store out of the way so that it no longer exists.
func (m *Manager) moveAside(store Store) (swap, error) {
	s := swap{live: store.Path, old: store.Path + oldSuffix}
	if _, err := os.Lstat(store.Path); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := os.RemoveAll(s.old); err != nil {
		return s, err
	}
	if err := m.rename(store.Path, s.old); err != nil {
		return s, err
	}
	s.hadLive = true
	return s, nil
}

// swapIn stages src next to the live store and swaps it into place.
func (m *Manager) swapIn(ctx context.Context, store Store, src string) (swap, error) {
	s := swap{live: store.Path, old: store.Path + oldSuffix}
	staged := store.Path + restoreSuffix

	if err := os.RemoveAll(staged); err != nil {
		return s, err
	}
	if err := os.MkdirAll(filepath.Dir(store.Path), 0755); err != nil {
		return s, err
	}
	if _, err := copyTree(ctx, src, staged); err != nil {
		os.RemoveAll(staged)
		return s, err
	}

	if _, err := os.Lstat(store.Path); err == nil {
		if err := os.RemoveAll(s.old); err != nil {
			os.RemoveAll(staged)
			return s, err
		}
		if err := m.rename(store.Path, s.old); err != nil {
			os.RemoveAll(staged)
			return s, err
		}
		s.hadLive = true
	}

	if err := m.rename(staged, store.Path); err != nil {
		if s.hadLive {
			if rbErr := m.rename(s.old, store.Path); rbErr != nil {
				logger.Error("Failed to put %s back: %v", store.Path, rbErr)
			}
		}
		os.RemoveAll(staged)
		return s, err
	}
	return s, nil
}
