// Package envstate owns the process's view of the search path and toolkit
// environment variables.
//
// External installers mutate the persistent machine/user environment behind
// the process's back, so the process copy goes stale after every install
// step. Instead of ambient os.Getenv lookups scattered through the code, a
// single Snapshot is passed to every component that reads or writes the
// environment, and Refresh is the only way the persistent stores are merged
// back in.
package envstate

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Store is the persistent machine/user-level environment underneath the
// process. On Windows it is backed by the registry; tests inject a fake.
type Store interface {
	// MachinePath returns the machine-level search path entries.
	MachinePath() ([]string, error)
	// UserPath returns the user-level search path entries.
	UserPath() ([]string, error)
	// AppendMachinePath persistently appends dir to the machine-level search
	// path. It must be a no-op if dir is already present.
	AppendMachinePath(dir string) error
}

// Snapshot is the process-wide view of the search path plus toolkit-specific
// variables. Mutations go through Refresh, PrependPath and SetVar only; all
// three keep os.Environ in sync so child processes inherit the same view.
type Snapshot struct {
	store Store

	// prepends are process-local entries (e.g. the selected toolkit's bin
	// directory) that survive refreshes but are never persisted.
	prepends []string
	path     []string
	vars     map[string]string
}

// NewSnapshot builds a Snapshot over store and performs the initial Refresh.
func NewSnapshot(store Store) (*Snapshot, error) {
	s := &Snapshot{
		store: store,
		vars:  make(map[string]string),
	}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh re-merges the persistent machine and user path entries into the
// process, keeping process-local prepends at the front. It must be called
// after every external install step, before the next probe runs.
func (s *Snapshot) Refresh() error {
	machine, err := s.store.MachinePath()
	if err != nil {
		return errors.Wrap(err, "failed to read machine-level path")
	}
	user, err := s.store.UserPath()
	if err != nil {
		return errors.Wrap(err, "failed to read user-level path")
	}

	merged := make([]string, 0, len(s.prepends)+len(machine)+len(user))
	for _, entry := range [][]string{s.prepends, machine, user} {
		for _, dir := range entry {
			if dir == "" || containsPath(merged, dir) {
				continue
			}
			merged = append(merged, dir)
		}
	}
	s.path = merged

	if err := os.Setenv("PATH", strings.Join(s.path, string(os.PathListSeparator))); err != nil {
		return errors.Wrap(err, "failed to update process PATH")
	}
	// Reapply toolkit variables: some installers reset them.
	for key, value := range s.vars {
		if err := os.Setenv(key, value); err != nil {
			return errors.Wrapf(err, "failed to set %s", key)
		}
	}
	klog.V(2).Infof("Environment refreshed: %d path entries", len(s.path))
	return nil
}

// PrependPath puts dir at the front of the process search path.
// It is a no-op if dir is already present, so repeated runs don't grow the
// path without bound. The entry is process-local and not persisted.
func (s *Snapshot) PrependPath(dir string) error {
	if containsPath(s.path, dir) {
		return nil
	}
	s.prepends = append([]string{dir}, s.prepends...)
	return s.Refresh()
}

// AppendPersistentMachinePath appends dir to the persistent machine-level
// search path and refreshes. No-op if the machine path already contains dir.
func (s *Snapshot) AppendPersistentMachinePath(dir string) error {
	machine, err := s.store.MachinePath()
	if err != nil {
		return errors.Wrap(err, "failed to read machine-level path")
	}
	if !containsPath(machine, dir) {
		if err := s.store.AppendMachinePath(dir); err != nil {
			return errors.Wrapf(err, "failed to append %s to the machine-level path", dir)
		}
	}
	return s.Refresh()
}

// SetVar sets a toolkit variable in the process environment and records it so
// Refresh reapplies it.
func (s *Snapshot) SetVar(key, value string) error {
	s.vars[key] = value
	return errors.Wrapf(os.Setenv(key, value), "failed to set %s", key)
}

// Var returns the recorded value for key, if any.
func (s *Snapshot) Var(key string) (string, bool) {
	value, ok := s.vars[key]
	return value, ok
}

// Path returns a copy of the current merged search path entries.
func (s *Snapshot) Path() []string {
	out := make([]string, len(s.path))
	copy(out, s.path)
	return out
}

// LookPath resolves an executable name against the snapshot's search path.
func (s *Snapshot) LookPath(name string) (string, error) {
	// The snapshot keeps the process PATH in sync, so exec.LookPath sees the
	// same entries (including PATHEXT handling on Windows).
	return exec.LookPath(name)
}

// containsPath reports whether entries already contains dir, comparing
// cleaned paths case-insensitively (Windows paths are case-insensitive).
func containsPath(entries []string, dir string) bool {
	cleaned := filepath.Clean(dir)
	for _, entry := range entries {
		if strings.EqualFold(filepath.Clean(entry), cleaned) {
			return true
		}
	}
	return false
}
