// Package prefs keeps the plan bound to each power state and mirrors it to
// a JSON file on every change.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
)

// DefaultFileName is the preference file name inside the volt home.
const DefaultFileName = "power_plans.json"

// PersistenceError reports a preference file that could not be read or
// written.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s preferences %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Map is a snapshot of the preferences. It always holds one entry per
// state in power.States; a nil value means unset.
type Map map[power.State]*plan.ID

func newMap() Map {
	m := make(Map, len(power.States))
	for _, s := range power.States {
		m[s] = nil
	}
	return m
}

// Get returns the plan bound to s.
func (m Map) Get(s power.State) (plan.ID, bool) {
	id := m[s]
	if id == nil {
		return plan.ID{}, false
	}
	return *id, true
}

func (m Map) clone() Map {
	out := newMap()
	for s, id := range m {
		if id != nil {
			v := *id
			out[s] = &v
		}
	}
	return out
}

// Options configures a Store.
type Options struct {
	// Rollback restores the previous in-memory value when a write fails.
	// By default the in-memory change is kept and only the error is returned.
	Rollback bool
	Logger   *zap.Logger
}

// Store owns the preference map and its file.
type Store struct {
	path     string
	rollback bool
	log      *zap.Logger

	mu sync.RWMutex
	m  Map
}

// Open creates a Store backed by path and loads it. It never fails: a
// missing or unreadable file yields an empty map.
func Open(path string, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{path: path, rollback: opts.Rollback, log: log, m: newMap()}
	s.Load()
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Load re-reads the file, replacing the in-memory map. Read failures and
// invalid identifiers are logged and leave the affected entries unset.
func (s *Store) Load() Map {
	m, err := readFile(s.path)
	if err != nil {
		s.log.Warn("using empty preferences", zap.Error(err))
	}
	for key, raw := range m.invalid {
		s.log.Warn("ignoring saved preference", zap.String("state", key), zap.Error(raw))
	}

	s.mu.Lock()
	s.m = m.prefs
	out := s.m.clone()
	s.mu.Unlock()
	return out
}

// Snapshot returns a copy of the current map.
func (s *Store) Snapshot() Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.clone()
}

// Get returns the plan bound to state.
func (s *Store) Get(state power.State) (plan.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.Get(state)
}

// Set binds id to state and rewrites the file. On a write failure the
// returned error is a *PersistenceError.
func (s *Store) Set(state power.State, id plan.ID) error {
	return s.update(state, &id)
}

// Clear unbinds state and rewrites the file.
func (s *Store) Clear(state power.State) error {
	return s.update(state, nil)
}

func (s *Store) update(state power.State, id *plan.ID) error {
	if !state.Valid() {
		return fmt.Errorf("cannot bind a plan to state %q", state)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.m[state]
	s.m[state] = id
	if err := writeFile(s.path, s.m); err != nil {
		if s.rollback {
			s.m[state] = prev
		}
		return err
	}
	return nil
}

type loaded struct {
	prefs   Map
	invalid map[string]error
}

func readFile(path string) (loaded, error) {
	out := loaded{prefs: newMap(), invalid: map[string]error{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, &PersistenceError{Path: path, Op: "read", Err: err}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return out, &PersistenceError{Path: path, Op: "decode", Err: err}
	}
	// Each entry is decoded on its own so one bad value leaves the other intact.
	for _, st := range power.States {
		entry, ok := raw[st.Key()]
		if !ok {
			continue
		}
		var v *string
		if err := json.Unmarshal(entry, &v); err != nil {
			out.invalid[st.Key()] = err
			continue
		}
		if v == nil {
			continue
		}
		id, err := plan.ParseID(*v)
		if err != nil {
			out.invalid[st.Key()] = err
			continue
		}
		out.prefs[st] = &id
	}
	return out, nil
}

// writeFile replaces path atomically with the full map.
func writeFile(path string, m Map) error {
	raw := make(map[string]*string, len(power.States))
	for _, st := range power.States {
		raw[st.Key()] = nil
		if id := m[st]; id != nil {
			v := id.String()
			raw[st.Key()] = &v
		}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return &PersistenceError{Path: path, Op: "encode", Err: err}
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".power_plans-*.json")
	if err != nil {
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &PersistenceError{Path: path, Op: "write", Err: err}
	}
	return nil
}
