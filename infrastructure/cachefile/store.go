// Package cachefile persists the rewards discovery record to a single
// human-inspectable YAML file with atomic replace semantics.
package cachefile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"steamclaim/domain/rewards"
)

// ErrPersist marks a failed durable write. The in-memory aggregate stays
// authoritative for the rest of the run; the previous file is untouched.
var ErrPersist = errors.New("cache persist failed")

// Store owns the PersistentConfig aggregate and its durable file. Every
// mutation persists the whole aggregate before returning, so a successful
// call implies durability. The read-modify-persist cycle is serialized by an
// in-process mutex and a cross-process file lock.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger

	mu  sync.Mutex
	cfg *rewards.PersistentConfig
}

// Open loads the store from path, creating an empty aggregate when the file
// does not exist yet.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	s := &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
		cfg:    rewards.NewPersistentConfig(),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run; start empty.
	case err != nil:
		return nil, fmt.Errorf("read cache file: %w", err)
	default:
		if err := yaml.Unmarshal(data, s.cfg); err != nil {
			return nil, fmt.Errorf("parse cache file %s: %w", path, err)
		}
		if s.cfg.PointsShopTokens == nil {
			s.cfg.PointsShopTokens = map[string][]rewards.Token{}
		}
		if s.cfg.FreeGameParams == nil {
			s.cfg.FreeGameParams = map[string]rewards.ClaimParams{}
		}
	}

	return s, nil
}

// Path returns the durable file path.
func (s *Store) Path() string {
	return s.path
}

// Tokens returns the cached token list for a discovery key.
func (s *Store) Tokens(key string) []rewards.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Tokens(key)
}

// Params returns the cached claim params for a discovery key.
func (s *Store) Params(key string) (rewards.ClaimParams, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Params(key)
}

// Snapshot returns a deep copy of the aggregate for inspection.
func (s *Store) Snapshot() *rewards.PersistentConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// AddTokens merges tokens for key and persists the aggregate. The in-memory
// merge always applies; a persist failure is reported as ErrPersist.
func (s *Store) AddTokens(key string, tokens []rewards.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if added := s.cfg.AddTokens(key, tokens); added == 0 {
		return nil
	}
	return s.persistLocked()
}

// SetParams records claim params for key and persists the aggregate. The
// in-memory update always applies; a persist failure is reported as
// ErrPersist.
func (s *Store) SetParams(key string, params rewards.ClaimParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if changed := s.cfg.SetParams(key, params); !changed {
		return nil
	}
	return s.persistLocked()
}

// persistLocked serializes the aggregate and atomically replaces the
// canonical file: marshal, write a sibling temp file, rename. A failure at
// any step leaves the canonical file in its previous state.
func (s *Store) persistLocked() error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("%w: acquire file lock: %v", ErrPersist, err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("Failed to release cache file lock", "error", err)
		}
	}()

	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrPersist, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write temp file: %v", ErrPersist, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: replace cache file: %v", ErrPersist, err)
	}
	return nil
}
