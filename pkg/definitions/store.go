// Package definitions keeps a small glossary of business terms next to the
// metadata cache so generated SQL can use the caller's vocabulary.
package definitions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/cache"
)

// FileName is the definitions file inside the cache directory.
const FileName = "_definitions.json"

// Store is a term to definition map persisted as one JSON object. Updates
// replace the file atomically; a mutex serializes read-modify-write cycles
// within the process.
type Store struct {
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// NewStore returns a store at <cacheDir>/_definitions.json.
func NewStore(cacheDir string, logger *zap.Logger) *Store {
	return &Store{
		path:   filepath.Join(cacheDir, FileName),
		logger: logger.Named("definitions"),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the definition of term. ok is false when the term is unknown.
func (s *Store) Get(ctx context.Context, term string) (definition string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs, err := s.readLocked()
	if err != nil {
		return "", false, err
	}
	definition, ok = defs[term]
	return definition, ok, nil
}

// Put stores or replaces the definition of term.
func (s *Store) Put(ctx context.Context, term, definition string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return errors.New("term must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	defs, err := s.readLocked()
	if err != nil {
		return err
	}
	defs[term] = definition

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: create %s: %v", apperrors.ErrIOFailure, filepath.Dir(s.path), err)
	}
	if err := cache.WriteJSONAtomic(s.path, defs); err != nil {
		return fmt.Errorf("store definition %q: %w", term, err)
	}

	s.logger.Debug("Stored definition", zap.String("term", term))
	return nil
}

// All returns every stored definition. A missing file yields an empty map.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read definitions: %v", apperrors.ErrIOFailure, err)
	}

	defs := map[string]string{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return defs, nil
	}
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("%w: decode definitions: %v", apperrors.ErrIOFailure, err)
	}
	return defs, nil
}
