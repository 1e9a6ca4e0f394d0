// Package cache persists per-table metadata documents.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

const (
	documentExt     = ".json"
	filePermissions = 0644
	dirPermissions  = 0755
)

// Store reads and writes cached table metadata, partitioned by schema.
// Implementations do no locking; readers gate on the refresh tracker.
type Store interface {
	Read(ctx context.Context, schema, table string) (*models.TableMetadata, error)
	Write(ctx context.Context, schema, table string, doc *models.TableMetadata) error
	ListCachedTables(ctx context.Context, schema string) ([]string, error)
	Clear(ctx context.Context, schema, table string) error
}

// FileStore keeps one pretty-printed JSON document per table at
// <dir>/<schema>/<table>.json. Names are path-escaped.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store rooted at dir. The directory is created lazily
// on first write.
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: logger.Named("cache"),
	}
}

// Dir returns the cache root.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) schemaDir(schema string) string {
	return filepath.Join(s.dir, escapeName(schema))
}

func (s *FileStore) documentPath(schema, table string) string {
	return filepath.Join(s.schemaDir(schema), escapeName(table)+documentExt)
}

// escapeName makes a database identifier safe as a single path element.
// A leading dot is escaped too so "." and ".." cannot resolve to a parent
// and temp files stay distinguishable from documents.
func escapeName(name string) string {
	escaped := url.PathEscape(name)
	if strings.HasPrefix(escaped, ".") {
		escaped = "%2E" + escaped[1:]
	}
	return escaped
}

// Read returns the cached document, or apperrors.ErrNotFound when none exists.
func (s *FileStore) Read(ctx context.Context, schema, table string) (*models.TableMetadata, error) {
	data, err := os.ReadFile(s.documentPath(schema, table))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s.%s: %v", apperrors.ErrIOFailure, schema, table, err)
	}

	// Numbers in samples and min/max decode as json.Number so bigint values
	// above 2^53 survive a write and read unchanged.
	var doc models.TableMetadata
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s.%s: %v", apperrors.ErrIOFailure, schema, table, err)
	}
	return &doc, nil
}

// Write replaces the document for schema.table. Concurrent readers see
// either the old or the new document in full.
func (s *FileStore) Write(ctx context.Context, schema, table string, doc *models.TableMetadata) error {
	dir := s.schemaDir(schema)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("%w: create %s: %v", apperrors.ErrIOFailure, dir, err)
	}
	if err := WriteJSONAtomic(s.documentPath(schema, table), doc); err != nil {
		return fmt.Errorf("write %s.%s: %w", schema, table, err)
	}

	s.logger.Debug("Wrote table metadata",
		zap.String("schema", schema),
		zap.String("table", table),
		zap.Int("columns", len(doc.Columns)))
	return nil
}

// WriteJSONAtomic writes v as indented JSON to a temporary file next to path
// and renames it into place. Errors wrap apperrors.ErrIOFailure.
func WriteJSONAtomic(path string, v any) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", apperrors.ErrIOFailure, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: encode: %v", apperrors.ErrIOFailure, err)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod temp file: %v", apperrors.ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", apperrors.ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", apperrors.ErrIOFailure, base, err)
	}
	return nil
}

// ListCachedTables returns the sorted names of tables with a cached document
// for schema. A schema with no cache directory yields an empty list.
func (s *FileStore) ListCachedTables(ctx context.Context, schema string) ([]string, error) {
	entries, err := os.ReadDir(s.schemaDir(schema))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: list %s: %v", apperrors.ErrIOFailure, schema, err)
	}

	tables := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, documentExt) {
			continue
		}
		table, err := url.PathUnescape(strings.TrimSuffix(name, documentExt))
		if err != nil {
			continue
		}
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables, nil
}

// Clear removes cached documents. An empty table clears the whole schema; an
// empty schema clears every schema. Missing targets are not an error.
func (s *FileStore) Clear(ctx context.Context, schema, table string) error {
	var target string
	switch {
	case schema == "":
		return s.clearAll()
	case table == "":
		target = s.schemaDir(schema)
	default:
		target = s.documentPath(schema, table)
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("%w: clear %s: %v", apperrors.ErrIOFailure, target, err)
	}
	s.logger.Info("Cleared metadata cache", zap.String("schema", schema), zap.String("table", table))
	return nil
}

// clearAll removes every schema directory but leaves other files at the cache
// root (such as the definitions file) in place.
func (s *FileStore) clearAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: list %s: %v", apperrors.ErrIOFailure, s.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("%w: clear %s: %v", apperrors.ErrIOFailure, e.Name(), err)
		}
	}
	s.logger.Info("Cleared metadata cache for all schemas")
	return nil
}
