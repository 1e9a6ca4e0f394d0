package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/apperrors"
)

// Engine names returned by EngineFromURL.
const (
	EnginePostgres = "postgres"
	EngineMySQL    = "mysql"
)

// DefaultConfigFile is read when present in the working directory.
const DefaultConfigFile = "config.yaml"

// DefaultSchema is used when DB_SCHEMA is unset.
const DefaultSchema = "public"

// Config holds all configuration for ekaya-dbmeta.
// Configuration can come from a YAML file or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (connection strings, passwords) must only come from environment variables.
type Config struct {
	DatabaseURL string `yaml:"-" env:"DATABASE_URL"` // Secret - not in YAML; CLI argument wins
	Schema      string `yaml:"schema" env:"DB_SCHEMA" env-default:"public"`
	Env         string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version     string `yaml:"-"` // Set at load time, not from config

	Cache      CacheConfig      `yaml:"cache"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Datasource DatasourceConfig `yaml:"datasource"`
	Redis      RedisConfig      `yaml:"redis"`
}

// CacheConfig holds the metadata cache location.
type CacheConfig struct {
	// Dir is the cache root. Relative paths are resolved against the directory
	// holding the executable, so the cache follows the binary rather than the
	// caller's working directory.
	Dir string `yaml:"dir" env:"CACHE_DIR" env-default:"cache"`
}

// RefreshConfig bounds what a single refresh batch may do.
type RefreshConfig struct {
	TableLimit          int `yaml:"table_limit" env:"REFRESH_TABLE_LIMIT" env-default:"5"`
	SampleLimit         int `yaml:"sample_limit" env:"REFRESH_SAMPLE_LIMIT" env-default:"5"`
	TopValues           int `yaml:"top_values" env:"REFRESH_TOP_VALUES" env-default:"3"`
	ColumnConcurrency   int `yaml:"column_concurrency" env:"REFRESH_COLUMN_CONCURRENCY" env-default:"4"`
	TableConcurrency    int `yaml:"table_concurrency" env:"REFRESH_TABLE_CONCURRENCY" env-default:"5"`
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"REFRESH_QUERY_TIMEOUT_SECONDS" env-default:"60"`
	BackgroundBatches   int `yaml:"background_batches" env:"REFRESH_BACKGROUND_BATCHES" env-default:"2"`
	TaskHistory         int `yaml:"task_history" env:"REFRESH_TASK_HISTORY" env-default:"100"`
}

// QueryTimeout returns the per-statement timeout applied to introspection queries.
func (c RefreshConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// DatasourceConfig holds datasource connection pool settings.
type DatasourceConfig struct {
	// PoolMaxConns is the maximum number of connections in the datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections kept open.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`
	// ConnIdleMinutes is how long an idle pooled connection is kept alive.
	ConnIdleMinutes int `yaml:"conn_idle_minutes" env:"DATASOURCE_CONN_IDLE_MINUTES" env-default:"5"`
}

// poolHeadroom is how many pooled connections refresh work leaves free for
// queries and resource reads.
const poolHeadroom = 2

// RefreshSlots returns how many introspection round trips refresh work may
// have in flight: the pool size minus headroom, never less than one.
func (c DatasourceConfig) RefreshSlots() int {
	return max(int(c.PoolMaxConns)-poolHeadroom, 1)
}

// ConnIdleTime returns ConnIdleMinutes as a duration.
func (c DatasourceConfig) ConnIdleTime() time.Duration {
	return time.Duration(c.ConnIdleMinutes) * time.Minute
}

// RedisConfig selects the shared refresh tracker. An empty Host keeps refresh
// markers in process memory.
type RedisConfig struct {
	Host         string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port         int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password     string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB           int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix    string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"dbmeta"`
	LeaseSeconds int    `yaml:"lease_seconds" env:"REDIS_LEASE_SECONDS" env-default:"300"`
}

// Enabled reports whether a Redis tracker should be used.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns host:port for the Redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}

// Lease returns LeaseSeconds as a duration.
func (c RedisConfig) Lease() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

// Load reads configuration from path (if it exists) with environment variable
// overrides. An empty path means DefaultConfigFile. A missing file is not an
// error; the environment and defaults are used instead.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if path == "" {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	dir, err := resolveCacheDir(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache dir: %w", err)
	}
	cfg.Cache.Dir = dir

	return cfg, nil
}

// Validate checks the loaded values. It is called after CLI overrides are applied.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required")
	}
	if _, err := EngineFromURL(c.DatabaseURL); err != nil {
		return err
	}
	if c.Schema == "" {
		return errors.New("schema must not be empty")
	}

	positive := map[string]int{
		"refresh.table_limit":           c.Refresh.TableLimit,
		"refresh.sample_limit":          c.Refresh.SampleLimit,
		"refresh.top_values":            c.Refresh.TopValues,
		"refresh.column_concurrency":    c.Refresh.ColumnConcurrency,
		"refresh.table_concurrency":     c.Refresh.TableConcurrency,
		"refresh.query_timeout_seconds": c.Refresh.QueryTimeoutSeconds,
		"refresh.background_batches":    c.Refresh.BackgroundBatches,
		"refresh.task_history":          c.Refresh.TaskHistory,
		"datasource.pool_max_conns":     int(c.Datasource.PoolMaxConns),
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.Datasource.PoolMinConns < 0 || c.Datasource.PoolMinConns > c.Datasource.PoolMaxConns {
		return fmt.Errorf("datasource.pool_min_conns must be between 0 and pool_max_conns, got %d", c.Datasource.PoolMinConns)
	}
	if c.Redis.Enabled() && c.Redis.LeaseSeconds <= 0 {
		return fmt.Errorf("redis.lease_seconds must be positive, got %d", c.Redis.LeaseSeconds)
	}
	return nil
}

// EngineFromURL returns the engine name for a connection string based on its
// scheme. Unknown schemes return apperrors.ErrUnsupportedScheme.
func EngineFromURL(rawURL string) (string, error) {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return EnginePostgres, nil
	case strings.HasPrefix(rawURL, "mysql://"):
		return EngineMySQL, nil
	default:
		return "", apperrors.ErrUnsupportedScheme
	}
}

// resolveCacheDir anchors a relative cache directory at the executable's directory.
func resolveCacheDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), dir), nil
}

// DatabaseName returns the database path component of a connection URL, used
// for log fields and health output.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// EffectiveSchema returns the schema to introspect. MySQL has no schemas
// inside a database, so the default "public" maps to the URL's database.
func (c *Config) EffectiveSchema() string {
	engine, err := EngineFromURL(c.DatabaseURL)
	if err == nil && engine == EngineMySQL && (c.Schema == "" || c.Schema == DefaultSchema) {
		if db := DatabaseName(c.DatabaseURL); db != "" {
			return db
		}
	}
	return c.Schema
}
