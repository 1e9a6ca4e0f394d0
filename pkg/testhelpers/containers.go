// Package testhelpers provides shared containers for ekaya-dbmeta integration tests.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver for fixture loading
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage = "postgres:16-alpine"
	MySQLImage    = "mysql:8.4"
	RedisImage    = "redis:7-alpine"

	testUser     = "dbmeta"
	testPassword = "test_password"
	testDatabase = "shop"
)

// TestDB holds a shared database container with the shop fixture loaded.
type TestDB struct {
	Container testcontainers.Container
	// URL is the connection string in the form the CLI accepts
	// (postgresql://... or mysql://...).
	URL string
}

var (
	sharedPostgres     *TestDB
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error

	sharedMySQL     *TestDB
	sharedMySQLOnce sync.Once
	sharedMySQLErr  error

	sharedRedis     *redis.Client
	sharedRedisOnce sync.Once
	sharedRedisErr  error
)

func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}
}

// GetTestPostgres returns a shared PostgreSQL container loaded with the shop
// fixture. The container is created once and reused across the test run.
func GetTestPostgres(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = setupPostgres()
	})
	if sharedPostgresErr != nil {
		t.Fatalf("Failed to setup postgres: %v", sharedPostgresErr)
	}
	return sharedPostgres
}

// GetTestMySQL returns a shared MySQL container loaded with the shop fixture.
func GetTestMySQL(t *testing.T) *TestDB {
	t.Helper()
	skipIfShort(t)

	sharedMySQLOnce.Do(func() {
		sharedMySQL, sharedMySQLErr = setupMySQL()
	})
	if sharedMySQLErr != nil {
		t.Fatalf("Failed to setup mysql: %v", sharedMySQLErr)
	}
	return sharedMySQL
}

// GetTestRedis returns a client for a shared Redis container.
func GetTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	skipIfShort(t)

	sharedRedisOnce.Do(func() {
		sharedRedis, sharedRedisErr = setupRedis()
	})
	if sharedRedisErr != nil {
		t.Fatalf("Failed to setup redis: %v", sharedRedisErr)
	}
	return sharedRedis
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start %s container: %w", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get container port: %w", err)
	}
	return container, fmt.Sprintf("%s:%s", host, mapped.Port()), nil
}

func setupPostgres() (*TestDB, error) {
	ctx := context.Background()

	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDatabase,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("postgresql://%s:%s@%s/%s?sslmode=disable", testUser, testPassword, addr, testDatabase)

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres never became reachable: %w", err)
	}

	for _, stmt := range PostgresFixture {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
	}

	return &TestDB{Container: container, URL: url}, nil
}

func setupMySQL() (*TestDB, error) {
	ctx := context.Background()

	container, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        MySQLImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_DATABASE":      testDatabase,
			"MYSQL_USER":          testUser,
			"MYSQL_PASSWORD":      testPassword,
			"MYSQL_ROOT_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
			WithStartupTimeout(120 * time.Second),
	}, "3306")
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", testUser, testPassword, addr, testDatabase)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	defer db.Close()

	for i := 0; i < 20; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("mysql never became reachable: %w", err)
	}

	for _, stmt := range MySQLFixture {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
	}

	url := fmt.Sprintf("mysql://%s:%s@%s/%s", testUser, testPassword, addr, testDatabase)
	return &TestDB{Container: container, URL: url}, nil
}

func setupRedis() (*redis.Client, error) {
	ctx := context.Background()

	_, addr, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        RedisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379")
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
