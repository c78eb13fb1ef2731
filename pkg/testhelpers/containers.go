// Package testhelpers provides utilities for testing ekaya-mapper components.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/database"
)

// PostgresImage is the stock PostgreSQL image the integration tests run against.
const PostgresImage = "postgres:16-alpine"

// MapperDB holds a shared test database with migrations applied.
type MapperDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedMapperDB     *MapperDB
	sharedMapperDBOnce sync.Once
	sharedMapperDBErr  error
)

// GetMapperDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetMapperDB(t *testing.T) *MapperDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMapperDBOnce.Do(func() {
		sharedMapperDB, sharedMapperDBErr = setupMapperDB()
	})

	if sharedMapperDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedMapperDBErr)
	}

	return sharedMapperDB
}

func setupMapperDB() (*MapperDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "ekaya_mapper_test",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The server restarts once after initdb; the second ready line is the real one.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/ekaya_mapper_test?sslmode=disable",
		host, port.Port())

	db, err := database.Open(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}

	return &MapperDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// Truncate empties the given tables between tests.
func (m *MapperDB) Truncate(t *testing.T, tables ...string) {
	t.Helper()
	for _, table := range tables {
		if _, err := m.DB.Exec(context.Background(), "TRUNCATE TABLE "+table); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}
