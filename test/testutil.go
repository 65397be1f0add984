//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	_ "modernc.org/sqlite"

	"github.com/coregx/strata"
)

// DatabaseSetup is an open database plus the container backing it, if any.
type DatabaseSetup struct {
	DB        *strata.DB
	Container testcontainers.Container
	Dialect   string
}

// Close releases the connection and stops the container.
func (ds *DatabaseSetup) Close() {
	if ds.DB != nil {
		ds.DB.Close() //nolint:errcheck
	}
	if ds.Container != nil {
		ds.Container.Terminate(context.Background()) //nolint:errcheck
	}
}

// SetupPostgreSQLTestDB uses POSTGRES_TEST_DSN when set and a container
// otherwise. The test is skipped when Docker is unavailable.
func SetupPostgreSQLTestDB(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		db, err := strata.Open("postgres", dsn)
		require.NoError(t, err)
		return &DatabaseSetup{DB: db, Dialect: "postgres"}
	}

	pgContainer, err := postgres.Run(
		ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for PostgreSQL integration tests: " + err.Error())
	}

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := strata.Open("postgres", dsn)
	require.NoError(t, err)
	return &DatabaseSetup{DB: db, Container: pgContainer, Dialect: "postgres"}
}

// SetupMySQLTestDB uses MYSQL_TEST_DSN when set and a container otherwise.
func SetupMySQLTestDB(t *testing.T) *DatabaseSetup {
	ctx := context.Background()

	if dsn := os.Getenv("MYSQL_TEST_DSN"); dsn != "" {
		db, err := strata.Open("mysql", withParseTime(dsn))
		require.NoError(t, err)
		return &DatabaseSetup{DB: db, Dialect: "mysql"}
	}

	mysqlContainer, err := mysql.Run(
		ctx,
		"mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("user"),
		mysql.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skip("Docker not available for MySQL integration tests: " + err.Error())
	}

	dsn, err := mysqlContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := strata.Open("mysql", withParseTime(dsn))
	require.NoError(t, err)
	return &DatabaseSetup{DB: db, Container: mysqlContainer, Dialect: "mysql"}
}

// DATETIME columns scan as []uint8 without parseTime.
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=true") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// SetupSQLiteTestDB opens an in-memory database on a single connection.
func SetupSQLiteTestDB(t *testing.T) *DatabaseSetup {
	db, err := strata.Open("sqlite", ":memory:", strata.WithMaxOpenConns(1))
	require.NoError(t, err)
	return &DatabaseSetup{DB: db, Dialect: "sqlite"}
}

var databases = []struct {
	name  string
	setup func(*testing.T) *DatabaseSetup
}{
	{"SQLite", SetupSQLiteTestDB},
	{"PostgreSQL", SetupPostgreSQLTestDB},
	{"MySQL", SetupMySQLTestDB},
}

// forEachDatabase runs fn against a freshly created library schema on every
// reachable database.
func forEachDatabase(t *testing.T, fn func(t *testing.T, ds *DatabaseSetup)) {
	for _, d := range databases {
		t.Run(d.name, func(t *testing.T) {
			ds := d.setup(t)
			defer ds.Close()
			CreateLibrarySchema(t, ds)
			fn(t, ds)
		})
	}
}

var libraryTables = []string{"book_tag", "books", "tags", "authors"}

// CreateLibrarySchema (re)creates authors, books, tags and book_tag.
func CreateLibrarySchema(t *testing.T, ds *DatabaseSetup) {
	t.Helper()
	var id, jsonType string
	switch ds.Dialect {
	case "postgres":
		id, jsonType = "SERIAL PRIMARY KEY", "JSONB"
	case "mysql":
		id, jsonType = "INT AUTO_INCREMENT PRIMARY KEY", "JSON"
	default:
		id, jsonType = "INTEGER PRIMARY KEY AUTOINCREMENT", "TEXT"
	}

	ctx := context.Background()
	for _, table := range libraryTables {
		_, err := ds.DB.SQLDB().ExecContext(ctx, "DROP TABLE IF EXISTS "+table)
		require.NoError(t, err)
	}
	for _, ddl := range []string{
		"CREATE TABLE authors (id " + id + ", name VARCHAR(100) NOT NULL)",
		"CREATE TABLE books (id " + id + ", author_id INT, title VARCHAR(200) NOT NULL, pages INT NOT NULL DEFAULT 0, meta " + jsonType + ", deleted_at TIMESTAMP NULL)",
		"CREATE TABLE tags (id " + id + ", name VARCHAR(50) NOT NULL UNIQUE, uses INT NOT NULL DEFAULT 0)",
		"CREATE TABLE book_tag (book_id INT NOT NULL, tag_id INT NOT NULL)",
		"CREATE INDEX idx_books_author ON books (author_id)",
	} {
		_, err := ds.DB.SQLDB().ExecContext(ctx, ddl)
		require.NoError(t, err, ddl)
	}
}
