package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/regwatch/regcore/internal/config"
	"github.com/regwatch/regcore/internal/db"
)

// OpenTestDB connects to the postgres instance named by TEST_DB_HOST and
// applies migrations. Tests that need a real database skip when the env
// var is absent. The target database must have the pgvector extension
// available.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "regcore",
		Password: "regcore_pass",
		DBName:   "regcore_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}
