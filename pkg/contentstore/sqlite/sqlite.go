// Package sqlite provides a SQLite-backed content store driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/escrowd/pkg/contentstore/sqldriver"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS content_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS content_records_content_id ON content_records (content_id)`,
}

// Driver implements contentstore.Driver using SQLite.
type Driver struct {
	*sqldriver.SQLDriver
}

// NewDriver creates a new SQLite-backed content driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	drv := &sqldriver.SQLDriver{
		Driver:  entsql.OpenDB(dialect.SQLite, db),
		Dialect: dialect.SQLite,
	}
	if err := drv.Migrate(context.Background(), schema...); err != nil {
		drv.Close()
		return nil, err
	}

	return &Driver{SQLDriver: drv}, nil
}
