// Package sqldriver provides content record storage on top of ent's SQL
// dialect builders. It is database-agnostic and embedded by the sqlite and
// postgres drivers.
package sqldriver

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/escrowd/pkg/contentstore"
)

const (
	// Table is the name of the content record table.
	Table = "content_records"

	colID        = "id"
	colContentID = "content_id"
	colLabel     = "label"
	colPayload   = "payload"
	colCreatedAt = "created_at"
)

// SQLDriver stores content records through an ent SQL driver.
type SQLDriver struct {
	Driver  *entsql.Driver
	Dialect string
}

// Migrate executes the given DDL statements.
func (sd *SQLDriver) Migrate(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if err := sd.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Insert appends a record row. Rows are never deduplicated.
func (sd *SQLDriver) Insert(ctx context.Context, rec contentstore.Record) error {
	query, args := entsql.Dialect(sd.Dialect).
		Insert(Table).
		Columns(colContentID, colLabel, colPayload, colCreatedAt).
		Values(string(rec.ContentID), rec.Label, rec.Payload, rec.CreatedAt.UnixNano()).
		Query()

	if err := sd.Driver.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("could not insert content record: %w", err)
	}
	return nil
}

// Get retrieves the newest payload stored under id.
func (sd *SQLDriver) Get(ctx context.Context, id contentstore.ContentID) ([]byte, error) {
	query, args := entsql.Dialect(sd.Dialect).
		Select(colPayload).
		From(entsql.Table(Table)).
		Where(entsql.EQ(colContentID, string(id))).
		OrderBy(entsql.Desc(colID)).
		Limit(1).
		Query()

	rows := &entsql.Rows{}
	if err := sd.Driver.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query content: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read content: %w", err)
		}
		return nil, contentstore.NotFoundError{ContentID: id}
	}

	var payload []byte
	if err := rows.Scan(&payload); err != nil {
		if errors.Is(err, stdsql.ErrNoRows) {
			return nil, contentstore.NotFoundError{ContentID: id}
		}
		return nil, fmt.Errorf("failed to scan content: %w", err)
	}
	return payload, nil
}

// Records lists every record row for id in insertion order.
func (sd *SQLDriver) Records(ctx context.Context, id contentstore.ContentID) ([]contentstore.Record, error) {
	query, args := entsql.Dialect(sd.Dialect).
		Select(colLabel, colPayload, colCreatedAt).
		From(entsql.Table(Table)).
		Where(entsql.EQ(colContentID, string(id))).
		OrderBy(colID).
		Query()

	rows := &entsql.Rows{}
	if err := sd.Driver.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("failed to query content records: %w", err)
	}
	defer rows.Close()

	var out []contentstore.Record
	for rows.Next() {
		var (
			label   string
			payload []byte
			created int64
		)
		if err := rows.Scan(&label, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan content record: %w", err)
		}
		out = append(out, contentstore.Record{
			ContentID: id,
			Label:     label,
			Payload:   payload,
			CreatedAt: time.Unix(0, created).UTC(),
		})
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (sd *SQLDriver) Close() error {
	return sd.Driver.Close()
}
