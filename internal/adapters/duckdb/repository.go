package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_history (
	job_id      VARCHAR PRIMARY KEY,
	url         VARCHAR NOT NULL,
	status      VARCHAR NOT NULL,
	error       VARCHAR,
	language    VARCHAR,
	finished_at TIMESTAMP NOT NULL
);
`

// Repository is the DuckDB-backed store for finished job outcomes.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (or creates) the database at path and applies the schema.
// An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
