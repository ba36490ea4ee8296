package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"
)

// Client manages DuckDB connections
type Client struct {
	db   *sql.DB
	path string
}

// MemoryPath names an in-memory database
const MemoryPath = ":memory:"

// NewClient opens a DuckDB database and creates the schema.
// path can be a file path for persistent storage, or "" or ":memory:" for in-memory.
func NewClient(path string) (*Client, error) {
	dsn := path
	if dsn == MemoryPath {
		// the driver parses the DSN as a URL and rejects ":memory:"
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	// an in-memory database exists per connection
	if dsn == "" {
		db.SetMaxOpenConns(1)
	}

	client := &Client{
		db:   db,
		path: path,
	}
	if err := InitializeSchema(context.Background(), client); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}

// Path returns the database location
func (c *Client) Path() string {
	return c.path
}

// DB returns the underlying sql.DB connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Exec executes a query without returning results
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

// Query executes a query and returns rows
func (c *Client) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRow executes a query that returns at most one row
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Begin starts a new transaction
func (c *Client) Begin(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}

// inBatch runs fn for every item through one prepared statement in a transaction
func inBatch[T any](ctx context.Context, c *Client, query string, items []T, fn func(*sql.Stmt, T) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if err := fn(stmt, item); err != nil {
			return err
		}
	}
	return tx.Commit()
}
