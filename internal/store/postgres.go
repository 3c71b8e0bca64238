package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS forwarding_rules (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// pgxConn is the subset of pgxpool.Pool used by PostgresStore.
type pgxConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a PostgreSQL implementation of the Store interface.
// Each key/value pair is one row of the forwarding_rules table; upserts are
// single statements, so a value is always replaced atomically.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   pgxConn
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		db:   pool,
	}
}

// EnsureSchema creates the backing table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create forwarding_rules table: %w", err)
	}
	return nil
}

// List retrieves all rows from the database.
func (p *PostgresStore) List(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.Query(ctx, `SELECT key, value FROM forwarding_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

// Get retrieves a single value by key from the database.
func (p *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := p.db.QueryRow(ctx, `SELECT value FROM forwarding_rules WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

// Put creates or updates a row in the database.
func (p *PostgresStore) Put(ctx context.Context, key, value string) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO forwarding_rules (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return err
}

// Delete removes a row from the database.
func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM forwarding_rules WHERE key = $1`, key)
	return err
}

// Close closes the database connection pool.
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
