// Package postgres is the relational store behind the persister: orders,
// matches, positions, funding-rate and funding-fee events, protocol
// records and the DlcChannel summary view, per spec.md §2/§3. It is
// grounded on the teacher's own choice of driver (jackc/pgx/v4) and
// migration tool (golang-migrate/migrate/v4), and follows channeldb's
// convention of a thin `Store` handle plus one file per entity family.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/get10101/10101-sub001/internal/coordinatorerrs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store wraps a pgx connection pool with the query methods every other
// in-scope component needs. Every multi-row mutation runs inside a single
// transaction via Store.withTx, per spec.md §5's "Shared resources"
// requirement that invariants such as position-state monotonicity and the
// funding-fee paid atomic swap are maintained inside one DB transaction.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres at dsn and runs pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, coordinatorerrs.Fatal("connect to postgres", err)
	}

	if err := migrateUp(dsn); err != nil {
		pool.Close()
		return nil, coordinatorerrs.Fatal("run migrations", err)
	}

	return &Store{pool: pool}, nil
}

// NewFromPool builds a Store from an already-connected pool, primarily for
// tests that wire a pool against an ephemeral database.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func migrateUp(dsn string) error {
	sourceDriver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// entity-family method run either standalone or inside Store.withTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// withTx runs fn inside a single database transaction, committing on
// success and rolling back on any returned error.
func (s *Store) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return coordinatorerrs.Storage("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return coordinatorerrs.Storage("commit tx", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation, per spec.md §7: "unique-violation is treated as idempotent
// success where documented".
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
