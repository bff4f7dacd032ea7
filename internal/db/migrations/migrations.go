package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// ErrNothingToRollback is returned by Rollback when no migration is applied
var ErrNothingToRollback = errors.New("no migrations to rollback")

// Migration represents a database migration
type Migration struct {
	Name    string
	UpSQL   string
	DownSQL string
}

// All lists every migration in the order it must be applied
var All = []*Migration{
	InitialSchema,
	PostStats,
}

// Migrator manages database migrations
type Migrator struct {
	db *sql.DB
}

// New creates a new Migrator
func New(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist
func (m *Migrator) Initialize(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// Applied returns the set of applied migration names
func (m *Migrator) Applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM schema_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// Pending returns the migrations from list that are not applied yet
func (m *Migrator) Pending(ctx context.Context, list []*Migration) ([]*Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	var pending []*Migration
	for _, migration := range list {
		if !applied[migration.Name] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

// inTx runs the migration body and its bookkeeping statement in one transaction
func (m *Migrator) inTx(ctx context.Context, migration *Migration, body, record string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, body); err != nil {
		rollback(tx)
		return fmt.Errorf("failed to execute migration %s: %w", migration.Name, err)
	}
	if _, err := tx.ExecContext(ctx, record, migration.Name); err != nil {
		rollback(tx)
		return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	return tx.Commit()
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		log.Printf("Warning: failed to rollback transaction: %v", err)
	}
}

// Apply applies a single migration
func (m *Migrator) Apply(ctx context.Context, migration *Migration) error {
	return m.inTx(ctx, migration, migration.UpSQL,
		"INSERT INTO schema_migrations (name) VALUES ($1)")
}

// Revert rolls back a single migration
func (m *Migrator) Revert(ctx context.Context, migration *Migration) error {
	return m.inTx(ctx, migration, migration.DownSQL,
		"DELETE FROM schema_migrations WHERE name = $1")
}

// Migrate applies all pending migrations and returns their names
func (m *Migrator) Migrate(ctx context.Context, list []*Migration) ([]string, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	pending, err := m.Pending(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var done []string
	for _, migration := range pending {
		if err := m.Apply(ctx, migration); err != nil {
			return done, fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
		done = append(done, migration.Name)
	}
	return done, nil
}

// Rollback reverts the most recently applied migration in list
func (m *Migrator) Rollback(ctx context.Context, list []*Migration) (string, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for i := len(list) - 1; i >= 0; i-- {
		if !applied[list[i].Name] {
			continue
		}
		if err := m.Revert(ctx, list[i]); err != nil {
			return "", fmt.Errorf("failed to rollback migration %s: %w", list[i].Name, err)
		}
		return list[i].Name, nil
	}

	return "", ErrNothingToRollback
}
