package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/saviobatista/pigeon-post/internal/config"
	"github.com/saviobatista/pigeon-post/internal/db/migrations"
)

type options struct {
	dbURL    string
	rollback bool
}

// parseFlags reads command line flags. The default connection string comes from the environment.
func parseFlags(args []string, defaultDB string) (*options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.dbURL, "db", defaultDB, "Database connection string")
	fs.BoolVar(&opts.rollback, "rollback", false, "Rollback the last migration")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// run applies pending migrations, or reverts the latest one
func run(ctx context.Context, db *sql.DB, rollback bool) error {
	migrator := migrations.New(db)

	if rollback {
		name, err := migrator.Rollback(ctx, migrations.All)
		if errors.Is(err, migrations.ErrNothingToRollback) {
			log.Println("No migrations to rollback")
			return nil
		}
		if err != nil {
			return err
		}
		log.Printf("Rolled back migration %s", name)
		return nil
	}

	applied, err := migrator.Migrate(ctx, migrations.All)
	for _, name := range applied {
		log.Printf("Applied migration %s", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		log.Println("Schema is up to date")
	}
	return nil
}

func openDB(ctx context.Context, dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	opts, err := parseFlags(os.Args[1:], cfg.DBConnStr)
	if err != nil {
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := openDB(ctx, opts.dbURL)
	if err != nil {
		log.Printf("%v", err)
		cancel()
		os.Exit(1)
	}

	err = run(ctx, db, opts.rollback)
	if closeErr := db.Close(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing db: %v\n", closeErr)
	}
	if err != nil {
		log.Printf("Migration failed: %v", err)
		cancel()
		os.Exit(1)
	}
}
