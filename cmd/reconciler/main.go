package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/pigeon-post/internal/config"
	"github.com/saviobatista/pigeon-post/internal/db"
	"github.com/saviobatista/pigeon-post/internal/mailbox"
	"github.com/saviobatista/pigeon-post/internal/nats"
	"github.com/saviobatista/pigeon-post/internal/reconcile"
	"github.com/saviobatista/pigeon-post/internal/redis"
	"github.com/saviobatista/pigeon-post/internal/stats"
	"github.com/saviobatista/pigeon-post/internal/types"
)

const statsPersistInterval = 5 * time.Minute

// PendingStore lists landed but undelivered messages service-wide and writes the status
type PendingStore interface {
	GetPendingDeliveries(ctx context.Context, landedBy time.Time) ([]*types.Message, error)
	reconcile.Store
}

// SessionSource snapshots one user's cached collections
type SessionSource interface {
	Snapshot(ctx context.Context, userID string) ([]*types.Message, error)
}

// selectSource picks the per-user session source when userID is set,
// otherwise the pending deliveries in the database that have landed by clock()
func selectSource(userID string, store PendingStore, session SessionSource, clock func() time.Time) reconcile.Source {
	if userID != "" {
		return reconcile.SourceFunc(func(ctx context.Context) ([]*types.Message, error) {
			return session.Snapshot(ctx, userID)
		})
	}
	return reconcile.SourceFunc(func(ctx context.Context) ([]*types.Message, error) {
		return store.GetPendingDeliveries(ctx, clock())
	})
}

// newReconciler wires the reconciler to its collaborators
func newReconciler(cfg *config.Config, userID string, store PendingStore, session SessionSource,
	cache reconcile.Cache, publisher reconcile.Publisher, st *stats.Stats) *reconcile.Reconciler {
	clock := func() time.Time { return time.Now().UTC() }
	return reconcile.New(selectSource(userID, store, session, clock), store, reconcile.Options{
		Interval:     cfg.ReconcileEvery,
		WriteTimeout: cfg.WriteTimeout,
		Cache:        cache,
		Publisher:    publisher,
		Stats:        st,
	})
}

// logStats periodically logs statistics
func logStats(ctx context.Context, st *stats.Stats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Statistics:\n%s", st)
		}
	}
}

// createClients creates all the required clients for the application
func createClients(cfg *config.Config) (*nats.Client, *db.Client, *redis.Client, error) {
	natsClient, err := nats.New(cfg.NATSURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create NATS client: %w", err)
	}

	dbClient, err := db.New(cfg.DBConnStr)
	if err != nil {
		natsClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to create database client: %w", err)
	}

	redisClient, err := redis.New(cfg.RedisAddr)
	if err != nil {
		natsClient.Close()
		if closeErr := dbClient.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", closeErr)
		}
		return nil, nil, nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	return natsClient, dbClient, redisClient, nil
}

func closeClients(natsClient *nats.Client, dbClient *db.Client, redisClient *redis.Client) {
	natsClient.Close()
	if err := dbClient.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", err)
	}
	if err := redisClient.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing redisClient: %v\n", err)
	}
}

func main() {
	userID := flag.String("user", "", "Reconcile only this user's inbox and outbox")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	natsClient, dbClient, redisClient, err := createClients(cfg)
	if err != nil {
		log.Printf("Failed to create clients: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := stats.New()
	st.SetStore(dbClient)
	persisted := make(chan struct{})
	go func() {
		st.StartPersistence(ctx, statsPersistInterval)
		close(persisted)
	}()
	go logStats(ctx, st, time.Minute)

	session := mailbox.New(dbClient, redisClient, cfg.RefreshEvery)
	r := newReconciler(cfg, *userID, dbClient, session, redisClient, natsClient, st)

	if *userID != "" {
		log.Printf("Reconciling deliveries for user %s every %s", *userID, cfg.ReconcileEvery)
	} else {
		log.Printf("Reconciling all pending deliveries every %s", cfg.ReconcileEvery)
	}

	// Returns once a signal cancels ctx and in-flight writes have settled
	r.Run(ctx)

	log.Println("Shutting down...")
	<-persisted
	closeClients(natsClient, dbClient, redisClient)
}
