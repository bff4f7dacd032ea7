package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/pigeon-post/internal/api"
	"github.com/saviobatista/pigeon-post/internal/config"
	"github.com/saviobatista/pigeon-post/internal/db"
	"github.com/saviobatista/pigeon-post/internal/dispatch"
	"github.com/saviobatista/pigeon-post/internal/geocoding"
	"github.com/saviobatista/pigeon-post/internal/mailbox"
	"github.com/saviobatista/pigeon-post/internal/nats"
	"github.com/saviobatista/pigeon-post/internal/redis"
	"github.com/saviobatista/pigeon-post/internal/stats"
)

const (
	shutdownTimeout      = 10 * time.Second
	statsPersistInterval = 5 * time.Minute
)

// Store is the persistence the API needs
type Store interface {
	api.Profiles
	mailbox.Store
	dispatch.Store
}

// Cache is the shared cache behind mailboxes, dispatch and location search
type Cache interface {
	mailbox.Cache
	dispatch.Cache
	geocoding.Cache
}

// buildDeps wires the services behind the HTTP API
func buildDeps(cfg *config.Config, store Store, cache Cache, publisher dispatch.Publisher, st *stats.Stats) api.Deps {
	return api.Deps{
		Profiles:   store,
		Mailboxes:  mailbox.New(store, cache, cfg.RefreshEvery),
		Dispatcher: dispatch.New(store, store, cache, publisher, st),
		Locator:    geocoding.NewClient(cfg.MapboxToken, cfg.MapboxBaseURL, cache),
	}
}

// serve runs srv on ln until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// startPersistence persists st every interval. The returned channel is closed
// after the final write that follows ctx being done.
func startPersistence(ctx context.Context, st *stats.Stats, interval time.Duration) <-chan struct{} {
	persisted := make(chan struct{})
	go func() {
		defer close(persisted)
		st.StartPersistence(ctx, interval)
	}()
	return persisted
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if cfg.MapboxToken == "" {
		log.Printf("Warning: MAPBOX_TOKEN is not set, location search is disabled")
	}

	natsClient, dbClient, redisClient, err := createClients(cfg)
	if err != nil {
		log.Printf("Failed to create clients: %v", err)
		os.Exit(1)
	}
	defer func() {
		natsClient.Close()
		if err := dbClient.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", err)
		}
		if err := redisClient.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing redisClient: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := stats.New()
	st.SetStore(dbClient)
	persisted := startPersistence(ctx, st, statsPersistInterval)
	// The final stats write needs the db, so it must finish before the deferred close
	defer func() {
		stop()
		<-persisted
	}()

	srv := &http.Server{
		Handler:           api.New(buildDeps(cfg, dbClient, redisClient, natsClient, st)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Printf("Failed to listen on %s: %v", cfg.HTTPAddr, err)
		return
	}
	log.Printf("Listening on %s", ln.Addr())

	if err := serve(ctx, srv, ln); err != nil {
		log.Printf("API failed: %v", err)
	}
}
