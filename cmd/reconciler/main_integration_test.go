package main

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/saviobatista/pigeon-post/internal/db"
	"github.com/saviobatista/pigeon-post/internal/db/migrations"
	"github.com/saviobatista/pigeon-post/internal/mailbox"
	"github.com/saviobatista/pigeon-post/internal/redis"
	"github.com/saviobatista/pigeon-post/internal/stats"
	"github.com/saviobatista/pigeon-post/internal/testutils"
	"github.com/saviobatista/pigeon-post/internal/types"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

type testContainers struct {
	postgres *postgres.PostgresContainer
	redis    *rediscontainer.RedisContainer
}

func setupTestContainers(t *testing.T) *testContainers {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:14-alpine",
		postgres.WithDatabase("pigeon_post"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	redisContainer, err := rediscontainer.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	t.Cleanup(func() {
		if err := postgresContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
		if err := redisContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	return &testContainers{
		postgres: postgresContainer,
		redis:    redisContainer,
	}
}

// setupClients migrates a fresh database and returns connected clients
func setupClients(t *testing.T, containers *testContainers) (*db.Client, *redis.Client) {
	ctx := context.Background()

	dbConnStr, err := containers.postgres.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get PostgreSQL connection string: %v", err)
	}
	dbConnStr += "&sslmode=disable"

	sqlDB, err := sql.Open("postgres", dbConnStr)
	if err != nil {
		t.Fatalf("Failed to open database connection: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if _, err := migrations.New(sqlDB).Migrate(ctx, migrations.All); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	redisConnStr, err := containers.redis.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get Redis connection string: %v", err)
	}
	redisClient, err := redis.New(strings.TrimPrefix(redisConnStr, "redis://"))
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	dbClient := db.NewWithDB(sqlDB)
	for _, p := range []*types.Profile{
		testutils.MockProfile("alice", "Lisbon", 38.72, -9.14),
		testutils.MockProfile("bob", "Paris", 48.86, 2.35),
	} {
		if err := dbClient.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("Failed to upsert profile %s: %v", p.ID, err)
		}
	}

	return dbClient, redisClient
}

func TestReconciler_Integration_ServiceWide(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbClient, redisClient := setupClients(t, setupTestContainers(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	landed := testutils.MockMessage("landed", "alice", "bob", now.Add(-3*time.Hour), 2*time.Hour)
	airborne := testutils.MockMessage("airborne", "bob", "alice", now.Add(-time.Hour), 20*time.Hour)
	for _, m := range []*types.Message{landed, airborne} {
		if err := dbClient.CreateMessage(ctx, m); err != nil {
			t.Fatalf("Failed to create message %s: %v", m.ID, err)
		}
	}

	// Warm the cache so the tick has something to invalidate
	session := mailbox.New(dbClient, redisClient, time.Minute)
	if _, err := session.Inbox(ctx, "bob", now); err != nil {
		t.Fatalf("Failed to load inbox: %v", err)
	}

	st := stats.New()
	r := newReconciler(testConfig(), "", dbClient, session, redisClient, nil, st)

	res, err := r.Tick(ctx, now)
	if err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}
	if res.Due != 1 || res.Delivered != 1 {
		t.Errorf("Expected 1 due and 1 delivered, got %+v", res)
	}

	inbox, err := dbClient.GetInboxMessages(ctx, "bob")
	if err != nil {
		t.Fatalf("GetInboxMessages() failed: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Status != types.StatusDelivered {
		t.Errorf("Expected bob's letter to be delivered, got %+v", inbox)
	}

	if _, found, err := redisClient.GetMessages(ctx, "bob", redis.Inbox); err != nil || found {
		t.Errorf("Expected bob's inbox cache to be invalidated, found=%v err=%v", found, err)
	}

	// Re-running is a no-op
	res, err = r.Tick(ctx, now)
	if err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}
	if res.Due != 0 {
		t.Errorf("Expected nothing due, got %+v", res)
	}

	// The airborne letter is undelivered but not yet due at now
	pending, err := dbClient.GetPendingDeliveries(ctx, now)
	if err != nil {
		t.Fatalf("GetPendingDeliveries() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected nothing landed and pending, got %+v", pending)
	}

	pending, err = dbClient.GetPendingDeliveries(ctx, airborne.ArrivalTime)
	if err != nil {
		t.Fatalf("GetPendingDeliveries() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "airborne" {
		t.Errorf("Expected only the airborne letter pending, got %+v", pending)
	}

	if err := st.Persist(ctx); err == nil {
		t.Error("Expected error without a store, got none")
	}
	st.SetStore(dbClient)
	if err := st.Persist(ctx); err != nil {
		t.Errorf("Persist() failed: %v", err)
	}
}

func TestReconciler_Integration_SingleUser(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dbClient, redisClient := setupClients(t, setupTestContainers(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	if err := dbClient.CreateMessage(ctx, testutils.MockMessage("m1", "alice", "bob", now.Add(-2*time.Hour), time.Hour)); err != nil {
		t.Fatalf("Failed to create message: %v", err)
	}

	session := mailbox.New(dbClient, redisClient, time.Minute)
	r := newReconciler(testConfig(), "alice", dbClient, session, redisClient, nil, stats.New())

	res, err := r.Tick(ctx, now)
	if err != nil {
		t.Fatalf("Tick() failed: %v", err)
	}
	if res.Delivered != 1 {
		t.Errorf("Expected alice's sent letter to be delivered, got %+v", res)
	}

	outbox, err := session.Outbox(ctx, "alice", now)
	if err != nil {
		t.Fatalf("Outbox() failed: %v", err)
	}
	if len(outbox) != 1 || outbox[0].Status != types.StatusDelivered {
		t.Errorf("Expected fresh outbox to show delivered, got %+v", outbox)
	}
}
