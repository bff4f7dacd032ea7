package mailbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saviobatista/pigeon-post/internal/redis"
	"github.com/saviobatista/pigeon-post/internal/testutils"
	"github.com/saviobatista/pigeon-post/internal/types"
)

type mockStore struct {
	inbox      []*types.Message
	outbox     []*types.Message
	profiles   []*types.Profile
	queryError error
	inboxReads int
}

func (m *mockStore) GetInboxMessages(ctx context.Context, userID string) ([]*types.Message, error) {
	m.inboxReads++
	if m.queryError != nil {
		return nil, m.queryError
	}
	return m.inbox, nil
}

func (m *mockStore) GetOutboxMessages(ctx context.Context, userID string) ([]*types.Message, error) {
	if m.queryError != nil {
		return nil, m.queryError
	}
	return m.outbox, nil
}

func (m *mockStore) GetAllProfiles(ctx context.Context) ([]*types.Profile, error) {
	if m.queryError != nil {
		return nil, m.queryError
	}
	return m.profiles, nil
}

type mockCache struct {
	data   map[string][]*types.Message
	ttls   map[string]time.Duration
	getErr error
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]*types.Message), ttls: make(map[string]time.Duration)}
}

func (m *mockCache) GetMessages(ctx context.Context, userID string, box redis.Mailbox) ([]*types.Message, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	msgs, ok := m.data[userID+":"+string(box)]
	return msgs, ok, nil
}

func (m *mockCache) StoreMessages(ctx context.Context, userID string, box redis.Mailbox, messages []*types.Message, ttl time.Duration) error {
	m.data[userID+":"+string(box)] = messages
	m.ttls[userID+":"+string(box)] = ttl
	return nil
}

var departure = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestDecorate(t *testing.T) {
	airborne := testutils.MockMessage("air", "alice", "bob", departure, 10*time.Hour)
	landed := testutils.MockMessage("landed", "alice", "bob", departure, 2*time.Hour)
	confirmed := testutils.MockMessage("confirmed", "alice", "bob", departure, 20*time.Hour)
	confirmed.Status = types.StatusDelivered

	now := departure.Add(5 * time.Hour)
	views := Decorate([]*types.Message{airborne, landed, nil, confirmed}, Incoming, now)

	if len(views) != 3 {
		t.Fatalf("Expected 3 views, got %d", len(views))
	}

	tests := []struct {
		id        string
		progress  float64
		delivered bool
		eta       string
	}{
		{"air", 0.5, false, "in 5 hours"},
		{"landed", 1, true, "3 hours ago"},
		{"confirmed", 0.25, true, "in 15 hours"},
	}
	for i, tt := range tests {
		v := views[i]
		if v.ID != tt.id {
			t.Errorf("View %d: expected %s, got %s", i, tt.id, v.ID)
		}
		if v.Progress != tt.progress {
			t.Errorf("%s: expected progress %v, got %v", tt.id, tt.progress, v.Progress)
		}
		if v.DeliveredClientSide != tt.delivered {
			t.Errorf("%s: expected delivered %v, got %v", tt.id, tt.delivered, v.DeliveredClientSide)
		}
		if v.ETALabel != tt.eta {
			t.Errorf("%s: expected eta %q, got %q", tt.id, tt.eta, v.ETALabel)
		}
		if v.Direction != Incoming {
			t.Errorf("%s: expected incoming, got %s", tt.id, v.Direction)
		}
	}

	if views[0].ArrivalLabel != "Mon, Jan 1 at 10:00" {
		t.Errorf("Unexpected arrival label %q", views[0].ArrivalLabel)
	}
}

func TestDecorate_RecomputedPerRead(t *testing.T) {
	msg := testutils.MockMessage("m", "alice", "bob", departure, 10*time.Hour)

	early := Decorate([]*types.Message{msg}, Outgoing, departure.Add(time.Hour))[0]
	late := Decorate([]*types.Message{msg}, Outgoing, departure.Add(9*time.Hour))[0]

	if early.Progress >= late.Progress {
		t.Errorf("Expected progress to advance with now: %v then %v", early.Progress, late.Progress)
	}
	if msg.Status != types.StatusInFlight {
		t.Error("Decorate must not mutate the message")
	}
}

func TestService_InboxReadsThroughCache(t *testing.T) {
	store := &mockStore{inbox: []*types.Message{testutils.MockMessage("m1", "alice", "bob", departure, time.Hour)}}
	cache := newMockCache()
	svc := New(store, cache, 0)

	for i := 0; i < 2; i++ {
		views, err := svc.Inbox(context.Background(), "bob", departure)
		if err != nil {
			t.Fatalf("Inbox() failed: %v", err)
		}
		if len(views) != 1 || views[0].ID != "m1" {
			t.Fatalf("Unexpected inbox: %+v", views)
		}
	}

	if store.inboxReads != 1 {
		t.Errorf("Expected one database read, got %d", store.inboxReads)
	}
	if cache.ttls["bob:inbox"] != DefaultRefreshInterval {
		t.Errorf("Expected TTL %s, got %s", DefaultRefreshInterval, cache.ttls["bob:inbox"])
	}
}

func TestService_CacheFailureFallsBackToStore(t *testing.T) {
	store := &mockStore{outbox: []*types.Message{testutils.MockMessage("m1", "alice", "bob", departure, time.Hour)}}
	cache := newMockCache()
	cache.getErr = errors.New("redis down")
	svc := New(store, cache, time.Minute)

	views, err := svc.Outbox(context.Background(), "alice", departure)
	if err != nil {
		t.Fatalf("Outbox() failed: %v", err)
	}
	if len(views) != 1 || views[0].Direction != Outgoing {
		t.Errorf("Unexpected outbox: %+v", views)
	}
}

func TestService_WithoutCache(t *testing.T) {
	store := &mockStore{inbox: []*types.Message{testutils.MockMessage("m1", "alice", "bob", departure, time.Hour)}}
	svc := New(store, nil, time.Minute)

	if _, err := svc.Inbox(context.Background(), "bob", departure); err != nil {
		t.Fatalf("Inbox() failed: %v", err)
	}
	if _, err := svc.Inbox(context.Background(), "bob", departure); err != nil {
		t.Fatalf("Inbox() failed: %v", err)
	}
	if store.inboxReads != 2 {
		t.Errorf("Expected every read to hit the store, got %d", store.inboxReads)
	}
}

func TestService_StoreError(t *testing.T) {
	svc := New(&mockStore{queryError: errors.New("connection refused")}, newMockCache(), time.Minute)

	if _, err := svc.Inbox(context.Background(), "bob", departure); err == nil {
		t.Error("Expected error, got none")
	}
	if _, err := svc.Snapshot(context.Background(), "bob"); err == nil {
		t.Error("Expected error, got none")
	}
	if _, err := svc.Contacts(context.Background(), "bob"); err == nil {
		t.Error("Expected error, got none")
	}
}

func TestService_Snapshot(t *testing.T) {
	store := &mockStore{
		inbox:  []*types.Message{testutils.MockMessage("in", "alice", "bob", departure, time.Hour)},
		outbox: []*types.Message{testutils.MockMessage("out", "bob", "carol", departure, time.Hour)},
	}
	svc := New(store, newMockCache(), time.Minute)

	all, err := svc.Snapshot(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "in" || all[1].ID != "out" {
		t.Errorf("Unexpected snapshot: %+v", all)
	}
}

func TestService_Contacts(t *testing.T) {
	store := &mockStore{profiles: []*types.Profile{
		testutils.MockProfile("alice", "NYC", 40.7, -74),
		testutils.MockProfile("bob", "London", 51.5, -0.1),
		testutils.MockProfile("carol", "Tokyo", 35.7, 139.7),
	}}
	svc := New(store, nil, time.Minute)

	contacts, err := svc.Contacts(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Contacts() failed: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("Expected 2 contacts, got %d", len(contacts))
	}
	for _, c := range contacts {
		if c.ID == "bob" {
			t.Error("Contacts must not include the caller")
		}
	}
}
