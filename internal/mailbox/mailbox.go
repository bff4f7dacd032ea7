// Package mailbox serves a user's inbox and outbox decorated with live
// delivery progress. Progress and labels are recomputed on every read and
// never cached.
package mailbox

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/saviobatista/pigeon-post/internal/flight"
	"github.com/saviobatista/pigeon-post/internal/redis"
	"github.com/saviobatista/pigeon-post/internal/types"
)

// DefaultRefreshInterval bounds how stale a cached collection may be
const DefaultRefreshInterval = time.Minute

// ArrivalLayout formats absolute arrival times
const ArrivalLayout = "Mon, Jan 2 at 15:04"

// Direction tells whether a letter was received or sent by the viewer
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Store reads message collections and profiles
type Store interface {
	GetInboxMessages(ctx context.Context, userID string) ([]*types.Message, error)
	GetOutboxMessages(ctx context.Context, userID string) ([]*types.Message, error)
	GetAllProfiles(ctx context.Context) ([]*types.Profile, error)
}

// Cache holds message collections for up to the refresh interval
type Cache interface {
	GetMessages(ctx context.Context, userID string, box redis.Mailbox) ([]*types.Message, bool, error)
	StoreMessages(ctx context.Context, userID string, box redis.Mailbox, messages []*types.Message, ttl time.Duration) error
}

// FlightView is a message as shown to one of its participants at a given instant
type FlightView struct {
	types.Message
	Direction           Direction `json:"direction"`
	Progress            float64   `json:"progress"`
	ETALabel            string    `json:"eta_label"`
	ArrivalLabel        string    `json:"arrival_label"`
	DeliveredClientSide bool      `json:"is_delivered_client_side"`
}

// Service reads mailboxes
type Service struct {
	store   Store
	cache   Cache
	refresh time.Duration
}

// New creates a new Service. cache may be nil.
func New(store Store, cache Cache, refresh time.Duration) *Service {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &Service{store: store, cache: cache, refresh: refresh}
}

func (s *Service) load(ctx context.Context, userID string, box redis.Mailbox) ([]*types.Message, error) {
	if s.cache != nil {
		cached, found, err := s.cache.GetMessages(ctx, userID, box)
		if err != nil {
			log.Printf("Warning: Failed to read cached %s: %v", box, err)
		} else if found {
			return cached, nil
		}
	}

	var (
		messages []*types.Message
		err      error
	)
	switch box {
	case redis.Inbox:
		messages, err = s.store.GetInboxMessages(ctx, userID)
	case redis.Outbox:
		messages, err = s.store.GetOutboxMessages(ctx, userID)
	default:
		return nil, fmt.Errorf("unknown mailbox %q", box)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", box, err)
	}

	if s.cache != nil {
		if err := s.cache.StoreMessages(ctx, userID, box, messages, s.refresh); err != nil {
			log.Printf("Warning: Failed to cache %s: %v", box, err)
		}
	}
	return messages, nil
}

// Inbox returns the letters addressed to userID, newest first
func (s *Service) Inbox(ctx context.Context, userID string, now time.Time) ([]FlightView, error) {
	messages, err := s.load(ctx, userID, redis.Inbox)
	if err != nil {
		return nil, err
	}
	return Decorate(messages, Incoming, now), nil
}

// Outbox returns the letters sent by userID, newest first
func (s *Service) Outbox(ctx context.Context, userID string, now time.Time) ([]FlightView, error) {
	messages, err := s.load(ctx, userID, redis.Outbox)
	if err != nil {
		return nil, err
	}
	return Decorate(messages, Outgoing, now), nil
}

// Snapshot returns every message userID sent or received, as currently cached
func (s *Service) Snapshot(ctx context.Context, userID string) ([]*types.Message, error) {
	inbox, err := s.load(ctx, userID, redis.Inbox)
	if err != nil {
		return nil, err
	}
	outbox, err := s.load(ctx, userID, redis.Outbox)
	if err != nil {
		return nil, err
	}
	all := make([]*types.Message, 0, len(inbox)+len(outbox))
	all = append(all, inbox...)
	return append(all, outbox...), nil
}

// Contacts returns every profile except userID's own
func (s *Service) Contacts(ctx context.Context, userID string) ([]*types.Profile, error) {
	profiles, err := s.store.GetAllProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	contacts := make([]*types.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.ID != userID {
			contacts = append(contacts, p)
		}
	}
	return contacts, nil
}

// Decorate computes the view of each message at now
func Decorate(messages []*types.Message, direction Direction, now time.Time) []FlightView {
	views := make([]FlightView, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		progress := flight.Progress(m.DepartureTime, m.ArrivalTime, now)
		views = append(views, FlightView{
			Message:             *m,
			Direction:           direction,
			Progress:            progress,
			ETALabel:            RelativeLabel(m.ArrivalTime, now),
			ArrivalLabel:        m.ArrivalTime.Format(ArrivalLayout),
			DeliveredClientSide: progress >= 1 || m.Status == types.StatusDelivered,
		})
	}
	return views
}
