// Package dispatch implements the compose flow: it plans a pigeon's route
// between two lofts and puts the letter in flight.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saviobatista/pigeon-post/internal/courier"
	"github.com/saviobatista/pigeon-post/internal/db"
	"github.com/saviobatista/pigeon-post/internal/flight"
	"github.com/saviobatista/pigeon-post/internal/location"
	"github.com/saviobatista/pigeon-post/internal/stats"
	"github.com/saviobatista/pigeon-post/internal/types"
)

var (
	ErrEmptyLetter    = errors.New("compose a note for your pigeon to carry")
	ErrUnknownVariant = errors.New("unknown pigeon variant")
	ErrMissingInfo    = errors.New("pick a recipient and make sure both roosts are set")
)

// Profiles looks up user profiles
type Profiles interface {
	GetProfileByID(ctx context.Context, id string) (*types.Profile, error)
}

// Store persists new letters
type Store interface {
	CreateMessage(ctx context.Context, m *types.Message) error
}

// Cache drops cached message collections
type Cache interface {
	InvalidateMessages(ctx context.Context, userIDs ...string) error
}

// Publisher announces departing letters
type Publisher interface {
	PublishEvent(ev *types.PostEvent) error
}

// Request is a letter ready to be sent
type Request struct {
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
	Title       string `json:"title,omitempty"`
	VariantID   string `json:"variant_id,omitempty"`
}

// Estimate is the route preview shown before sending
type Estimate struct {
	From        types.ResolvedLocation `json:"from"`
	To          types.ResolvedLocation `json:"to"`
	Variant     courier.Variant        `json:"variant"`
	DistanceKm  float64                `json:"distance_km"`
	FlightHours float64                `json:"flight_hours"`
	PaddedHours float64                `json:"padded_hours"`
}

// Service sends letters
type Service struct {
	profiles  Profiles
	store     Store
	cache     Cache
	publisher Publisher
	stats     *stats.Stats

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New creates a new Service. cache, publisher and st may be nil.
func New(profiles Profiles, store Store, cache Cache, publisher Publisher, st *stats.Stats) *Service {
	if st == nil {
		st = stats.New()
	}
	return &Service{
		profiles:  profiles,
		store:     store,
		cache:     cache,
		publisher: publisher,
		stats:     st,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) variant(id string) (courier.Variant, error) {
	if id == "" {
		return courier.Default(), nil
	}
	v, ok := courier.ByID(id)
	if !ok {
		return courier.Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, id)
	}
	return v, nil
}

// route resolves both lofts. The sender falls back to the default loft, the
// recipient does not.
func (s *Service) route(ctx context.Context, senderID, recipientID string) (*types.ResolvedLocation, *types.ResolvedLocation, error) {
	if senderID == "" || recipientID == "" {
		return nil, nil, ErrMissingInfo
	}

	sender, err := s.profiles.GetProfileByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: sender %s: %w", ErrMissingInfo, senderID, err)
		}
		return nil, nil, fmt.Errorf("failed to load sender profile: %w", err)
	}
	recipient, err := s.profiles.GetProfileByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: recipient %s: %w", ErrMissingInfo, recipientID, err)
		}
		return nil, nil, fmt.Errorf("failed to load recipient profile: %w", err)
	}

	from := location.ResolveProfile(sender, true)
	to := location.ResolveProfile(recipient, false)
	if !location.HasValidCoordinates(from) || !location.HasValidCoordinates(to) {
		return nil, nil, ErrMissingInfo
	}
	return from, to, nil
}

// Estimate previews the route between two users for the given variant
func (s *Service) Estimate(ctx context.Context, senderID, recipientID, variantID string) (*Estimate, error) {
	v, err := s.variant(variantID)
	if err != nil {
		return nil, err
	}
	from, to, err := s.route(ctx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	distance := flight.Distance(from.Point(), to.Point())
	return &Estimate{
		From:        *from,
		To:          *to,
		Variant:     v,
		DistanceKm:  distance,
		FlightHours: flight.FlightHours(distance, v.SpeedKmh),
		PaddedHours: flight.PaddedHours(distance, v.SpeedKmh),
	}, nil
}

// Send validates the letter, plans the flight and persists it as in flight
func (s *Service) Send(ctx context.Context, req Request) (*types.Message, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, ErrEmptyLetter
	}
	v, err := s.variant(req.VariantID)
	if err != nil {
		return nil, err
	}
	from, to, err := s.route(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		return nil, err
	}

	departure := s.now()
	s.mu.Lock()
	name := courier.RandomName(s.rng)
	s.mu.Unlock()

	msg := &types.Message{
		ID:          uuid.New().String(),
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Body:        req.Body,
		Title:       strings.TrimSpace(req.Title),
		PigeonName:  name,
		Status:      types.StatusInFlight,
		CreatedAt:   departure,
		FlightPlan:  flight.NewPlan(from.Point(), to.Point(), v.SpeedKmh, departure, flight.HandlingPaddingHours),
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	s.stats.IncrementSentMessages()

	if s.cache != nil {
		if err := s.cache.InvalidateMessages(ctx, msg.SenderID, msg.RecipientID); err != nil {
			log.Printf("Warning: Failed to invalidate cached messages: %v", err)
		}
	}

	if s.publisher != nil {
		ev := &types.PostEvent{
			Kind:        types.EventSent,
			MessageID:   msg.ID,
			SenderID:    msg.SenderID,
			RecipientID: msg.RecipientID,
			Status:      msg.Status,
			PigeonName:  msg.PigeonName,
			ArrivalTime: msg.ArrivalTime,
			Timestamp:   departure,
		}
		if err := s.publisher.PublishEvent(ev); err != nil {
			log.Printf("Warning: Failed to publish sent event: %v", err)
		} else {
			s.stats.IncrementPublishedEvents()
		}
	}

	return msg, nil
}
