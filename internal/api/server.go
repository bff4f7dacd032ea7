package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/saviobatista/pigeon-post/internal/courier"
	"github.com/saviobatista/pigeon-post/internal/db"
	"github.com/saviobatista/pigeon-post/internal/dispatch"
	"github.com/saviobatista/pigeon-post/internal/location"
	"github.com/saviobatista/pigeon-post/internal/mailbox"
	"github.com/saviobatista/pigeon-post/internal/types"
)

// Profiles reads and writes user profiles
type Profiles interface {
	GetAllProfiles(ctx context.Context) ([]*types.Profile, error)
	GetProfileByID(ctx context.Context, id string) (*types.Profile, error)
	UpsertProfile(ctx context.Context, p *types.Profile) error
}

// Mailboxes serves decorated message collections
type Mailboxes interface {
	Inbox(ctx context.Context, userID string, now time.Time) ([]mailbox.FlightView, error)
	Outbox(ctx context.Context, userID string, now time.Time) ([]mailbox.FlightView, error)
	Contacts(ctx context.Context, userID string) ([]*types.Profile, error)
}

// Dispatcher sends letters
type Dispatcher interface {
	Estimate(ctx context.Context, senderID, recipientID, variantID string) (*dispatch.Estimate, error)
	Send(ctx context.Context, req dispatch.Request) (*types.Message, error)
}

// Locator searches for loft locations
type Locator interface {
	Search(ctx context.Context, query string) ([]types.LocationSelection, error)
}

// Deps are the collaborators behind the HTTP API
type Deps struct {
	Profiles   Profiles
	Mailboxes  Mailboxes
	Dispatcher Dispatcher
	Locator    Locator
}

type Server struct {
	deps Deps
	now  func() time.Time
}

// errInvalidProfile is returned for profile writes missing required fields
var errInvalidProfile = errors.New("display_name and email are required")

// errInvalidCoordinates is returned for home coordinates outside the globe
var errInvalidCoordinates = errors.New("home coordinates must be within latitude [-90, 90] and longitude [-180, 180]")

// New constructs the HTTP router
func New(deps Deps) http.Handler {
	s := &Server{deps: deps, now: func() time.Time { return time.Now().UTC() }}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/couriers", s.handleCouriers)
	r.Get("/lofts", s.handleLofts)
	r.Get("/locations/search", s.handleLocationSearch)

	r.Get("/profiles", s.handleProfiles)
	r.Get("/profiles/{id}", s.handleProfile)
	r.Put("/profiles/{id}", s.handleUpsertProfile)

	r.Route("/users/{id}", func(r chi.Router) {
		r.Get("/contacts", s.handleContacts)
		r.Get("/inbox", s.handleInbox)
		r.Get("/outbox", s.handleOutbox)
	})

	r.Post("/messages", s.handleSend)
	r.Post("/messages/estimate", s.handleEstimate)

	return r
}

func (s *Server) handleCouriers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, courier.Variants)
}

func (s *Server) handleLofts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, location.Lofts)
}

func (s *Server) handleLocationSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.deps.Locator.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.deps.Profiles.GetAllProfiles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if profiles == nil {
		profiles = []*types.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

type profileResponse struct {
	*types.Profile
	Home *types.ResolvedLocation `json:"home"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Profiles.GetProfileByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: profile, Home: location.ResolveProfile(profile, false)})
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	var p types.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request")
		return
	}
	p.ID = chi.URLParam(r, "id")
	if strings.TrimSpace(p.DisplayName) == "" || strings.TrimSpace(p.Email) == "" {
		writeError(w, errInvalidProfile)
		return
	}
	if !validHome(&p) {
		writeError(w, errInvalidCoordinates)
		return
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	if err := s.deps.Profiles.UpsertProfile(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: &p, Home: location.ResolveProfile(&p, false)})
}

// validHome checks whichever home coordinates are set
func validHome(p *types.Profile) bool {
	lat, lon := 0.0, 0.0
	if p.HomeLatitude != nil {
		lat = *p.HomeLatitude
	}
	if p.HomeLongitude != nil {
		lon = *p.HomeLongitude
	}
	return location.ValidCoordinates(lat, lon)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.deps.Mailboxes.Contacts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.Mailboxes.Inbox(r.Context(), chi.URLParam(r, "id"), s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.Mailboxes.Outbox(r.Context(), chi.URLParam(r, "id"), s.now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request")
		return
	}
	msg, err := s.deps.Dispatcher.Send(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request")
		return
	}
	est, err := s.deps.Dispatcher.Estimate(r.Context(), req.SenderID, req.RecipientID, req.VariantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// statusFor maps domain errors to HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrEmptyLetter),
		errors.Is(err, dispatch.ErrUnknownVariant),
		errors.Is(err, dispatch.ErrMissingInfo),
		errors.Is(err, errInvalidProfile),
		errors.Is(err, errInvalidCoordinates):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
