package types

import (
	"time"
)

// Status is the persisted delivery status of a message
type Status string

const (
	StatusPreparing Status = "preparing"
	StatusInFlight  Status = "in_flight"
	StatusDelivered Status = "delivered"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPreparing, StatusInFlight, StatusDelivered:
		return true
	}
	return false
}

// GeoPoint is a latitude/longitude pair in decimal degrees
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// FlightPlan is computed once at send time and never changes afterwards
type FlightPlan struct {
	DistanceKm    float64   `json:"distance_km"`
	SpeedKmh      float64   `json:"pigeon_speed_kmh"`
	DepartureTime time.Time `json:"departure_time"`
	ArrivalTime   time.Time `json:"arrival_time"`
}

// Message represents a letter carried by a pigeon
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	Title       string    `json:"title,omitempty"`
	PigeonName  string    `json:"pigeon_name,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	FlightPlan
}

// Profile represents a user and their home loft
type Profile struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"display_name"`
	HomeLocationID    string    `json:"home_location_id"`
	HomeLocationLabel *string   `json:"home_location_label"`
	HomeLatitude      *float64  `json:"home_location_latitude"`
	HomeLongitude     *float64  `json:"home_location_longitude"`
	HomeCountryCode   *string   `json:"home_location_country_code"`
	CreatedAt         time.Time `json:"created_at"`
}

// LocationSelection is a single location search candidate
type LocationSelection struct {
	PlaceID     string  `json:"place_id"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryCode string  `json:"country_code,omitempty"`
}

// LocationSource tells where a resolved location came from
type LocationSource string

const (
	SourceProfile  LocationSource = "profile"
	SourceLegacy   LocationSource = "legacy"
	SourceFallback LocationSource = "fallback"
)

// ResolvedLocation is a profile's loft after fallback resolution
type ResolvedLocation struct {
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	CountryCode string         `json:"country_code,omitempty"`
	Source      LocationSource `json:"source"`
}

// Point returns the coordinates of the location
func (l *ResolvedLocation) Point() GeoPoint {
	return GeoPoint{Latitude: l.Latitude, Longitude: l.Longitude}
}

// EventKind identifies a post event on the stream
type EventKind string

const (
	EventSent      EventKind = "sent"
	EventDelivered EventKind = "delivered"
)

// PostEvent is published whenever a letter departs or lands
type PostEvent struct {
	Kind        EventKind `json:"kind"`
	MessageID   string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Status      Status    `json:"status"`
	PigeonName  string    `json:"pigeon_name,omitempty"`
	ArrivalTime time.Time `json:"arrival_time"`
	Timestamp   time.Time `json:"timestamp"`
}
