package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatus_Valid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPreparing, true},
		{StatusInFlight, true},
		{StatusDelivered, true},
		{Status(""), false},
		{Status("lost"), false},
	}

	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.want {
			t.Errorf("Status(%q).Valid() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestMessage_JSONUsesColumnNames(t *testing.T) {
	msg := Message{
		ID:          "msg-1",
		SenderID:    "alice",
		RecipientID: "bob",
		Body:        "hello",
		Status:      StatusInFlight,
		FlightPlan: FlightPlan{
			DistanceKm:    5570,
			SpeedKmh:      65,
			DepartureTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			ArrivalTime:   time.Date(2024, 1, 4, 17, 42, 0, 0, time.UTC),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Failed to marshal Message: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Failed to unmarshal into map: %v", err)
	}

	// The flight plan is embedded, so its columns sit at the top level
	for _, key := range []string{"sender_id", "recipient_id", "departure_time", "arrival_time", "distance_km", "pigeon_speed_kmh", "status"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Expected key %q in JSON, got %v", key, fields)
		}
	}
	if _, ok := fields["title"]; ok {
		t.Error("Expected empty title to be omitted")
	}
	if fields["status"] != "in_flight" {
		t.Errorf("Expected status in_flight, got %v", fields["status"])
	}
}

func TestResolvedLocation_Point(t *testing.T) {
	loc := &ResolvedLocation{Label: "London", Latitude: 51.5072, Longitude: -0.1276, Source: SourceLegacy}

	p := loc.Point()
	if p.Latitude != 51.5072 || p.Longitude != -0.1276 {
		t.Errorf("Point() = %+v, want {51.5072 -0.1276}", p)
	}
}
