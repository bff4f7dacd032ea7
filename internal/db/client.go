package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/saviobatista/pigeon-post/internal/types"
)

// ErrNotFound is returned when a single-row lookup matches nothing
var ErrNotFound = errors.New("not found")

const messageColumns = `id, sender_id, recipient_id, body, title, pigeon_name, status,
	created_at, departure_time, arrival_time, distance_km, pigeon_speed_kmh`

const profileColumns = `id, email, display_name, home_location_id, home_location_label,
	home_location_latitude, home_location_longitude, home_location_country_code, created_at`

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping checks that the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var (
		m          types.Message
		title      sql.NullString
		pigeonName sql.NullString
		status     string
	)
	if err := row.Scan(
		&m.ID, &m.SenderID, &m.RecipientID, &m.Body, &title, &pigeonName, &status,
		&m.CreatedAt, &m.DepartureTime, &m.ArrivalTime, &m.DistanceKm, &m.SpeedKmh,
	); err != nil {
		return nil, err
	}
	m.Title = title.String
	m.PigeonName = pigeonName.String
	m.Status = types.Status(status)
	return &m, nil
}

func (c *Client) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*types.Message, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*types.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetInboxMessages retrieves the messages addressed to a user, newest first
func (c *Client) GetInboxMessages(ctx context.Context, userID string) ([]*types.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE recipient_id = $1
		ORDER BY created_at DESC`
	return c.queryMessages(ctx, query, userID)
}

// GetOutboxMessages retrieves the messages sent by a user, newest first
func (c *Client) GetOutboxMessages(ctx context.Context, userID string) ([]*types.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE sender_id = $1
		ORDER BY created_at DESC`
	return c.queryMessages(ctx, query, userID)
}

// GetPendingDeliveries retrieves the messages not yet marked delivered whose
// arrival time is at or before landedBy
func (c *Client) GetPendingDeliveries(ctx context.Context, landedBy time.Time) ([]*types.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages
		WHERE status = ANY($1) AND arrival_time <= $2
		ORDER BY arrival_time`
	pending := []string{string(types.StatusPreparing), string(types.StatusInFlight)}
	return c.queryMessages(ctx, query, pq.Array(pending), landedBy)
}

// CreateMessage inserts a new message row
func (c *Client) CreateMessage(ctx context.Context, m *types.Message) error {
	query := `
		INSERT INTO messages (
			id, sender_id, recipient_id, body, title, pigeon_name, status,
			created_at, departure_time, arrival_time, distance_km, pigeon_speed_kmh
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, $12)
	`
	_, err := c.db.ExecContext(ctx, query,
		m.ID, m.SenderID, m.RecipientID, m.Body, m.Title, m.PigeonName, string(m.Status),
		m.CreatedAt, m.DepartureTime, m.ArrivalTime, m.DistanceKm, m.SpeedKmh,
	)
	return err
}

// MarkDelivered sets a message's status to delivered. It is idempotent: the
// returned bool is false when the row was already delivered or does not exist.
func (c *Client) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	query := `UPDATE messages SET status = $1 WHERE id = $2 AND status <> $1`
	res, err := c.db.ExecContext(ctx, query, string(types.StatusDelivered), messageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanProfile(row rowScanner) (*types.Profile, error) {
	var (
		p           types.Profile
		label       sql.NullString
		lat         sql.NullFloat64
		lon         sql.NullFloat64
		countryCode sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.Email, &p.DisplayName, &p.HomeLocationID, &label,
		&lat, &lon, &countryCode, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	if label.Valid {
		p.HomeLocationLabel = &label.String
	}
	if lat.Valid {
		p.HomeLatitude = &lat.Float64
	}
	if lon.Valid {
		p.HomeLongitude = &lon.Float64
	}
	if countryCode.Valid {
		p.HomeCountryCode = &countryCode.String
	}
	return &p, nil
}

// GetAllProfiles retrieves every profile
func (c *Client) GetAllProfiles(ctx context.Context) ([]*types.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM profiles
		ORDER BY display_name`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*types.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetProfileByID retrieves a single profile
func (c *Client) GetProfileByID(ctx context.Context, id string) (*types.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE id = $1`
	p, err := scanProfile(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// UpsertProfile creates a profile or updates its name and home loft
func (c *Client) UpsertProfile(ctx context.Context, p *types.Profile) error {
	query := `
		INSERT INTO profiles (
			id, email, display_name, home_location_id, home_location_label,
			home_location_latitude, home_location_longitude, home_location_country_code, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			home_location_id = EXCLUDED.home_location_id,
			home_location_label = EXCLUDED.home_location_label,
			home_location_latitude = EXCLUDED.home_location_latitude,
			home_location_longitude = EXCLUDED.home_location_longitude,
			home_location_country_code = EXCLUDED.home_location_country_code
	`
	_, err := c.db.ExecContext(ctx, query,
		p.ID, p.Email, p.DisplayName, p.HomeLocationID, p.HomeLocationLabel,
		p.HomeLatitude, p.HomeLongitude, p.HomeCountryCode, p.CreatedAt,
	)
	return err
}

// StoreStats stores a statistics snapshot
func (c *Client) StoreStats(ctx context.Context, stats map[string]interface{}) error {
	query := `
		INSERT INTO post_stats (
			time, reconcile_ticks, due_messages, delivered_messages,
			failed_deliveries, sent_messages, published_events, uptime_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	uptime := stats["uptime"].(time.Duration).Seconds()

	_, err := c.db.ExecContext(ctx, query,
		time.Now(),
		int64(stats["reconcile_ticks"].(uint64)),
		int64(stats["due_messages"].(uint64)),
		int64(stats["delivered_messages"].(uint64)),
		int64(stats["failed_deliveries"].(uint64)),
		int64(stats["sent_messages"].(uint64)),
		int64(stats["published_events"].(uint64)),
		int64(uptime),
	)
	return err
}

// GetStats retrieves statistics snapshots for a time range
func (c *Client) GetStats(ctx context.Context, start, end time.Time) ([]map[string]interface{}, error) {
	query := `
		SELECT time, reconcile_ticks, due_messages, delivered_messages,
			failed_deliveries, sent_messages, published_events, uptime_seconds
		FROM post_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`

	rows, err := c.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []map[string]interface{}
	for rows.Next() {
		var (
			timestamp         time.Time
			reconcileTicks    int64
			dueMessages       int64
			deliveredMessages int64
			failedDeliveries  int64
			sentMessages      int64
			publishedEvents   int64
			uptimeSeconds     int64
		)
		if err := rows.Scan(
			&timestamp, &reconcileTicks, &dueMessages, &deliveredMessages,
			&failedDeliveries, &sentMessages, &publishedEvents, &uptimeSeconds,
		); err != nil {
			return nil, err
		}

		stats = append(stats, map[string]interface{}{
			"time":               timestamp,
			"reconcile_ticks":    reconcileTicks,
			"due_messages":       dueMessages,
			"delivered_messages": deliveredMessages,
			"failed_deliveries":  failedDeliveries,
			"sent_messages":      sentMessages,
			"published_events":   publishedEvents,
			"uptime_seconds":     uptimeSeconds,
		})
	}

	return stats, rows.Err()
}
