package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saviobatista/pigeon-post/internal/types"
)

// Mailbox names a cached message collection
type Mailbox string

const (
	Inbox  Mailbox = "inbox"
	Outbox Mailbox = "outbox"
)

// LocationTTL bounds how long geocoding results are reused
const LocationTTL = time.Hour

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

func mailboxKey(userID string, box Mailbox) string {
	return fmt.Sprintf("mailbox:%s:%s", userID, box)
}

func locationKey(query string) string {
	return fmt.Sprintf("geocode:%s", strings.ToLower(strings.TrimSpace(query)))
}

// getData retrieves data from Redis and unmarshals it into the target.
// The bool is false on a cache miss.
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}

func (c *Client) setData(ctx context.Context, key string, value interface{}, ttl time.Duration, dataType string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data: %w", dataType, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// StoreMessages caches a user's inbox or outbox
func (c *Client) StoreMessages(ctx context.Context, userID string, box Mailbox, messages []*types.Message, ttl time.Duration) error {
	if messages == nil {
		messages = []*types.Message{}
	}
	return c.setData(ctx, mailboxKey(userID, box), messages, ttl, "mailbox")
}

// GetMessages returns a cached inbox or outbox
func (c *Client) GetMessages(ctx context.Context, userID string, box Mailbox) ([]*types.Message, bool, error) {
	var messages []*types.Message
	found, err := c.getData(ctx, mailboxKey(userID, box), &messages, "mailbox")
	if err != nil || !found {
		return nil, false, err
	}
	return messages, true, nil
}

// InvalidateMessages drops the cached inbox and outbox of every given user
func (c *Client) InvalidateMessages(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs)*2)
	for _, id := range userIDs {
		keys = append(keys, mailboxKey(id, Inbox), mailboxKey(id, Outbox))
	}
	return c.client.Del(ctx, keys...).Err()
}

// StoreLocations caches location search results for a query
func (c *Client) StoreLocations(ctx context.Context, query string, results []types.LocationSelection) error {
	if results == nil {
		results = []types.LocationSelection{}
	}
	return c.setData(ctx, locationKey(query), results, LocationTTL, "location")
}

// GetLocations returns cached location search results for a query
func (c *Client) GetLocations(ctx context.Context, query string) ([]types.LocationSelection, bool, error) {
	var results []types.LocationSelection
	found, err := c.getData(ctx, locationKey(query), &results, "location")
	if err != nil || !found {
		return nil, false, err
	}
	return results, true, nil
}
