package nats

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saviobatista/pigeon-post/internal/types"
)

const (
	StreamName       = "POST_EVENTS"
	SubjectAll       = "post.>"
	SubjectSent      = "post.sent"
	SubjectDelivered = "post.delivered"
)

// Subject returns the subject a post event of the given kind is published on
func Subject(kind types.EventKind) (string, error) {
	switch kind {
	case types.EventSent:
		return SubjectSent, nil
	case types.EventDelivered:
		return SubjectDelivered, nil
	}
	return "", fmt.Errorf("unknown event kind: %q", kind)
}

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a new NATS client
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url, nats.Name("pigeon-post"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAll},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// PublishEvent publishes a post event on the subject for its kind
func (c *Client) PublishEvent(ev *types.PostEvent) error {
	subject, err := Subject(ev.Kind)
	if err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Message id lets JetStream drop duplicate publishes within its window
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, string(ev.Kind)+":"+ev.MessageID)

	if _, err := c.js.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// SubscribeEvents subscribes to every post event
func (c *Client) SubscribeEvents(handler func(*types.PostEvent)) error {
	_, err := c.js.Subscribe(SubjectAll, func(msg *nats.Msg) {
		var ev types.PostEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("Error unmarshaling event: %v", err)
			return
		}
		handler(&ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
