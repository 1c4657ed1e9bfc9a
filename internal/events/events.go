package events

import (
	"context"
	"encoding/json"
	"time"
)

// Channel is the broker channel all post activity is published to.
const Channel = "post-activity"

// Event types.
const (
	TypePostCreated = "post.created"
	TypePostLiked   = "post.liked"
	TypePostUnliked = "post.unliked"
)

// Event is an activity record published when a post changes.
type Event struct {
	Type       string    `json:"type"`
	PostID     int       `json:"post_id"`
	ActorID    int       `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Publisher serializes events onto a backend channel.
type Publisher struct {
	backend Backend
}

// NewPublisher constructs a Publisher for the provided backend.
func NewPublisher(backend Backend) *Publisher {
	return &Publisher{backend: backend}
}

// Publish sends the event to the activity channel. The event type is
// duplicated into a message attribute so consumers can filter without
// decoding the payload.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.backend.Publish(ctx, Channel, data, map[string]string{"type": event.Type})
	return err
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	return p.backend.Close()
}
