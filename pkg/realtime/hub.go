// Package realtime carries change notifications between the parts of the portal that write
// shared state and the views that watch it.
package realtime

import (
	"context"
	"time"
)

// Topics published on the hub.
const (
	TopicPresence = "presence"
	TopicNotices  = "notices"
)

// Actions describing a change.
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
	ActionPrune  = "prune"
)

// Event is a change notification. It names what changed, never the new state.
type Event struct {
	Topic  string    `json:"topic"`
	Action string    `json:"action"`
	Key    string    `json:"key,omitempty"`
	At     time.Time `json:"at"`
}

// Hub fans change events out to subscribers. Delivery is best-effort: a slow subscriber
// loses events rather than blocking publishers.
type Hub interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe returns a channel that is closed once ctx is done or the hub closes.
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}
