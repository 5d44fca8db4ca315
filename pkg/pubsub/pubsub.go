package pubsub

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrClosed is returned once the publisher has been closed
var ErrClosed = errors.New("publisher is closed")

// Topics published by the report
const (
	TopicDataset       = "dataset"       // applied Sankey dataset
	TopicCustomState   = "custom_state"  // acknowledged report state
	TopicTagGroups     = "tag_groups"    // tag group selector options
	TopicNotifications = "notifications" // toasts
	TopicBusy          = "busy"          // spinner
)

// Topics lists every topic a client may subscribe to
var Topics = []string{TopicDataset, TopicCustomState, TopicTagGroups, TopicNotifications, TopicBusy}

// KnownTopic reports whether topic is one of Topics
func KnownTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "dataset", "busy")
	Type    string          `json:"type"`    // Event type (e.g., "applied", "show", "error")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic. since is the last
	// version the subscriber saw (0 for none); retained events after it are
	// delivered first. Context cancellation closes the subscription.
	Subscribe(ctx context.Context, topic string, since int) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data any) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// Notification is a toast shown to the user
type Notification struct {
	Level   string `json:"level"` // error, warning, info
	Message string `json:"message"`
}

// BusyStatus toggles the spinner
type BusyStatus struct {
	Busy    bool   `json:"busy"`
	Message string `json:"message,omitempty"`
}
