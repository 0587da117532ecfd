// Package matching selects recipients for accepted events and queues
// delivery tasks. Matching dispatches on the topic's declared rule kind;
// queuing latency and channels follow the user's account tier.
package matching

import (
	"context"
	"time"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Event is an accepted event ready for recipient matching. Metadata carries
// topic-specific attributes: "routes" for route-based topics, "brackets" for
// bracket-based ones, "sub_alert" for opt-out topics. Empty Areas means
// citywide.
type Event struct {
	ID       string
	Topic    string
	Metadata map[string]any
	Areas    []string
}

// Preference is one user's enablement and settings for one topic.
type Preference struct {
	Topic    string
	Enabled  bool
	Settings Settings
}

type User struct {
	ID           string
	Email        string
	Phone        string
	Tier         Tier
	SMSConfirmed bool
}

// Subscriber pairs a user with their preference for the topic being matched.
type Subscriber struct {
	User       User
	Preference Preference
}

// DeliveryTask is one scheduled notification. The (user, event, channel)
// triple is unique in storage, which is what makes enqueueing idempotent.
type DeliveryTask struct {
	UserID       string
	EventID      string
	Channel      Channel
	ScheduledFor time.Time
}

// TaskStore persists delivery tasks. Enqueue reports whether a row was
// actually inserted; a duplicate (user, event, channel) is absorbed and
// returns false with no error.
type TaskStore interface {
	Enqueue(ctx context.Context, task DeliveryTask) (bool, error)
}

// Directory lists the users who have a topic enabled, with their settings.
type Directory interface {
	ListSubscribers(ctx context.Context, topic string) ([]Subscriber, error)
}
