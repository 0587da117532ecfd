package db

import (
	"encoding/json"
	"time"
)

// AcceptedItem maps pulse.accepted_items. LocatorSignature is null when the
// item has no locator; the unique index on it makes duplicate-signature
// inserts conflict instead of producing a second row.
type AcceptedItem struct {
	ItemID           int64           `gorm:"column:item_id;primaryKey;autoIncrement"`
	ItemUUID         string          `gorm:"column:item_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source           string          `gorm:"column:source;type:text;not null;uniqueIndex:accepted_items_source_item"`
	SourceItemID     string          `gorm:"column:source_item_id;type:text;not null;uniqueIndex:accepted_items_source_item"`
	Title            string          `gorm:"column:title;type:text;not null"`
	ContentType      string          `gorm:"column:content_type;type:text;not null"`
	Priority         int             `gorm:"column:priority;type:integer;not null;default:50"`
	Locator          *string         `gorm:"column:locator;type:text"`
	LocatorSignature *string         `gorm:"column:locator_signature;type:text;uniqueIndex"`
	Fingerprint      *string         `gorm:"column:fingerprint;type:text"`
	Excerpt          string          `gorm:"column:excerpt;type:text;not null;default:''"`
	Windows          json.RawMessage `gorm:"column:windows;type:jsonb"`
	Metadata         json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;type:timestamptz;not null"`
	ExpiresAt        *time.Time      `gorm:"column:expires_at;type:timestamptz"`
	IngestedAt       time.Time       `gorm:"column:ingested_at;type:timestamptz;not null;default:now()"`
}

func (AcceptedItem) TableName() string { return "pulse.accepted_items" }

// SendHistoryEntry maps pulse.send_history. One row per (user, dedup key);
// a qualifying re-send updates the row and bumps version.
type SendHistoryEntry struct {
	SendHistoryID   int64     `gorm:"column:send_history_id;primaryKey;autoIncrement"`
	SendHistoryUUID string    `gorm:"column:send_history_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID          string    `gorm:"column:user_id;type:text;not null;uniqueIndex:send_history_user_key"`
	DedupKey        string    `gorm:"column:dedup_key;type:text;not null;uniqueIndex:send_history_user_key"`
	ContentType     string    `gorm:"column:content_type;type:text;not null"`
	WindowName      string    `gorm:"column:window_name;type:text;not null"`
	SentAt          time.Time `gorm:"column:sent_at;type:timestamptz;not null"`
	Version         int       `gorm:"column:version;type:integer;not null;default:1"`
}

func (SendHistoryEntry) TableName() string { return "pulse.send_history" }

// DeliveryTask maps pulse.delivery_tasks. The (user, event, channel) unique
// index is what makes task enqueueing idempotent.
type DeliveryTask struct {
	TaskID       int64     `gorm:"column:task_id;primaryKey;autoIncrement"`
	TaskUUID     string    `gorm:"column:task_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID       string    `gorm:"column:user_id;type:text;not null;uniqueIndex:delivery_tasks_user_event_channel"`
	EventID      string    `gorm:"column:event_id;type:text;not null;uniqueIndex:delivery_tasks_user_event_channel"`
	Channel      string    `gorm:"column:channel;type:text;not null;uniqueIndex:delivery_tasks_user_event_channel"`
	ScheduledFor time.Time `gorm:"column:scheduled_for;type:timestamptz;not null"`
	Status       string    `gorm:"column:status;type:text;not null;default:pending"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DeliveryTask) TableName() string { return "pulse.delivery_tasks" }

// Subscriber maps pulse.subscribers.
type Subscriber struct {
	SubscriberID   int64     `gorm:"column:subscriber_id;primaryKey;autoIncrement"`
	SubscriberUUID string    `gorm:"column:subscriber_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID         string    `gorm:"column:user_id;type:text;not null;unique"`
	Email          string    `gorm:"column:email;type:text;not null"`
	Phone          *string   `gorm:"column:phone;type:text"`
	Tier           string    `gorm:"column:tier;type:text;not null;default:free"`
	SMSConfirmed   bool      `gorm:"column:sms_confirmed;type:boolean;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Subscriber) TableName() string { return "pulse.subscribers" }

// TopicPreference maps pulse.topic_preferences. Settings holds the
// kind-tagged settings blob.
type TopicPreference struct {
	PreferenceID   int64           `gorm:"column:preference_id;primaryKey;autoIncrement"`
	PreferenceUUID string          `gorm:"column:preference_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	UserID         string          `gorm:"column:user_id;type:text;not null;uniqueIndex:topic_preferences_user_topic"`
	Topic          string          `gorm:"column:topic;type:text;not null;uniqueIndex:topic_preferences_user_topic"`
	Enabled        bool            `gorm:"column:enabled;type:boolean;not null;default:true"`
	Settings       json.RawMessage `gorm:"column:settings;type:jsonb"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (TopicPreference) TableName() string { return "pulse.topic_preferences" }

// IngestFailure maps pulse.ingest_failures, one row per failed batch report.
type IngestFailure struct {
	FailureID    int64           `gorm:"column:failure_id;primaryKey;autoIncrement"`
	FailureUUID  string          `gorm:"column:failure_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Source       string          `gorm:"column:source;type:text;not null"`
	FailureCount int             `gorm:"column:failure_count;type:integer;not null"`
	Samples      json.RawMessage `gorm:"column:samples;type:jsonb"`
	ReportedAt   time.Time       `gorm:"column:reported_at;type:timestamptz;not null;default:now()"`
}

func (IngestFailure) TableName() string { return "pulse.ingest_failures" }

func autoMigrateModels() []any {
	return []any{
		&AcceptedItem{},
		&SendHistoryEntry{},
		&DeliveryTask{},
		&Subscriber{},
		&TopicPreference{},
		&IngestFailure{},
	}
}
