package db

import (
	"context"
	"fmt"
	"strings"

	"citypulse.nyc/pulse/internal/matching"
)

// SubscriberDirectory lists the users subscribed to a topic, with their
// decoded preference settings.
type SubscriberDirectory struct {
	pool *Pool
}

func NewSubscriberDirectory(pool *Pool) *SubscriberDirectory {
	return &SubscriberDirectory{pool: pool}
}

func (d *SubscriberDirectory) ListSubscribers(ctx context.Context, topic string) ([]matching.Subscriber, error) {
	const q = `
SELECT
	s.user_id,
	s.email,
	COALESCE(s.phone, ''),
	s.tier,
	s.sms_confirmed,
	p.topic,
	p.enabled,
	p.settings
FROM pulse.topic_preferences p
JOIN pulse.subscribers s ON s.user_id = p.user_id
WHERE p.topic = $1
  AND p.enabled
ORDER BY s.user_id
`

	rows, err := d.pool.Query(ctx, q, strings.TrimSpace(strings.ToLower(topic)))
	if err != nil {
		return nil, fmt.Errorf("query topic subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make([]matching.Subscriber, 0, 32)
	for rows.Next() {
		var (
			sub         matching.Subscriber
			tier        string
			rawSettings []byte
		)
		if err := rows.Scan(
			&sub.User.ID,
			&sub.User.Email,
			&sub.User.Phone,
			&tier,
			&sub.User.SMSConfirmed,
			&sub.Preference.Topic,
			&sub.Preference.Enabled,
			&rawSettings,
		); err != nil {
			return nil, fmt.Errorf("scan subscriber row: %w", err)
		}
		sub.User.Tier = matching.Tier(tier)

		settings, err := matching.DecodeSettings(rawSettings)
		if err != nil {
			return nil, fmt.Errorf("decode settings for user %s topic %s: %w", sub.User.ID, sub.Preference.Topic, err)
		}
		sub.Preference.Settings = settings

		subscribers = append(subscribers, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber rows: %w", err)
	}

	return subscribers, nil
}

// UpsertPreference writes one user's preference for a topic, replacing any
// previous settings blob.
func (d *SubscriberDirectory) UpsertPreference(ctx context.Context, userID string, pref matching.Preference) error {
	settings, err := matching.EncodeSettings(pref.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	const q = `
INSERT INTO pulse.topic_preferences (user_id, topic, enabled, settings, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id, topic) DO UPDATE
SET enabled    = EXCLUDED.enabled,
    settings   = EXCLUDED.settings,
    updated_at = now()
`

	if _, err := d.pool.Exec(ctx, q, userID, strings.TrimSpace(strings.ToLower(pref.Topic)), pref.Enabled, settings); err != nil {
		return fmt.Errorf("upsert topic preference: %w", err)
	}
	return nil
}
