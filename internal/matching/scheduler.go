package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"citypulse.nyc/pulse/internal/catalog"
	"citypulse.nyc/pulse/internal/globaltime"
)

// DefaultFreeTierDelay batches free-tier delivery into the next day's digest.
const DefaultFreeTierDelay = 24 * time.Hour

type Scheduler struct {
	tasks         TaskStore
	directory     Directory
	catalog       *catalog.Catalog
	logger        zerolog.Logger
	freeTierDelay time.Duration
}

type Options struct {
	FreeTierDelay time.Duration
}

func NewScheduler(tasks TaskStore, directory Directory, cat *catalog.Catalog, logger zerolog.Logger, opts Options) *Scheduler {
	delay := opts.FreeTierDelay
	if delay <= 0 {
		delay = DefaultFreeTierDelay
	}
	return &Scheduler{
		tasks:         tasks,
		directory:     directory,
		catalog:       cat,
		logger:        logger,
		freeTierDelay: delay,
	}
}

// QueueDelivery builds and enqueues the delivery tasks one matched user gets
// for an event. Premium users get immediate tasks on every eligible channel;
// free users get a single delayed email. Duplicate enqueues for the same
// (user, event, channel) are absorbed, so the returned count only reflects
// rows actually inserted.
func (s *Scheduler) QueueDelivery(ctx context.Context, user User, event Event, now time.Time) ([]DeliveryTask, int, error) {
	if s == nil || s.tasks == nil {
		return nil, 0, fmt.Errorf("scheduler is not initialized")
	}

	tasks := s.tasksFor(user, event, now)
	inserted := 0
	for _, task := range tasks {
		ok, err := s.tasks.Enqueue(ctx, task)
		if err != nil {
			return nil, inserted, fmt.Errorf("enqueue %s task for user %s: %w", task.Channel, user.ID, err)
		}
		if ok {
			inserted++
		}
	}
	return tasks, inserted, nil
}

func (s *Scheduler) tasksFor(user User, event Event, now time.Time) []DeliveryTask {
	now = now.UTC()
	if user.Tier != TierPremium {
		return []DeliveryTask{{
			UserID:       user.ID,
			EventID:      event.ID,
			Channel:      ChannelEmail,
			ScheduledFor: now.Add(s.freeTierDelay),
		}}
	}

	tasks := make([]DeliveryTask, 0, 2)
	if strings.TrimSpace(user.Phone) != "" && user.SMSConfirmed {
		tasks = append(tasks, DeliveryTask{
			UserID:       user.ID,
			EventID:      event.ID,
			Channel:      ChannelSMS,
			ScheduledFor: now,
		})
	}
	tasks = append(tasks, DeliveryTask{
		UserID:       user.ID,
		EventID:      event.ID,
		Channel:      ChannelEmail,
		ScheduledFor: now,
	})
	return tasks
}

// ProcessEvent matches one event against the topic's subscribers and queues
// delivery for every match. It returns the number of tasks inserted.
func (s *Scheduler) ProcessEvent(ctx context.Context, event Event) (int, error) {
	if s == nil || s.directory == nil {
		return 0, fmt.Errorf("scheduler is not initialized")
	}

	subscribers, err := s.directory.ListSubscribers(ctx, event.Topic)
	if err != nil {
		return 0, fmt.Errorf("list subscribers for topic %s: %w", event.Topic, err)
	}

	now := globaltime.UTC()
	matched := 0
	queued := 0
	for _, sub := range subscribers {
		if !s.MatchesPreference(event, sub.Preference) {
			continue
		}
		matched++
		_, inserted, err := s.QueueDelivery(ctx, sub.User, event, now)
		if err != nil {
			return queued, err
		}
		queued += inserted
	}

	s.logger.Debug().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		Int("subscribers", len(subscribers)).
		Int("matched", matched).
		Int("queued", queued).
		Msg("event matched against subscribers")
	return queued, nil
}

// ProcessEventBatch runs matching and queueing across a batch of newly
// accepted events and returns the total tasks queued.
func (s *Scheduler) ProcessEventBatch(ctx context.Context, events []Event) (int, error) {
	total := 0
	for _, event := range events {
		queued, err := s.ProcessEvent(ctx, event)
		total += queued
		if err != nil {
			return total, err
		}
	}

	s.logger.Info().
		Int("events", len(events)).
		Int("tasks_queued", total).
		Msg("event batch processed")
	return total, nil
}
