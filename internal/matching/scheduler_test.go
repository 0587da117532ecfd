package matching

import (
	"context"
	"testing"
	"time"
)

type fakeTaskStore struct {
	tasks []DeliveryTask
	seen  map[string]struct{}
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{seen: map[string]struct{}{}}
}

func (s *fakeTaskStore) Enqueue(_ context.Context, task DeliveryTask) (bool, error) {
	key := task.UserID + "|" + task.EventID + "|" + string(task.Channel)
	if _, dup := s.seen[key]; dup {
		return false, nil
	}
	s.seen[key] = struct{}{}
	s.tasks = append(s.tasks, task)
	return true, nil
}

type fakeDirectory struct {
	subscribers map[string][]Subscriber
}

func (d *fakeDirectory) ListSubscribers(_ context.Context, topic string) ([]Subscriber, error) {
	return d.subscribers[topic], nil
}

var queueNow = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func TestQueueDeliveryFreeTier(t *testing.T) {
	t.Parallel()

	store := newFakeTaskStore()
	s := newTestScheduler(t, store, nil)
	user := User{ID: "u-1", Email: "free@example.com", Tier: TierFree}

	tasks, inserted, err := s.QueueDelivery(context.Background(), user, Event{ID: "e-1"}, queueNow)
	if err != nil {
		t.Fatalf("queue delivery: %v", err)
	}
	if len(tasks) != 1 || inserted != 1 {
		t.Fatalf("expected one task for free tier, got %d (%d inserted)", len(tasks), inserted)
	}
	if tasks[0].Channel != ChannelEmail {
		t.Fatalf("expected email channel, got %s", tasks[0].Channel)
	}
	if want := queueNow.Add(DefaultFreeTierDelay); !tasks[0].ScheduledFor.Equal(want) {
		t.Fatalf("expected free-tier delay to %v, got %v", want, tasks[0].ScheduledFor)
	}
}

func TestQueueDeliveryPremiumWithConfirmedSMS(t *testing.T) {
	t.Parallel()

	store := newFakeTaskStore()
	s := newTestScheduler(t, store, nil)
	user := User{
		ID:           "u-1",
		Email:        "premium@example.com",
		Phone:        "+12125550100",
		Tier:         TierPremium,
		SMSConfirmed: true,
	}

	tasks, inserted, err := s.QueueDelivery(context.Background(), user, Event{ID: "e-1"}, queueNow)
	if err != nil {
		t.Fatalf("queue delivery: %v", err)
	}
	if len(tasks) != 2 || inserted != 2 {
		t.Fatalf("expected sms and email tasks, got %d (%d inserted)", len(tasks), inserted)
	}
	channels := map[Channel]bool{}
	for _, task := range tasks {
		channels[task.Channel] = true
		if !task.ScheduledFor.Equal(queueNow) {
			t.Fatalf("expected immediate delivery, got %v", task.ScheduledFor)
		}
	}
	if !channels[ChannelSMS] || !channels[ChannelEmail] {
		t.Fatalf("expected both channels, got %v", channels)
	}
}

func TestQueueDeliveryPremiumUnconfirmedSMS(t *testing.T) {
	t.Parallel()

	store := newFakeTaskStore()
	s := newTestScheduler(t, store, nil)
	user := User{
		ID:    "u-1",
		Email: "premium@example.com",
		Phone: "+12125550100",
		Tier:  TierPremium,
	}

	tasks, _, err := s.QueueDelivery(context.Background(), user, Event{ID: "e-1"}, queueNow)
	if err != nil {
		t.Fatalf("queue delivery: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Channel != ChannelEmail {
		t.Fatalf("expected email only for unconfirmed sms, got %+v", tasks)
	}
}

func TestQueueDeliveryIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeTaskStore()
	s := newTestScheduler(t, store, nil)
	user := User{ID: "u-1", Tier: TierFree}

	if _, inserted, err := s.QueueDelivery(context.Background(), user, Event{ID: "e-1"}, queueNow); err != nil || inserted != 1 {
		t.Fatalf("first enqueue: inserted %d err %v", inserted, err)
	}
	tasks, inserted, err := s.QueueDelivery(context.Background(), user, Event{ID: "e-1"}, queueNow)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected repeat enqueue to insert nothing, got %d", inserted)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected the planned task set to be reported either way, got %d", len(tasks))
	}
	if len(store.tasks) != 1 {
		t.Fatalf("expected one stored task, got %d", len(store.tasks))
	}
}

func TestProcessEventMatchesAndQueues(t *testing.T) {
	t.Parallel()

	store := newFakeTaskStore()
	directory := &fakeDirectory{subscribers: map[string][]Subscriber{
		"transit_alerts": {
			{
				User:       User{ID: "u-f", Tier: TierFree},
				Preference: enabledPref("transit_alerts", &RouteSettings{Routes: []string{"F"}}),
			},
			{
				User:       User{ID: "u-7", Tier: TierFree},
				Preference: enabledPref("transit_alerts", &RouteSettings{Routes: []string{"7"}}),
			},
			{
				User: User{
					ID:           "u-p",
					Phone:        "+12125550100",
					Tier:         TierPremium,
					SMSConfirmed: true,
				},
				Preference: enabledPref("transit_alerts", &RouteSettings{Routes: []string{"F", "G"}}),
			},
		},
	}}
	s := newTestScheduler(t, store, directory)

	event := Event{
		ID:       "e-1",
		Topic:    "transit_alerts",
		Metadata: map[string]any{"routes": []any{"F"}},
	}
	queued, err := s.ProcessEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("process event: %v", err)
	}
	// u-f gets one email, u-p gets sms plus email, u-7 is not matched.
	if queued != 3 {
		t.Fatalf("expected 3 tasks queued, got %d", queued)
	}
	for _, task := range store.tasks {
		if task.UserID == "u-7" {
			t.Fatalf("did not expect tasks for unmatched user: %+v", task)
		}
	}
}

func TestProcessEventBatchTotals(t *testing.T) {
	t.Parallel()

	store := newFakeTaskStore()
	directory := &fakeDirectory{subscribers: map[string][]Subscriber{
		"severe_weather": {
			{User: User{ID: "u-1", Tier: TierFree}, Preference: enabledPref("severe_weather", nil)},
			{User: User{ID: "u-2", Tier: TierFree}, Preference: enabledPref("severe_weather", nil)},
		},
	}}
	s := newTestScheduler(t, store, directory)

	events := []Event{
		{ID: "e-1", Topic: "severe_weather"},
		{ID: "e-2", Topic: "severe_weather"},
		{ID: "e-3", Topic: "unsubscribed_topic"},
	}
	total, err := s.ProcessEventBatch(context.Background(), events)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected 4 tasks across the batch, got %d", total)
	}
}
