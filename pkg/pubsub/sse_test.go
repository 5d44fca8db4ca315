package pubsub

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// drain collects whatever is queued on sub without waiting for more
func drain(sub Subscription) []int {
	var versions []int
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return versions
			}
			versions = append(versions, event.Version)
		case <-time.After(20 * time.Millisecond):
			return versions
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSubscribeBacklog(t *testing.T) {
	tests := []struct {
		name   string
		config TopicConfig
		since  int
		want   []int
	}{
		{"replay all retained", TopicConfig{Retain: 3, Replay: ReplayAll}, 0, []int{3, 4, 5}},
		{"replay latest", TopicConfig{Retain: 3, Replay: ReplayLatest}, 0, []int{5}},
		{"replay none", TopicConfig{Retain: 3, Replay: ReplayNone}, 0, nil},
		{"nothing retained", TopicConfig{Replay: ReplayAll}, 0, nil},
		{"resume after version", TopicConfig{Retain: 3, Replay: ReplayLatest}, 3, []int{4, 5}},
		{"resume before retained window", TopicConfig{Retain: 3, Replay: ReplayNone}, 1, []int{3, 4, 5}},
		{"resume up to date", TopicConfig{Retain: 3, Replay: ReplayAll}, 5, nil},
		{"resume from a previous process", TopicConfig{Retain: 3, Replay: ReplayLatest}, 42, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := NewSSEPublisher()
			defer pub.Close()
			pub.ConfigureTopic("test", tt.config)

			for i := 1; i <= 5; i++ {
				if err := pub.Publish("test", "event", map[string]int{"num": i}); err != nil {
					t.Fatalf("Publish(%d) unexpected error: %v", i, err)
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sub, err := pub.Subscribe(ctx, "test", tt.since)
			if err != nil {
				t.Fatalf("Subscribe() unexpected error: %v", err)
			}

			if got := drain(sub); !equalInts(got, tt.want) {
				t.Errorf("backlog versions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLiveEventsFollowBacklog(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	pub.ConfigureTopic("test", TopicConfig{Retain: 1, Replay: ReplayLatest})

	_ = pub.Publish("test", "event", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, "test", 0)
	if err != nil {
		t.Fatal(err)
	}
	_ = pub.Publish("test", "event", 2)

	if got := drain(sub); !equalInts(got, []int{1, 2}) {
		t.Errorf("versions = %v, want [1 2]", got)
	}
}

func TestLaggingSubscriberKeepsNewest(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, "test", 0)
	if err != nil {
		t.Fatal(err)
	}

	total := subscriberQueue + 4
	for i := 1; i <= total; i++ {
		_ = pub.Publish("test", "event", i)
	}

	got := drain(sub)
	if len(got) != subscriberQueue {
		t.Fatalf("Expected a full queue of %d events, got %d", subscriberQueue, len(got))
	}
	if got[0] != 5 || got[len(got)-1] != total {
		t.Errorf("Expected versions 5..%d, got %d..%d", total, got[0], got[len(got)-1])
	}
}

func TestReportPublisherReplaysLatestState(t *testing.T) {
	pub := NewReportPublisher()
	defer pub.Close()

	for _, busy := range []bool{true, false} {
		if err := pub.Publish(TopicBusy, "busy", BusyStatus{Busy: busy}); err != nil {
			t.Fatalf("Failed to publish: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := pub.Subscribe(ctx, TopicBusy, 0)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case event := <-sub.Events():
		if event.Version != 2 || string(event.Data) != `{"busy":false}` {
			t.Errorf("Expected latest busy event, got version %d data %s", event.Version, event.Data)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for replayed event")
	}
}

func TestReportPublisherNotifications(t *testing.T) {
	pub := NewReportPublisher()
	defer pub.Close()

	for i := 0; i < 7; i++ {
		_ = pub.Publish(TopicNotifications, "info", Notification{Level: "info", Message: "refreshed"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, TopicNotifications, 0)
	if err != nil {
		t.Fatal(err)
	}

	if got := drain(sub); !equalInts(got, []int{3, 4, 5, 6, 7}) {
		t.Errorf("replayed notifications = %v, want the last five", got)
	}
}

func TestConfigureTopicTrimsRetained(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	pub.ConfigureTopic("test", TopicConfig{Retain: 5, Replay: ReplayAll})
	for i := 0; i < 5; i++ {
		_ = pub.Publish("test", "event", i)
	}
	pub.ConfigureTopic("test", TopicConfig{Retain: 2, Replay: ReplayAll})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, _ := pub.Subscribe(ctx, "test", 0)

	if got := drain(sub); !equalInts(got, []int{4, 5}) {
		t.Errorf("versions = %v, want [4 5]", got)
	}
}

func TestSubscriptionClosedOnCancel(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := pub.Subscribe(ctx, "test", 0); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if n := pub.subscriberCount("test"); n != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", n)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pub.subscriberCount("test") == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("Subscription was not removed after context cancellation")
}

func TestClose(t *testing.T) {
	pub := NewSSEPublisher()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, "test", 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("Expected the event channel to be closed")
	}
	if err := pub.Publish("test", "event", 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClosed", err)
	}
	if _, err := pub.Subscribe(ctx, "test", 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe() after Close error = %v, want ErrClosed", err)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("second Close() unexpected error: %v", err)
	}
}

func TestPublishUnmarshalable(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	if err := pub.Publish("test", "event", make(chan int)); err == nil {
		t.Error("Expected marshal error")
	}
	// A failed publish does not consume a version
	_ = pub.Publish("test", "event", 1)
	pub.mu.RLock()
	version := pub.topics["test"].version
	pub.mu.RUnlock()
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
}

func TestKnownTopic(t *testing.T) {
	for _, topic := range Topics {
		if !KnownTopic(topic) {
			t.Errorf("KnownTopic(%q) = false", topic)
		}
	}
	if KnownTopic("workspace_status") {
		t.Error("KnownTopic should reject unknown topics")
	}
}

func TestWriteSSE(t *testing.T) {
	var buf strings.Builder
	err := WriteSSE(&buf, Event{Topic: TopicBusy, Type: "busy", Data: []byte(`{"busy":true}`), Version: 1})
	if err != nil {
		t.Fatalf("WriteSSE() unexpected error: %v", err)
	}
	want := "id: 1\n" + `data: {"topic":"busy","type":"busy","data":{"busy":true},"version":1}` + "\n\n"
	if buf.String() != want {
		t.Errorf("WriteSSE() = %q, want %q", buf.String(), want)
	}
}
