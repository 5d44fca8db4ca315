package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ritzau/tag-flow/pkg/logging"
)

// subscriberQueue is the per-subscriber event queue length
const subscriberQueue = 16

// Replay selects which retained events a new subscriber receives
type Replay int

const (
	ReplayNone   Replay = iota // live events only
	ReplayLatest               // the most recent retained event
	ReplayAll                  // every retained event, oldest first
)

// TopicConfig configures retention for a topic
type TopicConfig struct {
	Retain int // events kept for replay and resume
	Replay Replay
}

// topicState is everything the publisher tracks for one topic
type topicState struct {
	config   TopicConfig
	version  int
	retained []Event
	subs     map[*subscription]struct{}
}

func (t *topicState) retain(ev Event) {
	if t.config.Retain <= 0 {
		return
	}
	t.retained = append(t.retained, ev)
	t.trim()
}

func (t *topicState) trim() {
	if n := len(t.retained) - t.config.Retain; n > 0 {
		t.retained = append([]Event(nil), t.retained[n:]...)
	}
}

// backlog returns the events owed to a subscriber that last saw version since.
// since <= 0 is a fresh subscriber and gets the topic's replay policy.
// A since ahead of the topic means the client saw an earlier process; it is
// treated as fresh.
func (t *topicState) backlog(since int) []Event {
	if since > 0 && since <= t.version {
		var out []Event
		for _, ev := range t.retained {
			if ev.Version > since {
				out = append(out, ev)
			}
		}
		return out
	}

	if len(t.retained) == 0 {
		return nil
	}
	switch t.config.Replay {
	case ReplayLatest:
		return t.retained[len(t.retained)-1:]
	case ReplayAll:
		return append([]Event(nil), t.retained...)
	default:
		return nil
	}
}

// SSEPublisher fans report events out to SSE subscribers. Each topic keeps its
// recent events so a client that connects late, or reconnects with a
// Last-Event-ID, starts from the current report state.
type SSEPublisher struct {
	mu     sync.RWMutex
	topics map[string]*topicState
	closed bool
	logger *slog.Logger
}

// NewSSEPublisher creates a publisher with no topic configuration.
// Unconfigured topics retain nothing.
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{
		topics: make(map[string]*topicState),
		logger: logging.New("pubsub"),
	}
}

// NewReportPublisher creates a publisher with the report's topics configured.
// State topics replay their latest event; notifications replay the last few.
func NewReportPublisher() *SSEPublisher {
	p := NewSSEPublisher()
	for _, topic := range Topics {
		p.ConfigureTopic(topic, TopicConfig{Retain: 1, Replay: ReplayLatest})
	}
	p.ConfigureTopic(TopicNotifications, TopicConfig{Retain: 5, Replay: ReplayAll})
	return p
}

// topic returns the state for name, creating it. Caller holds p.mu.
func (p *SSEPublisher) topic(name string) *topicState {
	t, ok := p.topics[name]
	if !ok {
		t = &topicState{subs: make(map[*subscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// ConfigureTopic sets retention for a topic, trimming what it already holds
func (p *SSEPublisher) ConfigureTopic(name string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.topic(name)
	t.config = config
	t.trim()
}

// Subscribe registers a subscriber and queues its backlog before any later
// event. since is the last version the client saw, 0 if none.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string, since int) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	t := p.topic(topic)
	sub := &subscription{
		topic:     topic,
		events:    make(chan Event, subscriberQueue),
		publisher: p,
	}
	t.subs[sub] = struct{}{}

	backlog := t.backlog(since)
	for _, ev := range backlog {
		sub.offer(ev)
	}
	p.mu.Unlock()

	if len(backlog) > 0 {
		p.logger.Debug("replayed events", "topic", topic, "since", since, "count", len(backlog))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish sends an event to all subscribers of a topic
func (p *SSEPublisher) Publish(topic string, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", topic, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	t := p.topic(topic)
	t.version++
	ev := Event{Topic: topic, Type: eventType, Data: payload, Version: t.version}
	t.retain(ev)

	for sub := range t.subs {
		if sub.offer(ev) {
			p.logger.Warn("subscriber lagging, dropped oldest queued event", "topic", topic, "version", ev.Version)
		}
	}
	return nil
}

// Close shuts down the publisher and ends every subscription's event stream
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, t := range p.topics {
		for sub := range t.subs {
			close(sub.events)
		}
		t.subs = make(map[*subscription]struct{})
	}
	return nil
}

func (p *SSEPublisher) unsubscribe(sub *subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.topics[sub.topic]; ok {
		delete(t.subs, sub)
	}
}

// subscriberCount is used by tests
func (p *SSEPublisher) subscriberCount(topic string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if t, ok := p.topics[topic]; ok {
		return len(t.subs)
	}
	return 0
}

type subscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher

	mu     sync.Mutex
	closed bool
}

// offer queues ev without blocking. A full queue gives up its oldest event;
// the return value reports whether that happened. Called with the
// publisher's lock held, so offers to one subscription never interleave.
func (s *subscription) offer(ev Event) bool {
	select {
	case s.events <- ev:
		return false
	default:
	}

	select {
	case <-s.events:
	default:
	}
	select {
	case s.events <- ev:
	default:
	}
	return true
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Events() <-chan Event {
	return s.events
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.publisher.unsubscribe(s)
	return nil
}

// WriteSSE writes an event as an SSE message. The id line carries the topic
// version, which browsers send back as Last-Event-ID when they reconnect.
func WriteSSE(w io.Writer, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", event.Version, jsonData)
	return err
}
