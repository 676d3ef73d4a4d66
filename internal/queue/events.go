package queue

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// Event is an ephemeral provisioning progress notification. Events
// are fire-and-forget; there is no durable job-status record to
// reconcile against.
type Event struct {
	Project string    `json:"project"`
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Event stages emitted by the worker.
const (
	StageReceived = "received"
	StageCopying  = "copying"
	StageComplete = "complete"
	StageFailed   = "failed"
)

// EventPublisher broadcasts provisioning events over Redis Pub/Sub.
type EventPublisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewEventPublisher builds a publisher on an existing queue connection.
func NewEventPublisher(q *RedisQueue, channel string, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{client: q.client, channel: channel, logger: logger}
}

// Publish sends one event. Publish failures are logged, not
// propagated: progress events never fail a provisioning job.
func (p *EventPublisher) Publish(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal provisioning event", "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("publish provisioning event", "error", err, "project", event.Project)
	}
}

// EventSink receives decoded provisioning events.
type EventSink interface {
	Broadcast(project string, payload []byte)
}

// EventSubscriber pumps Pub/Sub events into a sink, typically the
// websocket hub on the API side.
type EventSubscriber struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewEventSubscriber builds a subscriber on an existing queue connection.
func NewEventSubscriber(q *RedisQueue, channel string, logger *slog.Logger) *EventSubscriber {
	return &EventSubscriber{client: q.client, channel: channel, logger: logger}
}

// Run blocks, forwarding events to the sink until ctx is done.
func (s *EventSubscriber) Run(ctx context.Context, sink EventSink) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("drop malformed provisioning event", "error", err)
				continue
			}
			sink.Broadcast(event.Project, []byte(msg.Payload))
		}
	}
}
