package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"classroom-relay/internal/app"
	"classroom-relay/internal/relay"
)

const (
	eventPrefix   = "session:"
	controlPrefix = "session-control:"
)

// ControlMessage is an operator command received for one session
type ControlMessage struct {
	SessionID string `json:"sessionId"`
	Action    string `json:"action"`
}

const ActionClose = "close"

// RedisBus publishes room lifecycle events for other services and
// listens for control commands addressed to this relay
type RedisBus struct {
	rdb   *redis.Client
	log   *slog.Logger
	queue chan relay.LifecycleEvent
}

// NewRedisBus connects to redis and verifies connectivity
func NewRedisBus(ctx context.Context, cfg app.Config, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBus{rdb: rdb, log: log, queue: make(chan relay.LifecycleEvent, 256)}, nil
}

// Record queues ev for publishing. A full queue drops the event.
func (b *RedisBus) Record(ev relay.LifecycleEvent) {
	select {
	case b.queue <- ev:
	default:
		b.log.Warn("bus.drop", "session", ev.SessionID, "kind", ev.Kind)
	}
}

// Run publishes queued events until ctx is cancelled
func (b *RedisBus) Run(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			if err := b.Publish(ctx, ev); err != nil {
				b.log.Error("bus.publish", "session", ev.SessionID, "kind", ev.Kind, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Publish sends one lifecycle event on the session's channel
func (b *RedisBus) Publish(ctx context.Context, ev relay.LifecycleEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, eventChannel(ev.SessionID), raw).Err()
}

// Subscribe listens on every session control channel and invokes fn for
// each well-formed command
func (b *RedisBus) Subscribe(ctx context.Context, fn func(ControlMessage)) {
	pubsub := b.rdb.PSubscribe(ctx, controlChannel("*"))
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
			cm, err := parseControl(msg.Channel, msg.Payload)
			if err != nil {
				b.log.Warn("bus.control", "channel", msg.Channel, "err", err)
				continue
			}
			fn(cm)
		}
	}
}

func (b *RedisBus) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

// Close shuts down the redis connection
func (b *RedisBus) Close() { _ = b.rdb.Close() }

// parseControl reads the session id from the channel name; the payload
// carries the action and defaults to close when empty
func parseControl(channel, payload string) (ControlMessage, error) {
	id := strings.TrimPrefix(channel, controlPrefix)
	if id == channel || id == "" {
		return ControlMessage{}, fmt.Errorf("not a control channel: %q", channel)
	}
	cm := ControlMessage{SessionID: id, Action: ActionClose}
	if strings.TrimSpace(payload) == "" {
		return cm, nil
	}
	if err := json.Unmarshal([]byte(payload), &cm); err != nil {
		return ControlMessage{}, fmt.Errorf("bad control payload: %w", err)
	}
	cm.SessionID = id
	if cm.Action != ActionClose {
		return ControlMessage{}, fmt.Errorf("unknown action %q", cm.Action)
	}
	return cm, nil
}

// channel namespacing for session pub/sub
func eventChannel(sessionID string) string   { return eventPrefix + sessionID }
func controlChannel(sessionID string) string { return controlPrefix + sessionID }
