package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const relayPublishTimeout = 2 * time.Second

// RedisRelay mirrors room events between service instances over a Redis
// pub/sub channel. Each instance drops its own echoes.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	instance string
	manager  *WSManager
	log      zerolog.Logger
}

var _ Relay = (*RedisRelay)(nil)

type relayEnvelope struct {
	Instance string          `json:"instance"`
	Room     string          `json:"room"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
}

// NewRedisRelay connects to url and checks the server is reachable.
func NewRedisRelay(ctx context.Context, url, channel string, manager *WSManager, log zerolog.Logger) (*RedisRelay, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return newRedisRelay(client, channel, manager, log), nil
}

func newRedisRelay(client *redis.Client, channel string, manager *WSManager, log zerolog.Logger) *RedisRelay {
	instance := uuid.NewString()
	return &RedisRelay{
		client:   client,
		channel:  channel,
		instance: instance,
		manager:  manager,
		log:      log.With().Str("component", "redis_relay").Str("instance", instance).Logger(),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, room, event string, payload []byte) error {
	data, err := json.Marshal(relayEnvelope{
		Instance: r.instance,
		Room:     room,
		Event:    event,
		Payload:  payload,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run delivers events published by other instances until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	r.log.Info().Str("channel", r.channel).Msg("relay subscribed")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(data string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		r.log.Warn().Err(err).Msg("malformed relay message")
		return
	}
	if env.Instance == r.instance {
		return
	}
	r.manager.EmitLocal(env.Room, env.Event, env.Payload)
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
