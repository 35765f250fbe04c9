// Package capture keeps a short feed of recent observations in Redis so
// another process can read or subscribe to them.
package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/HanTheDev/payload-listener/internal/models"
)

const (
	DefaultKey        = "payload-listener:observations"
	DefaultMaxEntries = 100
)

type RedisOptions struct {
	// Key is the list holding the newest observations first.
	Key string
	// Channel, when set, also receives every observation via PUBLISH.
	Channel    string
	MaxEntries int64
}

type RedisRecorder struct {
	client *redis.Client
	opts   RedisOptions
}

func NewRedisRecorder(redisURL string, opts RedisOptions) (*RedisRecorder, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}

	return &RedisRecorder{client: redis.NewClient(opt), opts: opts}, nil
}

// Ping checks the connection.
func (r *RedisRecorder) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRecorder) Record(ctx context.Context, obs *models.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("encode observation: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.opts.Key, payload)
		pipe.LTrim(ctx, r.opts.Key, 0, r.opts.MaxEntries-1)
		if r.opts.Channel != "" {
			pipe.Publish(ctx, r.opts.Channel, payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push observation to %s: %w", r.opts.Key, err)
	}
	return nil
}

// Recent returns up to n observations, newest first.
func (r *RedisRecorder) Recent(ctx context.Context, n int64) ([]*models.Observation, error) {
	if n <= 0 {
		return nil, nil
	}

	raw, err := r.client.LRange(ctx, r.opts.Key, 0, n-1).Result()
	if err != nil {
		return nil, err
	}

	observations := make([]*models.Observation, 0, len(raw))
	for _, item := range raw {
		var obs models.Observation
		if err := json.Unmarshal([]byte(item), &obs); err != nil {
			return nil, fmt.Errorf("decode observation: %w", err)
		}
		observations = append(observations, &obs)
	}
	return observations, nil
}

// Subscribe streams observations published on the configured channel.
func (r *RedisRecorder) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	if r.opts.Channel == "" {
		return nil, fmt.Errorf("no channel configured")
	}
	sub := r.client.Subscribe(ctx, r.opts.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
