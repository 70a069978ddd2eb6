package stream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	settingsKey   = "stream:settings"
	viewersKey    = "stream:viewers"
	maxViewersKey = "stream:viewers:max"
)

// incScript bumps the viewer counter and keeps the high-water mark in the
// same round trip.
var incScript = redis.NewScript(`
local v = redis.call("INCR", KEYS[1])
local m = tonumber(redis.call("GET", KEYS[2]) or "0")
if v > m then
	redis.call("SET", KEYS[2], v)
end
return v
`)

// decScript lowers the viewer counter without ever letting it go negative.
// A plain DECR under concurrent disconnects can undershoot; the script
// clamps atomically.
var decScript = redis.NewScript(`
local v = redis.call("DECR", KEYS[1])
if v < 0 then
	redis.call("SET", KEYS[1], 0)
	v = 0
end
return v
`)

// Redis is the Service implementation backed by the shared redis instance
// the stream configuration service writes to.
type Redis struct {
	client *redis.Client
}

var _ Service = (*Redis)(nil)

// NewRedis connects to redis and seeds default settings if none exist.
func NewRedis(ctx context.Context, addr, password string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	r := &Redis{client: client}
	exists, err := client.Exists(ctx, settingsKey).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("check settings key: %w", err)
	}
	if exists == 0 {
		if err := r.UpdateSettings(ctx, DefaultSettings()); err != nil {
			client.Close()
			return nil, err
		}
	}
	return r, nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Settings(ctx context.Context) (Settings, error) {
	fields, err := r.client.HGetAll(ctx, settingsKey).Result()
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if len(fields) == 0 {
		return DefaultSettings(), nil
	}

	delaySeconds, _ := strconv.Atoi(fields["slow_mode_delay_seconds"])
	return Settings{
		ChatEnabled:      fields["chat_enabled"] == "1",
		AllowGuests:      fields["allow_guests"] == "1",
		ModerateMessages: fields["moderate_messages"] == "1",
		SlowMode:         fields["slow_mode"] == "1",
		SlowModeDelay:    time.Duration(delaySeconds) * time.Second,
	}, nil
}

func (r *Redis) UpdateSettings(ctx context.Context, s Settings) error {
	err := r.client.HSet(ctx, settingsKey,
		"chat_enabled", boolField(s.ChatEnabled),
		"allow_guests", boolField(s.AllowGuests),
		"moderate_messages", boolField(s.ModerateMessages),
		"slow_mode", boolField(s.SlowMode),
		"slow_mode_delay_seconds", int(s.SlowModeDelay/time.Second),
	).Err()
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func (r *Redis) IncViewers(ctx context.Context) (int64, error) {
	n, err := incScript.Run(ctx, r.client, []string{viewersKey, maxViewersKey}).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment viewers: %w", err)
	}
	return n, nil
}

func (r *Redis) DecViewers(ctx context.Context) (int64, error) {
	n, err := decScript.Run(ctx, r.client, []string{viewersKey}).Int64()
	if err != nil {
		return 0, fmt.Errorf("decrement viewers: %w", err)
	}
	return n, nil
}

func (r *Redis) Counts(ctx context.Context) (Counts, error) {
	pipe := r.client.MGet(ctx, viewersKey, maxViewersKey)
	values, err := pipe.Result()
	if err != nil {
		return Counts{}, fmt.Errorf("read viewer counts: %w", err)
	}

	var counts Counts
	counts.Viewers = parseCount(values[0])
	counts.MaxViewers = parseCount(values[1])
	return counts, nil
}

func parseCount(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
