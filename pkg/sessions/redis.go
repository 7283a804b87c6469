package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session keys
const DefaultKeyPrefix = "rail:session:"

// RedisOptions configures the shared session table
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// TTL expires idle sessions; zero keeps them until logout
	TTL time.Duration
}

// Redis keeps sessions in Redis so several engine processes agree on who
// is logged in. Each session is one key under Prefix.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient connects and pings with a short timeout
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// NewRedis wraps a connected client
func NewRedis(client *redis.Client, opts RedisOptions) *Redis {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: opts.TTL}
}

func (r *Redis) key(username string) string {
	return r.prefix + username
}

// Begin opens a session atomically with SETNX
func (r *Redis) Begin(ctx context.Context, username string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(username), time.Now().UTC().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// End deletes the session key
func (r *Redis) End(ctx context.Context, username string) (bool, error) {
	n, err := r.client.Del(ctx, r.key(username)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n == 1, nil
}

// Active checks for the session key
func (r *Redis) Active(ctx context.Context, username string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(username)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

// Reset deletes every key under the prefix
func (r *Redis) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}
