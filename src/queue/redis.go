package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultRequestQueue = "inclination:requests"
	replyPrefix         = "inclination:replies:"
	// ReplyTTL bounds how long an unread reply list survives.
	ReplyTTL = time.Minute
)

// RedisTransport sends requests as envelopes pushed on a shared request list
// and waits for the answer on a reply list private to the request.
type RedisTransport struct {
	client       *redis.Client
	requestQueue string
	log          zerolog.Logger
}

// NewRedisTransport connects to redisURL and checks the connection.
func NewRedisTransport(ctx context.Context, redisURL, requestQueue string, log zerolog.Logger) (*RedisTransport, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL environment variable is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisTransportFromClient(client, requestQueue, log), nil
}

// NewRedisTransportFromClient wraps an existing client.
func NewRedisTransportFromClient(client *redis.Client, requestQueue string, log zerolog.Logger) *RedisTransport {
	if requestQueue == "" {
		requestQueue = DefaultRequestQueue
	}
	return &RedisTransport{
		client:       client,
		requestQueue: requestQueue,
		log:          log.With().Str("transport", "redis").Logger(),
	}
}

// RoundTrip pushes req and blocks on its reply list until match accepts a
// reply or ctx ends.
func (r *RedisTransport) RoundTrip(ctx context.Context, req Request, match Matcher) (string, error) {
	replyTo := replyPrefix + uuid.NewString()
	frame, err := encodeFrame(envelope{Msg: req.Msg, ReplyTo: replyTo})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}

	defer r.cleanup(ctx, replyTo)

	if err := r.client.RPush(ctx, r.requestQueue, frame).Err(); err != nil {
		return "", classify(ctx, fmt.Errorf("push %q: %w", req.Msg, err))
	}

	for {
		result, err := r.client.BLPop(ctx, r.wait(ctx), replyTo).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return "", fmt.Errorf("%w: no reply for %q", ErrTimeout, req.Msg)
				}
				continue
			}
			return "", classify(ctx, fmt.Errorf("wait for %q: %w", req.Msg, err))
		}
		// BLPOP answers [key, value].
		if len(result) != 2 {
			return "", fmt.Errorf("%w: unexpected BLPOP reply %v", ErrTransport, result)
		}
		resp, err := decodeResponse([]byte(result[1]))
		if err != nil {
			r.log.Debug().Err(err).Msg("skipping undecodable reply")
			continue
		}
		if payload, ok := match(resp); ok {
			return payload, nil
		}
		r.log.Debug().Str("msg", resp.Msg).Msg("skipping unmatched reply")
	}
}

// wait is the BLPOP timeout: what is left of ctx, or zero to block until ctx
// itself gives up.
func (r *RedisTransport) wait(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	left := time.Until(deadline)
	if left < time.Second {
		// Redis BLPOP timeouts have a one second granularity in go-redis.
		return time.Second
	}
	return left
}

func (r *RedisTransport) cleanup(ctx context.Context, replyTo string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := r.client.Del(ctx, replyTo).Err(); err != nil {
		r.log.Debug().Err(err).Str("key", replyTo).Msg("failed to delete reply list")
	}
}

// Client exposes the underlying client, used by backends sharing the connection.
func (r *RedisTransport) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisTransport) Close() error {
	return r.client.Close()
}

// Ping tests Redis connection
func (r *RedisTransport) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
