package backend

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jwatral/qdomyos-zwift/src/queue"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	CommandNextInclination = "getnextinclination"
	errorTag               = "R_error"
)

// Backend answers inclination commands from a Profile.
type Backend struct {
	profile *Profile
	log     zerolog.Logger
}

func New(profile *Profile, log zerolog.Logger) *Backend {
	return &Backend{
		profile: profile,
		log:     log.With().Str("component", "backend").Logger(),
	}
}

// Answer returns the response for req.
func (b *Backend) Answer(req queue.Request) queue.Response {
	switch req.Msg {
	case CommandNextInclination:
		return queue.Response{Msg: queue.ResponseTag(req.Msg), Content: b.profile.Next()}
	default:
		b.log.Warn().Str("msg", req.Msg).Msg("unknown command")
		return queue.Response{Msg: errorTag, Content: "unknown command " + req.Msg}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler serves the backend over websocket, one response per request frame.
func (b *Backend) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		b.log.Debug().Str("remote", r.RemoteAddr).Msg("client connected")
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					b.log.Debug().Err(err).Msg("client connection lost")
				}
				return
			}
			req, err := queue.DecodeRequest(data)
			if err != nil {
				b.log.Warn().Err(err).Msg("dropping undecodable request")
				continue
			}
			frame, err := queue.EncodeResponse(b.Answer(req))
			if err != nil {
				b.log.Error().Err(err).Msg("failed to encode response")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				b.log.Debug().Err(err).Msg("client write failed")
				return
			}
		}
	})
}

// RedisResponder answers envelopes pushed on a redis request list.
type RedisResponder struct {
	backend      *Backend
	client       *redis.Client
	requestQueue string
}

func (b *Backend) RedisResponder(client *redis.Client, requestQueue string) *RedisResponder {
	if requestQueue == "" {
		requestQueue = queue.DefaultRequestQueue
	}
	return &RedisResponder{backend: b, client: client, requestQueue: requestQueue}
}

// Serve pops requests until ctx is cancelled.
func (r *RedisResponder) Serve(ctx context.Context) error {
	log := r.backend.log
	for {
		res, err := r.client.BLPop(ctx, time.Second, r.requestQueue).Result()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			log.Error().Err(err).Msg("failed to pop request")
			if err := sleep(ctx, time.Second); err != nil {
				return err
			}
			continue
		}

		req, replyTo, err := queue.DecodeEnvelope([]byte(res[1]))
		if err != nil {
			log.Warn().Err(err).Msg("dropping undecodable envelope")
			continue
		}
		frame, err := queue.EncodeResponse(r.backend.Answer(req))
		if err != nil {
			log.Error().Err(err).Msg("failed to encode response")
			continue
		}
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, replyTo, frame)
			pipe.Expire(ctx, replyTo, queue.ReplyTTL)
			return nil
		})
		if err != nil {
			log.Error().Err(err).Str("reply_to", replyTo).Msg("failed to push reply")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
