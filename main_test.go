package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoopbackURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8090", "ws://127.0.0.1:8090/ws"},
		{"0.0.0.0:9000", "ws://127.0.0.1:9000/ws"},
		{"localhost:8080", "ws://localhost:8080/ws"},
	}
	for _, tt := range tests {
		got, err := loopbackURL(tt.addr)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := loopbackURL("nonsense")
	assert.Error(t, err)
}

func TestSuperviseWaitsForEveryTask(t *testing.T) {
	failure := errors.New("listen failed")
	var finished atomic.Bool

	err := supervise(context.Background(),
		func(ctx context.Context) error { return failure },
		func(ctx context.Context) error {
			<-ctx.Done()
			// Still inside a round trip when the failure lands.
			time.Sleep(50 * time.Millisecond)
			finished.Store(true)
			return ctx.Err()
		},
	)

	assert.ErrorIs(t, err, failure)
	assert.True(t, finished.Load(), "supervise returned before the slow task finished")
}

func TestSuperviseStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := supervise(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}
