package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcTransport func(ctx context.Context, req Request, match Matcher) (string, error)

func (f funcTransport) RoundTrip(ctx context.Context, req Request, match Matcher) (string, error) {
	return f(ctx, req, match)
}

func TestMatchTag(t *testing.T) {
	m := MatchTag("R_getnextinclination")

	payload, ok := m(Response{Msg: "R_getnextinclination", Content: "3,10"})
	assert.True(t, ok)
	assert.Equal(t, "3,10", payload)

	_, ok = m(Response{Msg: "R_getnextspeed", Content: "3,10"})
	assert.False(t, ok)
}

func TestNewElementDefaults(t *testing.T) {
	el := NewElement(Request{Msg: "getnextinclination"}, nil)
	assert.Equal(t, 15*time.Second, el.Timeout)
	assert.Equal(t, 3, el.Attempts)
}

func TestEnqueueFirstAttempt(t *testing.T) {
	calls := 0
	tr := funcTransport(func(ctx context.Context, req Request, match Matcher) (string, error) {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		payload, _ := match(Response{Msg: "R_" + req.Msg, Content: "4,1"})
		return payload, nil
	})

	el := NewElement(Request{Msg: "getnextinclination"}, nil)
	payload, err := el.Enqueue(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "4,1", payload)
	assert.Equal(t, 1, calls)
}

func TestEnqueueRetriesUntilSuccess(t *testing.T) {
	calls := 0
	tr := funcTransport(func(ctx context.Context, req Request, match Matcher) (string, error) {
		calls++
		if calls < 3 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "1,1", nil
	})

	el := &Element{Request: Request{Msg: "getnextinclination"}, Timeout: 10 * time.Millisecond, Attempts: 3}
	payload, err := el.Enqueue(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, "1,1", payload)
	assert.Equal(t, 3, calls)
}

func TestEnqueueClassifiesTimeout(t *testing.T) {
	tr := funcTransport(func(ctx context.Context, req Request, match Matcher) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	el := &Element{Request: Request{Msg: "getnextinclination"}, Timeout: 5 * time.Millisecond, Attempts: 2}
	start := time.Now()
	_, err := el.Enqueue(context.Background(), tr)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEnqueueClassifiesTransport(t *testing.T) {
	calls := 0
	tr := funcTransport(func(ctx context.Context, req Request, match Matcher) (string, error) {
		calls++
		return "", errors.New("broken pipe")
	})

	el := &Element{Request: Request{Msg: "getnextinclination"}, Timeout: time.Second, Attempts: 3}
	_, err := el.Enqueue(context.Background(), tr)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 3, calls)
}

func TestEnqueueStopsOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	tr := funcTransport(func(c context.Context, req Request, match Matcher) (string, error) {
		calls++
		cancel()
		<-c.Done()
		return "", c.Err()
	})

	el := &Element{Request: Request{Msg: "getnextinclination"}, Timeout: time.Second, Attempts: 3}
	_, err := el.Enqueue(ctx, tr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	data, err := encodeFrame(envelope{Msg: "getnextinclination", ReplyTo: "inclination:replies:1"})
	require.NoError(t, err)

	req, replyTo, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "getnextinclination", req.Msg)
	assert.Equal(t, "inclination:replies:1", replyTo)

	_, _, err = DecodeEnvelope([]byte(`{"msg":"getnextinclination"}`))
	assert.Error(t, err)
}

func TestResponseFrame(t *testing.T) {
	data, err := EncodeResponse(Response{Msg: "R_getnextinclination", Content: "3,10,2,-5"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":"R_getnextinclination","content":"3,10,2,-5"}`, string(data))

	resp, err := decodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, "3,10,2,-5", resp.Content)

	_, err = decodeResponse([]byte("not json"))
	assert.Error(t, err)
}
