package queue

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Request is the outbound command frame, e.g. {"msg":"getnextinclination"}.
type Request struct {
	Msg string `json:"msg"`
}

// Response is an inbound frame. Content carries the payload for Msg.
type Response struct {
	Msg     string `json:"msg"`
	Content string `json:"content,omitempty"`
}

// Matcher picks the payload out of a response, or reports no match.
type Matcher func(Response) (string, bool)

// MatchTag accepts only responses tagged tag and extracts their content.
func MatchTag(tag string) Matcher {
	return func(r Response) (string, bool) {
		if r.Msg != tag {
			return "", false
		}
		return r.Content, true
	}
}

// ResponseTag is the tag a backend answers command with.
func ResponseTag(command string) string {
	return "R_" + command
}

// envelope is the frame pushed onto a redis request list.
type envelope struct {
	Msg     string `json:"msg"`
	ReplyTo string `json:"reply_to"`
}

func encodeFrame(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

func decodeResponse(data []byte) (Response, error) {
	var r Response
	if err := sonic.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return r, nil
}

// DecodeRequest parses a request frame. Backends use it to read commands.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := sonic.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return r, nil
}

// EncodeResponse renders a response frame. Backends use it to answer.
func EncodeResponse(r Response) ([]byte, error) {
	return encodeFrame(r)
}

// DecodeEnvelope parses a redis request envelope into the request and the list
// the reply must be pushed to.
func DecodeEnvelope(data []byte) (Request, string, error) {
	var e envelope
	if err := sonic.Unmarshal(data, &e); err != nil {
		return Request{}, "", fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if e.ReplyTo == "" {
		return Request{}, "", fmt.Errorf("envelope for %q has no reply_to", e.Msg)
	}
	return Request{Msg: e.Msg}, e.ReplyTo, nil
}
