package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestAttemptFromHeaders(t *testing.T) {
	cases := []struct {
		name    string
		headers []kafka.Header
		want    int
	}{
		{"no headers", nil, 1},
		{"valid attempt", []kafka.Header{{Key: attemptHeader, Value: []byte("3")}}, 3},
		{"garbage value", []kafka.Header{{Key: attemptHeader, Value: []byte("x")}}, 1},
		{"zero value", []kafka.Header{{Key: attemptHeader, Value: []byte("0")}}, 1},
		{"other header", []kafka.Header{{Key: "trace-id", Value: []byte("abc")}}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := attemptFromHeaders(tc.headers); got != tc.want {
				t.Fatalf("attemptFromHeaders = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRedisEnvelope_RoundTrip(t *testing.T) {
	in := redisEnvelope{
		ID:         "msg-1",
		Attempt:    2,
		EnqueuedAt: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{"id":123}`),
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out redisEnvelope
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != in.ID || out.Attempt != in.Attempt || !out.EnqueuedAt.Equal(in.EnqueuedAt) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if string(out.Payload) != `{"id":123}` {
		t.Fatalf("payload mangled: %s", out.Payload)
	}
}
