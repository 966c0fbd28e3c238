package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeUpstream struct {
	mu       sync.Mutex
	statuses []int // statuses to return, in order; last repeats
	calls    int
	requests []map[string]any
}

func (f *fakeUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.requests = append(f.requests, body)
		idx := f.calls
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		}
		status := f.statuses[idx]
		f.calls++
		f.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "  a reply  "}},
			},
		})
	}
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestClient(t *testing.T, upstream *fakeUpstream) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(upstream.handler())
	t.Cleanup(srv.Close)

	var slept []time.Duration
	c := New(Config{
		APIKey:   "test-key",
		Model:    "test-model",
		Endpoint: srv.URL,
		Sleep:    func(d time.Duration) { slept = append(slept, d) },
	})
	return c, &slept
}

func TestRespond_Success(t *testing.T) {
	upstream := &fakeUpstream{statuses: []int{http.StatusOK}}
	c, slept := newTestClient(t, upstream)

	got := c.Respond(context.Background(), "be terse", "hi")

	require.Equal(t, "a reply", got)
	require.Equal(t, 1, upstream.callCount())
	require.Empty(t, *slept)

	// The request carries the prompt as the system turn and caps length.
	req := upstream.requests[0]
	require.Equal(t, "test-model", req["model"])
	require.Equal(t, float64(maxReplyTokens), req["max_tokens"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, map[string]any{"role": "system", "content": "be terse"}, msgs[0])
	require.Equal(t, map[string]any{"role": "user", "content": "hi"}, msgs[1])
}

func TestRespond_RetriesThroughRateLimits(t *testing.T) {
	upstream := &fakeUpstream{statuses: []int{
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
		http.StatusOK,
	}}
	c, slept := newTestClient(t, upstream)

	got := c.Respond(context.Background(), "p", "m")

	require.Equal(t, "a reply", got)
	require.Equal(t, 3, upstream.callCount())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestRespond_ExhaustsRetryBudget(t *testing.T) {
	upstream := &fakeUpstream{statuses: []int{http.StatusTooManyRequests}}
	c, slept := newTestClient(t, upstream)

	got := c.Respond(context.Background(), "p", "m")

	require.Equal(t, FallbackBusy, got)
	require.Equal(t, 3, upstream.callCount())
	// Two sleeps: no backoff after the final attempt.
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestRespond_NonRetryableErrorFailsFast(t *testing.T) {
	upstream := &fakeUpstream{statuses: []int{http.StatusInternalServerError}}
	c, slept := newTestClient(t, upstream)

	got := c.Respond(context.Background(), "p", "m")

	require.Equal(t, FallbackError, got)
	require.Equal(t, 1, upstream.callCount())
	require.Empty(t, *slept)
}

func TestRespond_EmptyChoicesIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "k", Model: "m", Endpoint: srv.URL})
	require.Equal(t, FallbackError, c.Respond(context.Background(), "p", "m"))
}
