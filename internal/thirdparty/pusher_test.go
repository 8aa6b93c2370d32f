package thirdparty

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPusher(secret string) *Pusher {
	p := NewPusher(nil, "key", secret)
	p.Backoff = []time.Duration{time.Millisecond}
	return p
}

func TestPusher_SendJSON_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") == "key" && r.Header.Get("X-Signature") != "" {
			w.WriteHeader(200)
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		w.WriteHeader(401)
	}))
	defer ts.Close()

	p := NewPusher(nil, "key", "secret")
	code, body, err := p.SendJSON(context.Background(), ts.URL+"/hook", map[string]any{"x": 1})
	if err != nil || code != 200 {
		t.Fatalf("unexpected: code=%d err=%v", code, err)
	}
	if string(body) == "" {
		t.Fatalf("empty body")
	}
}

func TestPusher_RetriesWithFullBody(t *testing.T) {
	srv := NewMockWebhookServer(t, "secret", 503, 502)
	p := fastPusher("secret")

	ev := NewEvent(EventStripOnline, "desk", time.Time{}, map[string]any{"host": "10.0.0.7"})
	code, _, err := p.SendJSON(context.Background(), srv.URL+"/hook", ev)
	require.NoError(t, err)
	assert.Equal(t, 200, code)
	assert.Equal(t, 3, srv.Calls())
	require.Len(t, srv.Events(), 1)
	assert.Equal(t, ev.EventID, srv.Events()[0].EventID)
}

func TestPusher_ClientErrorNotRetried(t *testing.T) {
	srv := NewMockWebhookServer(t, "secret", 422)
	p := fastPusher("secret")

	code, _, err := p.SendJSON(context.Background(), srv.URL+"/hook", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 422, code)
	assert.Equal(t, 1, srv.Calls())
}

func TestPusher_WrongSecret(t *testing.T) {
	srv := NewMockWebhookServer(t, "secret")
	code, _, err := fastPusher("other").SendJSON(context.Background(), srv.URL+"/hook", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestPusher_ServerErrorExhausted(t *testing.T) {
	srv := NewMockWebhookServer(t, "secret", 500, 500, 500, 500)
	_, _, err := fastPusher("secret").SendJSON(context.Background(), srv.URL+"/hook", map[string]any{})
	assert.Error(t, err)
	assert.Equal(t, 4, srv.Calls())
}
