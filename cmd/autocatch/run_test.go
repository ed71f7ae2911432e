package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocatch/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDiscord serves the REST endpoints the poll shape uses. The first
// fetch returns only an old message; later fetches add a spawn on top.
type fakeDiscord struct {
	mu      sync.Mutex
	fetches int
	sends   []string
	auth    []string
}

func (f *fakeDiscord) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/users/@me":
			w.Write([]byte(`{"id":"7","username":"catcher"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/channels/c1":
			w.Write([]byte(`{"id":"c1","name":"spawns"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/channels/c1/messages":
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			f.fetches++
			old := `{"id":"100","channel_id":"c1","content":"hello","author":{"id":"9","username":"someone"}}`
			if f.fetches == 1 {
				w.Write([]byte("[" + old + "]"))
				return
			}
			spawn := `{"id":"101","channel_id":"c1","content":"A Rare cat has appeared! Type \"cat\" to catch it!","author":{"id":"42","username":"Cat Bot","bot":true}}`
			w.Write([]byte("[" + spawn + "," + old + "]"))
		case r.Method == http.MethodPost && r.URL.Path == "/channels/c1/messages":
			var body struct {
				Content string `json:"content"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.sends = append(f.sends, body.Content)
			w.Write([]byte(`{"id":"102"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeDiscord) snapshot() (fetches int, sends []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches, append([]string(nil), f.sends...)
}

func pollConfig(apiBase string) *config.Config {
	cfg := config.Defaults()
	cfg.Discord.APIBase = apiBase
	cfg.Discord.Token = "tok"
	cfg.Trigger.ChannelID = "c1"
	cfg.Credential.Store = "none"
	cfg.Poll.Interval = 0.01
	cfg.Dispatch.ShutdownTimeout = 5
	return cfg
}

func TestServe_PollRepliesOnceToNewSpawn(t *testing.T) {
	logger = testLogger()
	fake := &fakeDiscord{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, pollConfig(srv.URL), config.ModePoll) }()

	require.Eventually(t, func() bool {
		_, sends := fake.snapshot()
		return len(sends) == 1
	}, 3*time.Second, 5*time.Millisecond)

	// Later polls see the same spawn again; it must not be answered twice.
	fetched, _ := fake.snapshot()
	require.Eventually(t, func() bool {
		n, _ := fake.snapshot()
		return n >= fetched+3
	}, 3*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	_, sends := fake.snapshot()
	assert.Equal(t, []string{"cat"}, sends)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, a := range fake.auth {
		assert.Equal(t, "tok", a)
	}
}

func TestBuildSource_PollNeedsChannelAccess(t *testing.T) {
	logger = testLogger()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/@me" {
			w.Write([]byte(`{"id":"7","username":"catcher"}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, _, err := buildSource(context.Background(), pollConfig(srv.URL), config.ModePoll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access channel c1")
}

func TestBuildSource_RejectedTokenWithoutLogin(t *testing.T) {
	logger = testLogger()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, _, _, err := buildSource(context.Background(), pollConfig(srv.URL), config.ModePoll)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authenticate")
}
