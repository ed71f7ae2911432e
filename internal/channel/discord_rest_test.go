package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocatch/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestREST(t *testing.T, handler http.HandlerFunc) *DiscordREST {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDiscordREST(DiscordRESTConfig{
		APIBase: srv.URL,
		Token:   "user-token",
		Client:  srv.Client(),
		Logger:  testLogger(),
	})
}

func TestDiscordREST_FetchLatest(t *testing.T) {
	rest := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/555/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "user-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(`[
			{"id":"1002","channel_id":"555","content":"newest","author":{"id":"7","username":"me"}},
			{"id":"1001","channel_id":"555","content":"A Rare cat","author":{"id":"42","username":"Cat Bot","bot":true}},
			{"id":"oops","channel_id":"555","content":"bad id","author":{"id":"9"}}
		]`))
	})
	rest.SetSelfID("7")

	msgs, err := rest.FetchLatest(context.Background(), "555", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.EqualValues(t, 1002, msgs[0].ID)
	assert.True(t, msgs[0].IsSelf)

	assert.EqualValues(t, 1001, msgs[1].ID)
	assert.Equal(t, "Cat Bot", msgs[1].AuthorName)
	assert.True(t, msgs[1].AuthorIsBot)
	assert.False(t, msgs[1].IsSelf)
	assert.Equal(t, "discord", msgs[1].Platform)
}

func TestDiscordREST_Send(t *testing.T) {
	var got map[string]any
	rest := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/channels/555/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"id":"1"}`))
	})

	require.NoError(t, rest.Send(context.Background(), "555", "cat"))
	assert.Equal(t, "cat", got["content"])
	assert.Equal(t, false, got["tts"])
}

func TestDiscordREST_Unauthorized(t *testing.T) {
	rest := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "401: Unauthorized", "code": 0}`))
	})

	_, err := rest.FetchLatest(context.Background(), "555", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrRateLimited)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, err.Error(), "fetch messages")
}

func TestDiscordREST_Authenticate(t *testing.T) {
	rest := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["login"] == "me@example.com" && body["password"] == "pw" {
			w.Write([]byte(`{"token":"fresh","user_id":"7"}`))
			return
		}
		if body["login"] == "busy@example.com" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid Form Body"}`))
	})

	token, err := rest.Authenticate(context.Background(), "me@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)

	_, err = rest.Authenticate(context.Background(), "busy@example.com", "pw")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized, "429 is transient")

	_, err = rest.Authenticate(context.Background(), "me@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDiscordREST_AuthenticateMFA(t *testing.T) {
	rest := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token":null,"mfa":true,"ticket":"abc"}`))
	})
	_, err := rest.Authenticate(context.Background(), "me@example.com", "pw")
	assert.ErrorContains(t, err, "multi-factor")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestDiscordREST_ValidateAndChannel(t *testing.T) {
	rest := newTestREST(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/@me":
			if r.Header.Get("Authorization") != "good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":"7","username":"catcher"}`))
		case "/channels/555":
			w.Write([]byte(`{"id":"555","name":"spawns"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	id, err := rest.Validate(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "7", id.ID)
	assert.Equal(t, "catcher", id.Username)

	_, err = rest.Validate(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrUnauthorized)

	rest.SetToken("good")
	ch, err := rest.Channel(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, "spawns", ch.Name)

	_, err = rest.Channel(context.Background(), "404")
	assert.ErrorContains(t, err, "HTTP 404")
}

func TestDiscordREST_BotAccountPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bot abc", r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	rest := NewDiscordREST(DiscordRESTConfig{APIBase: srv.URL + "/", Token: "abc", BotAccount: true, Client: srv.Client()})
	msgs, err := rest.FetchLatest(context.Background(), "1", 2)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestToInbound(t *testing.T) {
	now := time.Now()

	_, ok := toInbound(nil, "", now)
	assert.False(t, ok)

	_, ok = toInbound(&discordgo.Message{ID: "1"}, "", now)
	assert.False(t, ok, "no author")

	msg, ok := toInbound(&discordgo.Message{
		ID:        "1200000000000000001",
		ChannelID: "c",
		GuildID:   "g",
		Content:   "hi",
		Author:    &discordgo.User{ID: "42", Username: "Cat Bot", Bot: true},
	}, "", now)
	require.True(t, ok)
	assert.EqualValues(t, uint64(1200000000000000001), msg.ID)
	assert.Equal(t, "g", msg.GuildID)
	assert.False(t, msg.IsSelf, "empty self id never matches")
}

func TestWrapDiscordErr(t *testing.T) {
	assert.NoError(t, wrapDiscordErr("send", nil))

	restErr := &discordgo.RESTError{
		Response:     &http.Response{StatusCode: http.StatusUnauthorized},
		ResponseBody: []byte("nope"),
	}
	err := wrapDiscordErr("send message", restErr)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "send message: HTTP 401: nope")

	plain := wrapDiscordErr("send message", context.DeadlineExceeded)
	assert.ErrorIs(t, plain, context.DeadlineExceeded)
}
