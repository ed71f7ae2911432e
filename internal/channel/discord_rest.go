package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"autocatch/internal/domain"
)

const (
	defaultDiscordAPI = "https://discord.com/api/v10"
	discordUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxErrorBody      = 512
	opLogin           = "login"
)

// DiscordREST talks to the Discord HTTP API directly. It serves the poll
// shape as message fetcher and responder, and the credential manager as
// authenticator.
type DiscordREST struct {
	base       string
	client     *http.Client
	botAccount bool
	logger     *slog.Logger

	mu     sync.RWMutex
	token  string
	selfID string
}

// DiscordRESTConfig configures a DiscordREST client.
type DiscordRESTConfig struct {
	APIBase    string
	Token      string
	BotAccount bool
	Client     *http.Client
	Logger     *slog.Logger
}

// NewDiscordREST creates a REST client. The token may be set later with
// SetToken once a credential is acquired.
func NewDiscordREST(cfg DiscordRESTConfig) *DiscordREST {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultDiscordAPI
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(5 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &DiscordREST{
		base:       strings.TrimRight(cfg.APIBase, "/"),
		client:     cfg.Client,
		botAccount: cfg.BotAccount,
		logger:     cfg.Logger,
		token:      cfg.Token,
	}
}

// SetToken replaces the token used for subsequent requests.
func (d *DiscordREST) SetToken(token string) {
	d.mu.Lock()
	d.token = token
	d.mu.Unlock()
}

// SetSelfID records the account id so fetched messages can be marked as
// self-authored.
func (d *DiscordREST) SetSelfID(id string) {
	d.mu.Lock()
	d.selfID = id
	d.mu.Unlock()
}

func (d *DiscordREST) authHeader(token string) string {
	if d.botAccount && !strings.HasPrefix(token, "Bot ") {
		return "Bot " + token
	}
	return token
}

// Authenticate exchanges a login and password for a token.
func (d *DiscordREST) Authenticate(ctx context.Context, login, password string) (string, error) {
	body := map[string]any{
		"login":    login,
		"password": password,
		"undelete": false,
	}
	var resp struct {
		Token  string `json:"token"`
		MFA    bool   `json:"mfa"`
		Ticket string `json:"ticket"`
	}
	if err := d.do(ctx, opLogin, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		if resp.MFA {
			return "", fmt.Errorf("login: %w: account requires multi-factor authentication; supply USER_TOKEN instead", ErrUnauthorized)
		}
		return "", fmt.Errorf("login: response did not include a token")
	}
	return resp.Token, nil
}

// Validate resolves the account a token belongs to.
func (d *DiscordREST) Validate(ctx context.Context, token string) (domain.Identity, error) {
	var u discordgo.User
	if err := d.do(ctx, "validate token", http.MethodGet, "/users/@me", token, nil, &u); err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{ID: u.ID, Username: u.Username}, nil
}

// Channel fetches channel metadata; it doubles as an access check.
func (d *DiscordREST) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	var ch discordgo.Channel
	path := "/channels/" + url.PathEscape(channelID)
	if err := d.do(ctx, "get channel", http.MethodGet, path, d.currentToken(), nil, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// FetchLatest returns up to limit of the newest messages, newest first.
// Messages with an unparseable id or no author are dropped.
func (d *DiscordREST) FetchLatest(ctx context.Context, channelID string, limit int) ([]domain.InboundMessage, error) {
	var raw []*discordgo.Message
	path := "/channels/" + url.PathEscape(channelID) + "/messages?limit=" + strconv.Itoa(limit)
	if err := d.do(ctx, "fetch messages", http.MethodGet, path, d.currentToken(), nil, &raw); err != nil {
		return nil, err
	}

	d.mu.RLock()
	selfID := d.selfID
	d.mu.RUnlock()

	now := time.Now()
	out := make([]domain.InboundMessage, 0, len(raw))
	for _, m := range raw {
		if msg, ok := toInbound(m, selfID, now); ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Send posts content into a channel.
func (d *DiscordREST) Send(ctx context.Context, channelID, content string) error {
	body := map[string]any{"content": content, "tts": false}
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	return d.do(ctx, "send message", http.MethodPost, path, d.currentToken(), body, nil)
}

func (d *DiscordREST) currentToken() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.token
}

func (d *DiscordREST) do(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.base+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("User-Agent", discordUserAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", d.authHeader(token))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// toInbound converts a discordgo message. ok is false when the message
// cannot be ordered or attributed.
func toInbound(m *discordgo.Message, selfID string, received time.Time) (domain.InboundMessage, bool) {
	if m == nil || m.Author == nil {
		return domain.InboundMessage{}, false
	}
	id, err := strconv.ParseUint(m.ID, 10, 64)
	if err != nil {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		ID:          id,
		Platform:    "discord",
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		AuthorIsBot: m.Author.Bot,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		Text:        m.Content,
		IsSelf:      selfID != "" && m.Author.ID == selfID,
		ReceivedAt:  received,
	}, true
}
