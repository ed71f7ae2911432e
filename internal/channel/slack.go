package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"autocatch/internal/domain"
)

// Slack is the push source for Slack using Socket Mode. It also sends
// replies with the bot token.
type Slack struct {
	client *slack.Client
	logger *slog.Logger

	userID string // the app's own user id
	botID  string // the app's own bot id
}

// SlackConfig configures the Slack source.
type SlackConfig struct {
	BotToken string
	AppToken string
	Logger   *slog.Logger
}

func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Slack{
		client: slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken)),
		logger: cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects via Socket Mode and publishes channel messages until ctx is
// cancelled.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	auth, err := s.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.userID, s.botID = auth.UserID, auth.BotID
	s.logger.Info("slack connected", "user", auth.User, "user_id", auth.UserID, "team", auth.Team)

	socket := socketmode.New(s.client)

	errCh := make(chan error, 1)
	go func() {
		errCh <- socket.RunContext(ctx)
	}()

	if err := s.pump(ctx, socket.Events, errCh, socket.Ack, bus); err != nil {
		return fmt.Errorf("slack socket mode: %w", err)
	}
	return nil
}

// pump handles socket events in arrival order until ctx is cancelled or the
// socket stops. After cancellation it waits for the socket runner to return.
func (s *Slack) pump(ctx context.Context, events <-chan socketmode.Event, errCh <-chan error,
	ack func(socketmode.Request, ...any), bus domain.MessageBus) error {
	for {
		select {
		case evt := <-events:
			s.handle(evt, ack, bus)
		case err := <-errCh:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case <-ctx.Done():
			s.logger.Info("slack disconnecting")
			<-errCh
			return nil
		}
	}
}

func (s *Slack) handle(evt socketmode.Event, ack func(socketmode.Request, ...any), bus domain.MessageBus) {
	if evt.Request != nil {
		ack(*evt.Request)
	}
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	event, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok || event.Type != slackevents.CallbackEvent {
		return
	}
	if ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		if msg, ok := s.toInbound(ev, time.Now()); ok {
			bus.Publish(msg)
		}
	}
}

// Send posts content as the app.
func (s *Slack) Send(ctx context.Context, channelID, content string) error {
	_, _, err := s.client.PostMessageContext(ctx, channelID, slack.MsgOptionText(content, false))
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

// toInbound keeps plain and bot-posted messages; edits, joins and other
// subtypes are dropped.
func (s *Slack) toInbound(ev *slackevents.MessageEvent, received time.Time) (domain.InboundMessage, bool) {
	if ev.SubType != "" && ev.SubType != "bot_message" {
		return domain.InboundMessage{}, false
	}
	id, err := parseSlackTS(ev.TimeStamp)
	if err != nil {
		return domain.InboundMessage{}, false
	}

	authorID := ev.User
	if authorID == "" {
		authorID = ev.BotID
	}
	name := ev.Username
	if name == "" && ev.Message != nil {
		name = ev.Message.Username
	}
	isSelf := (s.userID != "" && ev.User == s.userID) || (s.botID != "" && ev.BotID == s.botID)

	return domain.InboundMessage{
		ID:          id,
		Platform:    "slack",
		AuthorID:    authorID,
		AuthorName:  name,
		AuthorIsBot: ev.BotID != "",
		ChannelID:   ev.Channel,
		GuildID:     ev.SourceTeam,
		Text:        ev.Text,
		IsSelf:      isSelf,
		ReceivedAt:  received,
	}, true
}

// parseSlackTS converts "1700000000.123456" into microseconds since the
// epoch, which orders messages within a channel.
func parseSlackTS(ts string) (uint64, error) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseUint(sec, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("slack ts %q: %w", ts, err)
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	frac += strings.Repeat("0", 6-len(frac))
	us, err := strconv.ParseUint(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("slack ts %q: %w", ts, err)
	}
	return s*1_000_000 + us, nil
}
