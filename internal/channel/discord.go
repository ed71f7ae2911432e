package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"autocatch/internal/domain"
)

// Discord is the push source for Discord: a gateway connection delivering
// MESSAGE_CREATE events. It also sends replies through the same session.
type Discord struct {
	guildID string
	session *discordgo.Session
	logger  *slog.Logger
}

// DiscordConfig configures the Discord gateway source.
type DiscordConfig struct {
	Token      string
	BotAccount bool   // prefix the token with "Bot "
	GuildID    string // optional: ignore other guilds
	Logger     *slog.Logger
}

// NewDiscord creates the session without connecting.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	token := cfg.Token
	if cfg.BotAccount {
		token = "Bot " + token
	}
	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// Handlers run on the gateway reader so messages reach the bus in
	// arrival order.
	session.SyncEvents = true
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		guildID: cfg.GuildID,
		session: session,
		logger:  cfg.Logger,
	}, nil
}

func (d *Discord) Name() string { return "discord" }

// Start connects to the gateway and publishes every message until ctx is
// cancelled.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if d.guildID != "" && m.GuildID != d.guildID {
			return
		}
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		msg, ok := toInbound(m.Message, selfID, time.Now())
		if !ok {
			return
		}
		bus.Publish(msg)
	})

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	if u := d.session.State.User; u != nil {
		d.logger.Info("discord connected", "user", u.Username, "user_id", u.ID)
	}

	<-ctx.Done()
	d.logger.Info("discord disconnecting")
	return d.session.Close()
}

// Send posts content through the session's REST client.
func (d *Discord) Send(ctx context.Context, channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	return wrapDiscordErr("send message", err)
}
