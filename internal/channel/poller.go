package channel

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autocatch/internal/dispatch"
	"autocatch/internal/domain"
)

// MessageFetcher returns the newest messages of a channel, newest first.
type MessageFetcher interface {
	FetchLatest(ctx context.Context, channelID string, limit int) ([]domain.InboundMessage, error)
}

// Poller is the pull source: it fetches the latest messages on a fixed
// interval and publishes the ones newer than its watermark, oldest first.
type Poller struct {
	fetcher   MessageFetcher
	channelID string
	limit     int
	interval  time.Duration
	logger    *slog.Logger
	watermark dispatch.Watermark
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Fetcher   MessageFetcher
	ChannelID string
	Limit     int
	Interval  time.Duration
	Logger    *slog.Logger
}

func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Limit <= 0 {
		cfg.Limit = 2
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Poller{
		fetcher:   cfg.Fetcher,
		channelID: cfg.ChannelID,
		limit:     cfg.Limit,
		interval:  cfg.Interval,
		logger:    cfg.Logger,
	}
}

func (p *Poller) Name() string { return "discord-poll" }

// Start polls until ctx is cancelled. It returns ErrUnauthorized, wrapped,
// when the token stops working; every other fetch error is logged and the
// loop continues.
func (p *Poller) Start(ctx context.Context, bus domain.MessageBus) error {
	p.logger.Info("polling channel", "channel_id", p.channelID, "interval", p.interval, "limit", p.limit)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := p.poll(ctx, bus); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				p.logger.Error("token rejected while polling", "err", err)
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("poll failed", "err", err)
		}
		timer.Reset(p.interval)
	}
}

func (p *Poller) poll(ctx context.Context, bus domain.MessageBus) error {
	msgs, err := p.fetcher.FetchLatest(ctx, p.channelID, p.limit)
	if err != nil {
		return err
	}

	if !p.watermark.Primed() {
		if len(msgs) > 0 {
			p.watermark.Prime(msgs[0].ID)
			p.logger.Info("started tracking", "message_id", msgs[0].ID)
		}
		return nil
	}

	published := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if p.watermark.Advance(msgs[i].ID) {
			bus.Publish(msgs[i])
			published++
		}
	}
	if published > 0 {
		last, _ := p.watermark.Last()
		p.logger.Debug("new messages", "count", published, "last_seen", last)
	}
	return nil
}
