package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autocatch/internal/bus"
	"autocatch/internal/channel"
	"autocatch/internal/config"
	"autocatch/internal/credential"
	"autocatch/internal/dispatch"
	"autocatch/internal/domain"
	"autocatch/internal/metrics"
	"autocatch/internal/monitor"
)

const inboundBuffer = 100

// run starts one source in the given mode and dispatches its messages until
// a signal arrives or the source fails.
func run(mode config.Mode) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.RequireFor(mode); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, mode)
}

// serve assembles the source, dispatcher and monitor for cfg and runs them
// until ctx is cancelled or the source fails. Pending sends are given
// dispatch.shutdown_timeout to finish.
func serve(ctx context.Context, cfg *config.Config, mode config.Mode) error {
	global, table, err := cfg.Policies()
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	source, responder, cleanup, err := buildSource(ctx, cfg, mode)
	if err != nil {
		return err
	}
	defer cleanup()

	events := bus.NewEventBus(logger)
	metrics.Subscribe(metrics.Collector, events)
	inbound := bus.New(inboundBuffer, logger)

	orch := dispatch.New(dispatch.Config{
		Global:        global,
		Table:         table,
		Responder:     responder,
		Events:        events,
		Logger:        logger,
		MaxPending:    cfg.Dispatch.MaxPending,
		DebugMessages: cfg.Log.DebugMessages,
	})

	if cfg.Monitor.Addr != "" {
		mon := monitor.New(monitor.Config{
			Addr:           cfg.Monitor.Addr,
			Events:         events,
			Collector:      metrics.Collector,
			Pending:        func() int { return len(orch.Pending()) },
			Version:        version,
			AllowedOrigins: cfg.Monitor.AllowedOrigins,
			Logger:         logger,
		})
		go func() {
			if err := mon.Run(ctx); err != nil {
				logger.Error("monitor server error", "err", err)
			}
		}()
	}

	dispatch.LogSummary(logger, global, table, dispatch.Vocabulary)

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		orch.Run(ctx, inbound.Subscribe())
	}()

	srcErr := make(chan error, 1)
	go func() {
		srcErr <- source.Start(ctx, inbound)
	}()
	events.Emit(bus.Event{Type: bus.EventSourceConnected, Source: source.Name()})
	logger.Info("autocatch started. Press Ctrl+C to stop.", "mode", string(mode), "source", source.Name())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
		// The source saw the same cancellation; give it a moment to close.
		select {
		case <-srcErr:
		case <-time.After(5 * time.Second):
			logger.Warn("source did not stop in time", "source", source.Name())
		}
	case err := <-srcErr:
		if err != nil {
			events.Emit(bus.Event{
				Type:    bus.EventSourceError,
				Source:  source.Name(),
				Payload: map[string]any{"error": err.Error()},
			})
			runErr = fmt.Errorf("%s: %w", source.Name(), err)
		}
		stop()
	}

	inbound.Close()
	<-dispatched

	shutdownTimeout := dispatch.Seconds(cfg.Dispatch.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orch.Wait(shutdownCtx); err != nil {
		logger.Warn("shutdown timed out, abandoning pending sends", "timeout", shutdownTimeout)
	} else {
		logger.Info("shutdown complete")
	}
	return runErr
}

// buildSource returns the message source and responder for the configured
// platform. Discord sources authenticate first.
func buildSource(ctx context.Context, cfg *config.Config, mode config.Mode) (domain.Source, domain.Responder, func(), error) {
	if cfg.Platform == "slack" {
		s := channel.NewSlack(channel.SlackConfig{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
			Logger:   logger,
		})
		return s, s, func() {}, nil
	}

	rest := newDiscordREST(cfg)
	cred, closeStore, err := authenticate(ctx, cfg, rest)
	if err != nil {
		return nil, nil, nil, err
	}
	rest.SetToken(cred.Token)
	rest.SetSelfID(cred.UserID)

	if id := cfg.Trigger.ChannelID; id != "" {
		ch, err := rest.Channel(ctx, id)
		switch {
		case err == nil:
			logger.Info("channel access ok", "channel", ch.Name, "channel_id", id)
		case mode == config.ModePoll:
			closeStore()
			return nil, nil, nil, fmt.Errorf("cannot access channel %s: %w", id, err)
		default:
			logger.Warn("cannot access target channel", "channel_id", id, "err", err)
		}
	}

	if mode == config.ModePoll {
		p := channel.NewPoller(channel.PollerConfig{
			Fetcher:   rest,
			ChannelID: cfg.Trigger.ChannelID,
			Limit:     cfg.Poll.Limit,
			Interval:  dispatch.Seconds(cfg.Poll.Interval),
			Logger:    logger,
		})
		return p, rest, closeStore, nil
	}

	gw, err := channel.NewDiscord(channel.DiscordConfig{
		Token:      cred.Token,
		BotAccount: cfg.Discord.BotAccount,
		GuildID:    cfg.Discord.ServerID,
		Logger:     logger,
	})
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	return gw, gw, closeStore, nil
}

func newDiscordREST(cfg *config.Config) *channel.DiscordREST {
	return channel.NewDiscordREST(channel.DiscordRESTConfig{
		APIBase:    cfg.Discord.APIBase,
		BotAccount: cfg.Discord.BotAccount,
		Logger:     logger,
	})
}

// authenticate resolves a working token through the credential manager.
func authenticate(ctx context.Context, cfg *config.Config, auth credential.Authenticator) (credential.Credential, func(), error) {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return credential.Credential{}, nil, err
	}
	mgr := credential.NewManager(credential.ManagerConfig{
		Store:    store,
		Auth:     auth,
		Token:    cfg.Discord.Token,
		Login:    cfg.Discord.Email,
		Password: cfg.Discord.Password,
		Logger:   logger,
	})
	cred, err := mgr.Acquire(ctx)
	if err != nil {
		closeStore()
		return credential.Credential{}, nil, fmt.Errorf("authenticate: %w", err)
	}
	logger.Info("authenticated", "user", cred.Username, "user_id", cred.UserID)
	return cred, closeStore, nil
}

// openStore opens the configured credential store. The returned func
// releases it.
func openStore(cfg *config.Config) (credential.Store, func(), error) {
	switch cfg.Credential.Store {
	case "sqlite":
		s, err := credential.NewSQLiteStore(cfg.Credential.DBPath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open credential store: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				logger.Warn("close credential store", "err", err)
			}
		}, nil
	case "none":
		return credential.NopStore{}, func() {}, nil
	default:
		return credential.NewFileStore(cfg.Credential.TokenFile), func() {}, nil
	}
}

// storeLocation describes where store keeps the credential.
func storeLocation(cfg *config.Config, store credential.Store) string {
	switch s := store.(type) {
	case *credential.FileStore:
		return s.Path()
	case *credential.SQLiteStore:
		return cfg.Credential.DBPath
	default:
		return "memory only (credential.store is none)"
	}
}
