package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"autocatch/internal/config"
	"autocatch/internal/credential"
	"autocatch/internal/logging"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "autocatch",
		Short:         "autocatch: reply to spawn announcements in a chat channel",
		Long:          "autocatch watches a channel for a bot's spawn announcement and answers it with a fixed reply after a per-category delay.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default: ./"+config.DefaultConfigFile+" if present)")

	root.AddCommand(listenCmd())
	root.AddCommand(pollCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())
	root.AddCommand(installDaemonCmd())
	root.AddCommand(uninstallDaemonCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration, then replaces the
// bootstrap logger with one honoring log.level and log.file.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	l, closeLog, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, nil, err
	}
	logger = l
	return cfg, func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	}, nil
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Listen on a live gateway connection (Discord or Slack)",
		Long:  "Connects to the platform's push gateway and replies to spawn announcements as they arrive. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config.ModeListen)
		},
	}
}

func pollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll one Discord channel over the REST API",
		Long:  "Fetches the newest messages of trigger.channel_id every poll.interval seconds and replies to new spawn announcements. Press Ctrl+C to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config.ModePoll)
		},
	}
}

func loginCmd() *cobra.Command {
	var noPrompt bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with DISCORD_EMAIL/DISCORD_PASSWORD and cache the token",
		Long:  "Logs in to Discord and caches the token in the credential store. Missing email or password are asked for interactively unless --no-prompt is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			if cfg.Discord.Email == "" || cfg.Discord.Password == "" {
				if noPrompt {
					return errors.New("login needs discord.email and discord.password (DISCORD_EMAIL, DISCORD_PASSWORD)")
				}
				if err := promptLogin(&cfg.Discord); err != nil {
					return err
				}
			}
			if cfg.Credential.Store == "none" {
				logger.Warn("credential.store is none; the token will not be cached")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			mgr := credential.NewManager(credential.ManagerConfig{
				Store:    store,
				Auth:     newDiscordREST(cfg),
				Login:    cfg.Discord.Email,
				Password: cfg.Discord.Password,
				Logger:   logger,
			})
			cred, err := mgr.Login(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s (%s)\n", cred.Username, cred.UserID)
			fmt.Printf("Token cached in %s\n", storeLocation(cfg, store))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "fail instead of asking for missing login details")
	return cmd
}

// promptLogin asks for whichever of email and password is missing.
func promptLogin(d *config.DiscordConfig) error {
	if d.Email == "" {
		p := promptui.Prompt{
			Label: "Discord email",
			Validate: func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("not an email address")
				}
				return nil
			},
		}
		email, err := p.Run()
		if err != nil {
			return fmt.Errorf("email prompt: %w", err)
		}
		d.Email = strings.TrimSpace(email)
	}
	if d.Password == "" {
		p := promptui.Prompt{
			Label: "Discord password",
			Mask:  '*',
		}
		password, err := p.Run()
		if err != nil {
			return fmt.Errorf("password prompt: %w", err)
		}
		d.Password = password
	}
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := config.YAML(config.Sanitize(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the config file in use",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "List the environment variables autocatch reads",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range config.EnvNames() {
				fmt.Println(name)
			}
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("autocatch", version)
		},
	}
}

// resolveConfigPath returns the --config path, the default file when it
// exists, or "" when only the environment is used.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if _, err := os.Stat(config.DefaultConfigFile); err == nil {
		return config.DefaultConfigFile
	}
	return ""
}
