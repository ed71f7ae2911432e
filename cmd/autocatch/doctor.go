package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"autocatch/internal/config"
	"autocatch/internal/credential"
	"autocatch/internal/dispatch"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your autocatch setup",
		Long: `Verifies that the configuration loads, the credential store is usable,
the token is accepted and the target channel is reachable. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("autocatch doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &report{}

			// 1. Config loads and validates
			cfg, err := config.Load(configPath)
			if err != nil {
				r.fail("Config", err.Error())
				return r.finish()
			}
			if p := resolveConfigPath(); p != "" {
				r.pass("Config", p)
			} else {
				r.pass("Config", "environment only")
			}

			// 2. Catch policies
			global, table, err := cfg.Policies()
			if err != nil {
				r.fail("Catch policies", err.Error())
			} else {
				enabled := len(table.Enabled(dispatch.Vocabulary))
				detail := fmt.Sprintf("%d/%d categories enabled, filter %s", enabled, len(dispatch.Vocabulary), global.SenderFilter)
				if enabled == 0 {
					r.warn("Catch policies", detail)
				} else {
					r.pass("Catch policies", detail)
				}
			}

			// 3. Log file writable
			if cfg.Log.File != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.Log.File)
				}
			}

			// 4. Monitor port
			if cfg.Monitor.Addr != "" {
				if err := checkAddr(cfg.Monitor.Addr); err != nil {
					r.warn("Monitor addr", fmt.Sprintf("%s may be in use: %v", cfg.Monitor.Addr, err))
				} else {
					r.pass("Monitor addr", cfg.Monitor.Addr+" available")
				}
			}

			if cfg.Platform != "discord" {
				if err := cfg.RequireFor(config.ModeListen); err != nil {
					r.fail("Slack tokens", err.Error())
				} else {
					r.pass("Slack tokens", "configured")
				}
				return r.finish()
			}

			// 5. Credential store
			store, closeStore, err := openStore(cfg)
			if err != nil {
				r.fail("Credential store", err.Error())
				return r.finish()
			}
			defer closeStore()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			switch _, err := store.Load(ctx); {
			case err == nil:
				r.pass("Credential store", "token cached in "+storeLocation(cfg, store))
			case errors.Is(err, credential.ErrNotFound):
				r.warn("Credential store", "nothing cached yet in "+storeLocation(cfg, store))
			default:
				r.fail("Credential store", err.Error())
			}

			// 6. Token
			rest := newDiscordREST(cfg)
			mgr := credential.NewManager(credential.ManagerConfig{
				Store:    store,
				Auth:     rest,
				Token:    cfg.Discord.Token,
				Login:    cfg.Discord.Email,
				Password: cfg.Discord.Password,
				Logger:   logger,
			})
			cred, err := mgr.Acquire(ctx)
			if err != nil {
				r.fail("Token", err.Error())
				return r.finish()
			}
			r.pass("Token", fmt.Sprintf("valid for %s (%s)", cred.Username, cred.UserID))
			rest.SetToken(cred.Token)

			// 7. Target channel
			if id := cfg.Trigger.ChannelID; id == "" {
				r.warn("Channel", "trigger.channel_id not set; listen will watch every channel, poll cannot run")
			} else if ch, err := rest.Channel(ctx, id); err != nil {
				r.fail("Channel", fmt.Sprintf("%s: %v", id, err))
			} else {
				r.pass("Channel", fmt.Sprintf("#%s (%s)", ch.Name, id))
			}

			return r.finish()
		},
	}
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) finish() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running autocatch.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\nautocatch should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! autocatch is ready to run.\n")
	}
	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
