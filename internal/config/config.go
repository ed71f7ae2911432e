package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"autocatch/internal/dispatch"
)

// DefaultConfigFile is read when present and no --config flag is given.
const DefaultConfigFile = "autocatch.yaml"

// Config is the root configuration for autocatch.
type Config struct {
	Platform   string                 `koanf:"platform" yaml:"platform" validate:"oneof=discord slack"`
	Discord    DiscordConfig          `koanf:"discord" yaml:"discord"`
	Slack      SlackConfig            `koanf:"slack" yaml:"slack"`
	Trigger    TriggerConfig          `koanf:"trigger" yaml:"trigger"`
	Sender     SenderConfig           `koanf:"sender" yaml:"sender"`
	Timing     TimingConfig           `koanf:"timing" yaml:"timing"`
	Catch      map[string]CatchConfig `koanf:"catch" yaml:"catch,omitempty" validate:"dive"`
	Poll       PollConfig             `koanf:"poll" yaml:"poll"`
	Dispatch   DispatchConfig         `koanf:"dispatch" yaml:"dispatch"`
	Credential CredentialConfig       `koanf:"credential" yaml:"credential"`
	Log        LogConfig              `koanf:"log" yaml:"log"`
	Monitor    MonitorConfig          `koanf:"monitor" yaml:"monitor"`
}

type DiscordConfig struct {
	Token      string `koanf:"token" yaml:"token,omitempty"`
	BotAccount bool   `koanf:"bot_account" yaml:"bot_account"` // send "Bot " prefixed auth
	Email      string `koanf:"email" yaml:"email,omitempty" validate:"omitempty,email"`
	Password   string `koanf:"password" yaml:"password,omitempty"`
	ServerID   string `koanf:"server_id" yaml:"server_id,omitempty" validate:"omitempty,numeric"`
	APIBase    string `koanf:"api_base" yaml:"api_base" validate:"required,url"`
}

type SlackConfig struct {
	BotToken string `koanf:"bot_token" yaml:"bot_token,omitempty"`
	AppToken string `koanf:"app_token" yaml:"app_token,omitempty"`
}

type TriggerConfig struct {
	Phrase    string `koanf:"phrase" yaml:"phrase" validate:"required"`
	Response  string `koanf:"response" yaml:"response" validate:"required,max=2000"`
	ChannelID string `koanf:"channel_id" yaml:"channel_id,omitempty"`
}

type SenderConfig struct {
	Filter string `koanf:"filter" yaml:"filter,omitempty"`
	ID     string `koanf:"id" yaml:"id,omitempty"`
	Name   string `koanf:"name" yaml:"name"`
}

// TimingConfig holds delays in seconds, fractional values allowed.
type TimingConfig struct {
	ResponseDelay float64 `koanf:"response_delay" yaml:"response_delay" validate:"gte=0"`
	JitterEnabled bool    `koanf:"jitter_enabled" yaml:"jitter_enabled"`
	JitterMax     float64 `koanf:"jitter_max" yaml:"jitter_max" validate:"gte=0"`
}

// CatchConfig overrides the global timing for one category. Keys of
// Config.Catch are category labels, matched case-insensitively.
type CatchConfig struct {
	Enabled *bool    `koanf:"enabled" yaml:"enabled,omitempty"`
	Delay   *float64 `koanf:"delay" yaml:"delay,omitempty" validate:"omitempty,gte=0"`
	Jitter  *bool    `koanf:"jitter" yaml:"jitter,omitempty"`
}

type PollConfig struct {
	Interval float64 `koanf:"interval" yaml:"interval" validate:"gt=0"`
	Limit    int     `koanf:"limit" yaml:"limit" validate:"min=1,max=100"`
}

type DispatchConfig struct {
	MaxPending      int     `koanf:"max_pending" yaml:"max_pending" validate:"min=1,max=1024"`
	ShutdownTimeout float64 `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
}

type CredentialConfig struct {
	Store     string `koanf:"store" yaml:"store" validate:"oneof=file sqlite none"`
	TokenFile string `koanf:"token_file" yaml:"token_file"`
	DBPath    string `koanf:"db_path" yaml:"db_path"`
}

type LogConfig struct {
	Level         string `koanf:"level" yaml:"level" validate:"oneof=debug info warn error"`
	File          string `koanf:"file" yaml:"file,omitempty"`
	DebugMessages bool   `koanf:"debug_messages" yaml:"debug_messages"`
}

type MonitorConfig struct {
	Addr           string   `koanf:"addr" yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	AllowedOrigins []string `koanf:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

// Load builds the configuration from defaults, an optional YAML file, a
// .env file in the working directory and the process environment, in that
// order of increasing precedence. An empty path falls back to
// DefaultConfigFile when it exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cannot read .env: %w", err)
	}

	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	path = ExpandPath(path)
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	} else if explicit || !os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("cannot load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	c.Log.Level = normalizeLevel(c.Log.Level)
	c.Sender.Filter = strings.ToLower(strings.TrimSpace(c.Sender.Filter))
	c.Credential.Store = strings.ToLower(strings.TrimSpace(c.Credential.Store))
	c.Credential.TokenFile = ExpandPath(c.Credential.TokenFile)
	c.Credential.DBPath = ExpandPath(c.Credential.DBPath)
	c.Log.File = ExpandPath(c.Log.File)
	c.Discord.APIBase = strings.TrimRight(c.Discord.APIBase, "/")
	c.Catch = canonicalCatch(c.Catch)
}

// canonicalCatch rewrites category keys to their vocabulary spelling. When a
// file and the environment name the same category with different case, the
// canonical key (the one the environment produces) wins field by field.
func canonicalCatch(in map[string]CatchConfig) map[string]CatchConfig {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]CatchConfig, len(in))
	for name, cc := range in {
		c, ok := dispatch.LookupCategory(name, dispatch.Vocabulary)
		if !ok {
			out[name] = cc
			continue
		}
		key := string(c)
		prev, seen := out[key]
		if !seen {
			out[key] = cc
			continue
		}
		hi, lo := prev, cc
		if name == key {
			hi, lo = cc, prev
		}
		if hi.Enabled == nil {
			hi.Enabled = lo.Enabled
		}
		if hi.Delay == nil {
			hi.Delay = lo.Delay
		}
		if hi.Jitter == nil {
			hi.Jitter = lo.Jitter
		}
		out[key] = hi
	}
	return out
}

func normalizeLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "warning":
		return "warn"
	case "critical", "fatal":
		return "error"
	default:
		return l
	}
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
