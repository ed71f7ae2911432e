package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// Sanitize returns a copy of cfg with secrets masked.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Discord.Token = mask(cfg.Discord.Token)
	out.Discord.Password = mask(cfg.Discord.Password)
	out.Slack.BotToken = mask(cfg.Slack.BotToken)
	out.Slack.AppToken = mask(cfg.Slack.AppToken)
	if cfg.Catch != nil {
		out.Catch = make(map[string]CatchConfig, len(cfg.Catch))
		for k, v := range cfg.Catch {
			out.Catch[k] = v
		}
	}
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

// YAML renders cfg with secrets masked.
func YAML(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(Sanitize(cfg))
	if err != nil {
		return nil, fmt.Errorf("cannot marshal config: %w", err)
	}
	return data, nil
}
