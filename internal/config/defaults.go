package config

func Defaults() *Config {
	return &Config{
		Platform: "discord",
		Discord: DiscordConfig{
			APIBase: "https://discord.com/api/v10",
		},
		Trigger: TriggerConfig{
			Phrase:   `Type "cat" to catch it!`,
			Response: "cat",
		},
		Sender: SenderConfig{
			Name: "Cat Bot",
		},
		Poll: PollConfig{
			Interval: 1,
			Limit:    2,
		},
		Dispatch: DispatchConfig{
			MaxPending:      16,
			ShutdownTimeout: 30,
		},
		Credential: CredentialConfig{
			Store:     "file",
			TokenFile: "discord_token.json",
			DBPath:    "autocatch.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
