package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"autocatch/internal/dispatch"
)

// Mode is the deployment shape a command runs in.
type Mode string

const (
	ModeListen Mode = "listen"
	ModePoll   Mode = "poll"
)

var validate = newValidator()

// newValidator reports fields by their koanf key.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name, _, _ := strings.Cut(f.Tag.Get("koanf"), ","); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks field values and cross-field rules that hold for every
// command.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	for name := range c.Catch {
		if _, ok := dispatch.LookupCategory(name, dispatch.Vocabulary); !ok {
			errs = append(errs, fmt.Sprintf("catch.%s: unknown category", name))
		}
	}

	filter := c.SenderFilter()
	if !filter.Valid() {
		errs = append(errs, fmt.Sprintf("sender.filter must be one of: %s, %s, %s",
			dispatch.FilterByID, dispatch.FilterByName, dispatch.FilterAnyBot))
	}
	switch filter {
	case dispatch.FilterByID:
		if c.Sender.ID == "" {
			errs = append(errs, "sender.id is required when sender.filter is by-id")
		}
	case dispatch.FilterByName:
		if c.Sender.Name == "" {
			errs = append(errs, "sender.name is required when sender.filter is by-name")
		}
	}

	if (c.Discord.Email == "") != (c.Discord.Password == "") {
		errs = append(errs, "discord.email and discord.password must be set together")
	}

	return joinErrors(errs)
}

// RequireFor checks the settings a specific command needs.
func (c *Config) RequireFor(mode Mode) error {
	var errs []string

	switch mode {
	case ModePoll:
		if c.Platform != "discord" {
			errs = append(errs, "poll is only supported on discord")
		}
		if c.Trigger.ChannelID == "" {
			errs = append(errs, "trigger.channel_id (TARGET_CHANNEL_ID) is required for poll")
		}
	}

	switch c.Platform {
	case "discord":
		if !c.HasDiscordCredential() {
			errs = append(errs, "discord needs USER_TOKEN, DISCORD_EMAIL/DISCORD_PASSWORD or a credential store")
		}
	case "slack":
		if c.Slack.BotToken == "" || c.Slack.AppToken == "" {
			errs = append(errs, "slack needs SLACK_BOT_TOKEN and SLACK_APP_TOKEN")
		}
	}

	return joinErrors(errs)
}

// HasDiscordCredential reports whether a token can possibly be obtained.
// A cached credential is only known after the store is opened.
func (c *Config) HasDiscordCredential() bool {
	return c.Discord.Token != "" ||
		c.Discord.Email != "" ||
		c.Credential.Store != "none"
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte", "min":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func joinErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
}
