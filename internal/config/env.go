package config

import (
	"sort"
	"strings"

	"autocatch/internal/dispatch"
)

type envKind int

const (
	envString envKind = iota
	envBool
)

type envKey struct {
	key  string
	kind envKind
}

// envKeys maps recognised environment variables onto config keys. Anything
// not listed here is ignored.
var envKeys = map[string]envKey{
	"PLATFORM":           {"platform", envString},
	"USER_TOKEN":         {"discord.token", envString},
	"BOT_ACCOUNT":        {"discord.bot_account", envBool},
	"DISCORD_EMAIL":      {"discord.email", envString},
	"DISCORD_PASSWORD":   {"discord.password", envString},
	"TARGET_SERVER_ID":   {"discord.server_id", envString},
	"DISCORD_API_BASE":   {"discord.api_base", envString},
	"SLACK_BOT_TOKEN":    {"slack.bot_token", envString},
	"SLACK_APP_TOKEN":    {"slack.app_token", envString},
	"TARGET_CHANNEL_ID":  {"trigger.channel_id", envString},
	"TRIGGER_TEXT":       {"trigger.phrase", envString},
	"RESPONSE_MESSAGE":   {"trigger.response", envString},
	"SENDER_FILTER":      {"sender.filter", envString},
	"BOT_ID":             {"sender.id", envString},
	"BOT_USERNAME":       {"sender.name", envString},
	"RESPONSE_DELAY":     {"timing.response_delay", envString},
	"JITTER_ENABLED":     {"timing.jitter_enabled", envBool},
	"JITTER_MAX":         {"timing.jitter_max", envString},
	"POLL_INTERVAL":      {"poll.interval", envString},
	"POLL_LIMIT":         {"poll.limit", envString},
	"MAX_PENDING_SENDS":  {"dispatch.max_pending", envString},
	"SHUTDOWN_TIMEOUT":   {"dispatch.shutdown_timeout", envString},
	"CREDENTIAL_STORE":   {"credential.store", envString},
	"TOKEN_FILE":         {"credential.token_file", envString},
	"CREDENTIAL_DB":      {"credential.db_path", envString},
	"LOG_LEVEL":          {"log.level", envString},
	"LOG_FILE":           {"log.file", envString},
	"DEBUG_LOG_MESSAGES": {"log.debug_messages", envBool},
	"MONITOR_ADDR":       {"monitor.addr", envString},
}

func init() {
	for _, c := range dispatch.Vocabulary {
		name := CatchEnvName(c)
		base := "catch." + string(c) + "."
		envKeys[name] = envKey{base + "enabled", envBool}
		envKeys[name+"_DELAY"] = envKey{base + "delay", envString}
		envKeys[name+"_JITTER"] = envKey{base + "jitter", envBool}
	}
}

// CatchEnvName returns the CATCH_<TYPE> variable for a category. Labels
// starting with a digit are spelled out.
func CatchEnvName(c dispatch.Category) string {
	label := strings.ToUpper(string(c))
	if strings.HasPrefix(label, "8") {
		label = "EIGHT" + label[1:]
	}
	return "CATCH_" + label
}

// envValue is the koanf env callback. Boolean variables are true only when
// set to "true" in any case, so a typo reads as false rather than failing.
func envValue(name, value string) (string, any) {
	k, ok := envKeys[name]
	if !ok {
		return "", nil
	}
	if k.kind == envBool {
		return k.key, strings.EqualFold(strings.TrimSpace(value), "true")
	}
	return k.key, value
}

// EnvNames lists the recognised environment variables, sorted.
func EnvNames() []string {
	names := make([]string, 0, len(envKeys))
	for name := range envKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
