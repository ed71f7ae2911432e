package dispatch

import (
	"log/slog"
	"strings"
)

// LogSummary reports the effective filter and catch settings at startup.
func LogSummary(logger *slog.Logger, global GlobalPolicy, table PolicyTable, vocab []Category) {
	if global.TargetChannelID != "" {
		logger.Info("listening for triggers", "channel_id", global.TargetChannelID)
	} else {
		logger.Warn("no target channel set; will respond in any channel where the trigger appears")
	}

	switch global.SenderFilter {
	case FilterByID:
		logger.Info("filter mode", "mode", FilterByID, "bot_id", global.SenderID)
	case FilterByName:
		logger.Info("filter mode", "mode", FilterByName, "bot_username", global.SenderName)
	default:
		logger.Info("filter mode", "mode", FilterAnyBot)
	}

	enabled := table.Enabled(vocab)
	disabled := table.Disabled(vocab)
	switch {
	case len(enabled) == len(vocab):
		logger.Info("catch mode: all categories enabled")
	case len(enabled) == 0:
		logger.Warn("catch mode: no categories enabled; named spawns will be ignored")
	default:
		attrs := []any{"enabled", len(enabled), "total", len(vocab)}
		if len(disabled) <= 10 {
			names := make([]string, len(disabled))
			for i, c := range disabled {
				names[i] = string(c)
			}
			attrs = append(attrs, "disabled", strings.Join(names, ", "))
		}
		logger.Info("catch mode: partial", attrs...)
	}
}
