package config

import (
	"fmt"

	"autocatch/internal/dispatch"
)

// SenderFilter returns the effective sender filter: the explicit setting,
// else by-id when a sender id is set, else by-name when a sender name is
// set, else any-bot.
func (c *Config) SenderFilter() dispatch.SenderFilter {
	switch {
	case c.Sender.Filter != "":
		return dispatch.SenderFilter(c.Sender.Filter)
	case c.Sender.ID != "":
		return dispatch.FilterByID
	case c.Sender.Name != "":
		return dispatch.FilterByName
	default:
		return dispatch.FilterAnyBot
	}
}

// Global builds the immutable process-wide policy.
func (c *Config) Global() dispatch.GlobalPolicy {
	return dispatch.GlobalPolicy{
		TriggerPhrase:   c.Trigger.Phrase,
		ResponseText:    c.Trigger.Response,
		TargetChannelID: c.Trigger.ChannelID,
		SenderFilter:    c.SenderFilter(),
		SenderID:        c.Sender.ID,
		SenderName:      c.Sender.Name,
		BaseDelay:       dispatch.Seconds(c.Timing.ResponseDelay),
		JitterEnabled:   c.Timing.JitterEnabled,
		JitterMax:       dispatch.Seconds(c.Timing.JitterMax),
	}
}

// Policies builds the global policy and the per-category table.
func (c *Config) Policies() (dispatch.GlobalPolicy, dispatch.PolicyTable, error) {
	global := c.Global()
	overrides := make(map[string]dispatch.CategoryOverride, len(c.Catch))
	for name, cc := range c.Catch {
		o := dispatch.CategoryOverride{Enabled: cc.Enabled, Jitter: cc.Jitter}
		if cc.Delay != nil {
			d := dispatch.Seconds(*cc.Delay)
			o.Delay = &d
		}
		overrides[name] = o
	}
	table, err := dispatch.NewPolicyTable(dispatch.Vocabulary, global, overrides)
	if err != nil {
		return dispatch.GlobalPolicy{}, nil, fmt.Errorf("catch: %w", err)
	}
	return global, table, nil
}
