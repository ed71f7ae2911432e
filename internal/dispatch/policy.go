package dispatch

import (
	"fmt"
	"time"
)

// SenderFilter selects how the spawning account is recognised.
type SenderFilter string

const (
	FilterByID   SenderFilter = "by-id"
	FilterByName SenderFilter = "by-name"
	FilterAnyBot SenderFilter = "any-bot"
)

// Valid reports whether f is a known filter mode.
func (f SenderFilter) Valid() bool {
	switch f {
	case FilterByID, FilterByName, FilterAnyBot:
		return true
	}
	return false
}

// GlobalPolicy holds the process-wide trigger settings. It is built once at
// startup and passed by value.
type GlobalPolicy struct {
	TriggerPhrase   string
	ResponseText    string
	TargetChannelID string // empty means any channel
	SenderFilter    SenderFilter
	SenderID        string
	SenderName      string
	BaseDelay       time.Duration
	JitterEnabled   bool
	JitterMax       time.Duration
}

// CategoryPolicy is the timing policy of a single category.
type CategoryPolicy struct {
	Name      Category
	Enabled   bool
	BaseDelay time.Duration
	Jitter    *bool // nil falls back to GlobalPolicy.JitterEnabled
}

// CategoryOverride is the raw per-category configuration; nil fields take
// the global value.
type CategoryOverride struct {
	Enabled *bool
	Delay   *time.Duration
	Jitter  *bool
}

// PolicyTable maps every vocabulary label to its policy.
type PolicyTable map[Category]CategoryPolicy

// NewPolicyTable builds a table with an entry for every label in vocab.
// Override keys must name a vocabulary label (case-insensitive); unknown
// labels are an error so typos fail at startup.
func NewPolicyTable(vocab []Category, global GlobalPolicy, overrides map[string]CategoryOverride) (PolicyTable, error) {
	table := make(PolicyTable, len(vocab))
	for _, c := range vocab {
		table[c] = CategoryPolicy{Name: c, Enabled: true, BaseDelay: global.BaseDelay}
	}

	for name, o := range overrides {
		c, ok := LookupCategory(name, vocab)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		p := table[c]
		if o.Enabled != nil {
			p.Enabled = *o.Enabled
		}
		if o.Delay != nil {
			if *o.Delay < 0 {
				return nil, fmt.Errorf("category %s: delay must be non-negative", c)
			}
			p.BaseDelay = *o.Delay
		}
		if o.Jitter != nil {
			j := *o.Jitter
			p.Jitter = &j
		}
		table[c] = p
	}
	return table, nil
}

// Enabled returns the enabled labels in vocabulary order.
func (t PolicyTable) Enabled(vocab []Category) []Category {
	var out []Category
	for _, c := range vocab {
		if p, ok := t[c]; ok && p.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// Disabled returns the disabled labels in vocabulary order.
func (t PolicyTable) Disabled(vocab []Category) []Category {
	var out []Category
	for _, c := range vocab {
		if p, ok := t[c]; ok && !p.Enabled {
			out = append(out, c)
		}
	}
	return out
}
