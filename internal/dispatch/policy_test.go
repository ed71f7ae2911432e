package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocatch/internal/domain"
)

func boolPtr(b bool) *bool                  { return &b }
func durPtr(d time.Duration) *time.Duration { return &d }

func TestNewPolicyTable_Defaults(t *testing.T) {
	global := GlobalPolicy{BaseDelay: time.Second}
	table, err := NewPolicyTable(Vocabulary, global, nil)
	require.NoError(t, err)

	assert.Len(t, table, len(Vocabulary))
	for _, c := range Vocabulary {
		p := table[c]
		assert.True(t, p.Enabled, c)
		assert.Equal(t, time.Second, p.BaseDelay, c)
		assert.Nil(t, p.Jitter, c)
	}
}

func TestNewPolicyTable_Overrides(t *testing.T) {
	table, err := NewPolicyTable(Vocabulary, GlobalPolicy{}, map[string]CategoryOverride{
		"trash": {Enabled: boolPtr(false)},
		"Rare":  {Delay: durPtr(3500 * time.Millisecond), Jitter: boolPtr(false)},
	})
	require.NoError(t, err)

	assert.False(t, table["Trash"].Enabled)
	assert.Equal(t, 3500*time.Millisecond, table["Rare"].BaseDelay)
	require.NotNil(t, table["Rare"].Jitter)
	assert.False(t, *table["Rare"].Jitter)

	assert.Equal(t, []Category{"Trash"}, table.Disabled(Vocabulary))
	assert.Len(t, table.Enabled(Vocabulary), len(Vocabulary)-1)
}

func TestNewPolicyTable_Errors(t *testing.T) {
	_, err := NewPolicyTable(Vocabulary, GlobalPolicy{}, map[string]CategoryOverride{
		"Shiny": {Enabled: boolPtr(true)},
	})
	assert.ErrorContains(t, err, "unknown category")

	_, err = NewPolicyTable(Vocabulary, GlobalPolicy{}, map[string]CategoryOverride{
		"Rare": {Delay: durPtr(-time.Second)},
	})
	assert.ErrorContains(t, err, "non-negative")
}

func TestSenderFilter_Valid(t *testing.T) {
	assert.True(t, FilterByID.Valid())
	assert.True(t, FilterByName.Valid())
	assert.True(t, FilterAnyBot.Valid())
	assert.False(t, SenderFilter("everyone").Valid())
}

func TestGlobalPolicy_Accept(t *testing.T) {
	bot := domain.InboundMessage{AuthorID: "42", AuthorName: "Cat Bot", AuthorIsBot: true, ChannelID: "c1"}

	tests := []struct {
		name   string
		policy GlobalPolicy
		mutate func(*domain.InboundMessage)
		ok     bool
		reason Reason
	}{
		{"by id match", GlobalPolicy{SenderFilter: FilterByID, SenderID: "42"}, nil, true, ReasonNone},
		{"by id mismatch", GlobalPolicy{SenderFilter: FilterByID, SenderID: "42"},
			func(m *domain.InboundMessage) { m.AuthorID = "43" }, false, ReasonSenderID},
		{"by name ignores case", GlobalPolicy{SenderFilter: FilterByName, SenderName: "cat bot"}, nil, true, ReasonNone},
		{"by name mismatch", GlobalPolicy{SenderFilter: FilterByName, SenderName: "Dog Bot"}, nil, false, ReasonSenderName},
		{"any bot accepts bot", GlobalPolicy{SenderFilter: FilterAnyBot}, nil, true, ReasonNone},
		{"any bot rejects human", GlobalPolicy{SenderFilter: FilterAnyBot},
			func(m *domain.InboundMessage) { m.AuthorIsBot = false }, false, ReasonNotBot},
		{"empty filter behaves as any bot", GlobalPolicy{},
			func(m *domain.InboundMessage) { m.AuthorIsBot = false }, false, ReasonNotBot},
		{"target channel match", GlobalPolicy{TargetChannelID: "c1"}, nil, true, ReasonNone},
		{"target channel mismatch", GlobalPolicy{TargetChannelID: "c2"}, nil, false, ReasonChannel},
		{"self always rejected", GlobalPolicy{SenderFilter: FilterByID, SenderID: "42"},
			func(m *domain.InboundMessage) { m.IsSelf = true }, false, ReasonSelf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := bot
			msg.Text = `A Legendary cat has appeared! Type "cat" to catch it!`
			if tt.mutate != nil {
				tt.mutate(&msg)
			}
			ok, reason := tt.policy.Accept(msg)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestGlobalPolicy_Accept_SelfBeatsEveryFilter(t *testing.T) {
	self := domain.InboundMessage{AuthorID: "7", AuthorName: "me", AuthorIsBot: true, IsSelf: true}
	for _, f := range []SenderFilter{FilterByID, FilterByName, FilterAnyBot} {
		p := GlobalPolicy{SenderFilter: f, SenderID: "7", SenderName: "me"}
		ok, reason := p.Accept(self)
		assert.False(t, ok, f)
		assert.Equal(t, ReasonSelf, reason, f)
	}
}
