package channel

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiscord_HandlesEventsInOrder(t *testing.T) {
	d, err := NewDiscord(DiscordConfig{Token: "user-token", Logger: testLogger()})
	require.NoError(t, err)
	assert.True(t, d.session.SyncEvents, "handlers must run on the gateway reader")
	assert.Equal(t, "user-token", d.session.Token)
	assert.NotZero(t, d.session.Identify.Intents&discordgo.IntentsMessageContent)
}

func TestNewDiscord_BotAccountPrefix(t *testing.T) {
	d, err := NewDiscord(DiscordConfig{Token: "abc", BotAccount: true, GuildID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, "Bot abc", d.session.Token)
	assert.Equal(t, "g1", d.guildID)
	assert.True(t, d.session.SyncEvents)
}
