package domain

import "time"

// InboundMessage is a chat message observed by a source. It is immutable once observed.
type InboundMessage struct {
	ID          uint64 // sortable: Discord snowflake, Slack ts in microseconds
	Platform    string
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	ChannelID   string
	GuildID     string
	Text        string
	IsSelf      bool // authored by the account this process runs as
	ReceivedAt  time.Time
}

// Identity is the account a credential authenticates as.
type Identity struct {
	ID       string
	Username string
}
