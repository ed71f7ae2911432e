package dispatch

import (
	"strings"

	"autocatch/internal/domain"
)

// Reason explains why a message did not lead to a send.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonSelf         Reason = "self"
	ReasonChannel      Reason = "channel"
	ReasonSenderID     Reason = "sender_id"
	ReasonSenderName   Reason = "sender_name"
	ReasonNotBot       Reason = "not_bot"
	ReasonDisabled     Reason = "category_disabled"
	ReasonNoTrigger    Reason = "no_trigger"
	ReasonPendingLimit Reason = "pending_limit"
)

// Accept applies the sender and channel rules in order and returns the first
// rejection reason, or ReasonNone when the message is eligible.
func (p GlobalPolicy) Accept(msg domain.InboundMessage) (bool, Reason) {
	if msg.IsSelf {
		return false, ReasonSelf
	}
	if p.TargetChannelID != "" && msg.ChannelID != p.TargetChannelID {
		return false, ReasonChannel
	}

	switch p.SenderFilter {
	case FilterByID:
		if msg.AuthorID != p.SenderID {
			return false, ReasonSenderID
		}
	case FilterByName:
		if !strings.EqualFold(msg.AuthorName, p.SenderName) {
			return false, ReasonSenderName
		}
	default:
		if !msg.AuthorIsBot {
			return false, ReasonNotBot
		}
	}
	return true, ReasonNone
}
