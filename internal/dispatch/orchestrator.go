package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"autocatch/internal/bus"
	"autocatch/internal/domain"
)

const (
	// DefaultMaxPending bounds how many responses may wait on their delay at once.
	DefaultMaxPending = 16
	sendTimeout       = 15 * time.Second
)

// State is a step of the per-message dispatch state machine.
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateRejected   State = "rejected"
	StateSkipped    State = "skipped"
	StateScheduled  State = "scheduled"
	StateSent       State = "sent"
)

// Outcome records what happened to one inbound message.
type Outcome struct {
	ID        string
	MessageID uint64
	ChannelID string
	State     State
	Reason    Reason
	Category  Category
	Delay     time.Duration
	Err       error
}

// Config wires an Orchestrator.
type Config struct {
	Global        GlobalPolicy
	Table         PolicyTable
	Vocabulary    []Category // defaults to Vocabulary
	Responder     domain.Responder
	Events        *bus.EventBus
	Logger        *slog.Logger
	MaxPending    int
	DebugMessages bool
	Random        RandomFloat           // defaults to math/rand/v2
	Sleep         func(d time.Duration) // defaults to time.Sleep
}

// Orchestrator evaluates inbound messages one at a time and schedules at most
// one response per message. Scheduled responses run on their own goroutines
// so a pending delay never holds up evaluation of the next message.
type Orchestrator struct {
	global    GlobalPolicy
	table     PolicyTable
	vocab     []Category
	responder domain.Responder
	events    *bus.EventBus
	logger    *slog.Logger
	debug     bool
	random    RandomFloat
	sleep     func(time.Duration)
	pending   *pendingSends
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Vocabulary == nil {
		cfg.Vocabulary = Vocabulary
	}
	if cfg.Events == nil {
		cfg.Events = bus.NewEventBus(cfg.Logger)
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return &Orchestrator{
		global:    cfg.Global,
		table:     cfg.Table,
		vocab:     cfg.Vocabulary,
		responder: cfg.Responder,
		events:    cfg.Events,
		logger:    cfg.Logger,
		debug:     cfg.DebugMessages,
		random:    cfg.Random,
		sleep:     cfg.Sleep,
		pending:   newPendingSends(cfg.MaxPending, cfg.Logger),
	}
}

// Run drains messages in arrival order until ctx is cancelled or the channel
// is closed. It does not wait for pending sends; call Wait for that.
func (o *Orchestrator) Run(ctx context.Context, messages <-chan domain.InboundMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			o.Evaluate(ctx, msg)
		}
	}
}

// Evaluate takes one message from Idle to a terminal state or to Scheduled.
// A Scheduled message reaches Sent asynchronously; that transition is
// reported on the event bus.
func (o *Orchestrator) Evaluate(ctx context.Context, msg domain.InboundMessage) Outcome {
	out := Outcome{
		ID:        uuid.NewString(),
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		State:     StateEvaluating,
		Category:  CategoryNone,
	}

	if ok, reason := o.global.Accept(msg); !ok {
		out.State, out.Reason = StateRejected, reason
		if o.debug {
			o.logger.Debug("ignoring message",
				"reason", reason,
				"author", msg.AuthorName,
				"author_id", msg.AuthorID,
				"channel_id", msg.ChannelID,
			)
		}
		o.emit(bus.EventMessageRejected, out)
		return out
	}

	if o.debug {
		o.logger.Debug("candidate message",
			"author", msg.AuthorName,
			"author_id", msg.AuthorID,
			"preview", preview(msg.Text, 120),
		)
	}

	out.Category = Classify(msg.Text, o.vocab)
	timing := Resolve(out.Category, o.table, o.global)
	if !timing.Enabled {
		out.State, out.Reason = StateSkipped, ReasonDisabled
		o.logger.Info("skipped disabled category", "category", out.Category, "message_id", msg.ID)
		o.emit(bus.EventMessageSkipped, out)
		return out
	}

	if !MatchTrigger(o.global.TriggerPhrase, msg.Text) {
		out.State, out.Reason = StateSkipped, ReasonNoTrigger
		if o.debug {
			o.logger.Debug("trigger text not found", "message_id", msg.ID)
		}
		o.emit(bus.EventMessageSkipped, out)
		return out
	}

	out.Delay = timing.FinalDelay(o.global.JitterMax, o.random)
	task := PendingSend{
		ID:        out.ID,
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		Category:  out.Category,
		Delay:     out.Delay,
	}
	scheduled := out
	scheduled.State = StateScheduled
	sendCtx := context.WithoutCancel(ctx)
	submitted := o.pending.trySubmit(task, func() {
		o.logger.Info("trigger detected",
			"category", out.Category,
			"message_id", msg.ID,
			"channel_id", msg.ChannelID,
			"delay", out.Delay,
		)
		o.emit(bus.EventSendScheduled, scheduled)
	}, func(sending func()) {
		o.deliver(sendCtx, msg, scheduled, sending)
	})
	if !submitted {
		out.State, out.Reason = StateSkipped, ReasonPendingLimit
		o.logger.Warn("too many pending responses, skipping", "message_id", msg.ID, "category", out.Category)
		o.emit(bus.EventMessageSkipped, out)
		return out
	}
	return scheduled
}

// deliver waits out the delay and invokes the responder exactly once.
// A failed send is terminal.
func (o *Orchestrator) deliver(ctx context.Context, msg domain.InboundMessage, out Outcome, sending func()) {
	if out.Delay > 0 {
		o.logger.Info("waiting before responding", "delay", out.Delay, "message_id", msg.ID)
		o.sleep(out.Delay)
	}
	sending()

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	err := o.responder.Send(sendCtx, msg.ChannelID, o.global.ResponseText)

	out.State, out.Err = StateSent, err
	if err != nil {
		o.logger.Error("failed to send response", "message_id", msg.ID, "channel_id", msg.ChannelID, "err", err)
		o.emit(bus.EventSendFailed, out)
		return
	}

	o.logger.Info("caught", "category", out.Category, "response", o.global.ResponseText, "message_id", msg.ID)
	if o.global.SenderFilter == FilterByName {
		o.logger.Info("detected spawner id; set BOT_ID and clear BOT_USERNAME to filter by id",
			"author_id", msg.AuthorID,
		)
	}
	o.emit(bus.EventSendSucceeded, out)
}

// Pending returns a snapshot of responses still waiting or sending.
func (o *Orchestrator) Pending() []PendingSend {
	return o.pending.List()
}

// Wait blocks until all scheduled responses have been sent or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	return o.pending.wait(ctx)
}

func (o *Orchestrator) emit(eventType string, out Outcome) {
	payload := map[string]any{
		"id":         out.ID,
		"message_id": strconv.FormatUint(out.MessageID, 10),
		"channel_id": out.ChannelID,
		"state":      string(out.State),
		"category":   string(out.Category),
		"delay_ms":   out.Delay.Milliseconds(),
	}
	if out.Reason != ReasonNone {
		payload["reason"] = string(out.Reason)
	}
	if out.Err != nil {
		payload["error"] = out.Err.Error()
	}
	o.events.Emit(bus.Event{Type: eventType, Source: "dispatch", Payload: payload})
}

func preview(text string, n int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if r := []rune(text); len(r) > n {
		return string(r[:n])
	}
	return text
}
