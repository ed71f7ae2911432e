package metrics

import (
	"fmt"

	"autocatch/internal/bus"
)

var delayBuckets = []float64{0, 0.5, 1, 2, 3, 5, 10, 30}

// Subscribe records dispatch events into c. It returns the handler id so
// callers can detach with EventBus.Off("*", id).
func Subscribe(c *MetricsCollector, eb *bus.EventBus) string {
	pending := c.Gauge("autocatch_pending_sends", "Responses waiting on their delay or in flight", "")
	delays := c.Histogram("autocatch_response_delay_seconds", "Final response delay in seconds", "", delayBuckets)

	return eb.On("*", func(e bus.Event) {
		switch e.Type {
		case bus.EventMessageRejected:
			c.Counter("autocatch_messages_rejected_total", "Messages rejected by the sender or channel filter",
				label("reason", e.Payload["reason"])).Inc()
		case bus.EventMessageSkipped:
			c.Counter("autocatch_messages_skipped_total", "Eligible messages that did not lead to a send",
				label("reason", e.Payload["reason"])).Inc()
		case bus.EventSendScheduled:
			pending.Inc()
			c.Counter("autocatch_triggers_total", "Triggers detected by category",
				label("category", e.Payload["category"])).Inc()
			if ms, ok := e.Payload["delay_ms"].(int64); ok {
				delays.Observe(float64(ms) / 1000)
			}
		case bus.EventSendSucceeded:
			pending.Dec()
			c.Counter("autocatch_sends_total", "Responses sent by result", `result="ok"`).Inc()
		case bus.EventSendFailed:
			pending.Dec()
			c.Counter("autocatch_sends_total", "Responses sent by result", `result="error"`).Inc()
		case bus.EventSourceError:
			c.Counter("autocatch_source_errors_total", "Message source failures", "").Inc()
		}
	})
}

func label(name string, v any) string {
	s, _ := v.(string)
	if s == "" {
		s = "unknown"
	}
	return fmt.Sprintf("%s=%q", name, s)
}
