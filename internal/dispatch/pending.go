package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// SendStatus is the lifecycle of a scheduled response.
type SendStatus string

const (
	SendWaiting SendStatus = "waiting"
	SendRunning SendStatus = "sending"
)

// PendingSend is a response that has been scheduled but not yet finished.
type PendingSend struct {
	ID          string        `json:"id"`
	MessageID   uint64        `json:"message_id"`
	ChannelID   string        `json:"channel_id"`
	Category    Category      `json:"category"`
	Delay       time.Duration `json:"delay"`
	Status      SendStatus    `json:"status"`
	ScheduledAt time.Time     `json:"scheduled_at"`
}

// pendingSends tracks in-flight responses as independent tasks, bounded by a
// weighted semaphore. Finished tasks are dropped from the table.
type pendingSends struct {
	mu     sync.RWMutex
	tasks  map[string]*PendingSend
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *slog.Logger
}

func newPendingSends(limit int, logger *slog.Logger) *pendingSends {
	if limit <= 0 {
		limit = DefaultMaxPending
	}
	return &pendingSends{
		tasks:  make(map[string]*PendingSend),
		sem:    semaphore.NewWeighted(int64(limit)),
		logger: logger,
	}
}

// trySubmit runs fn on its own goroutine if a slot is free. scheduled is
// called before the goroutine starts. The wait and the send both happen
// inside fn; the callback it receives marks the switch to sending.
func (p *pendingSends) trySubmit(task PendingSend, scheduled func(), fn func(sending func())) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}

	task.Status = SendWaiting
	task.ScheduledAt = time.Now()
	p.mu.Lock()
	p.tasks[task.ID] = &task
	p.mu.Unlock()
	scheduled()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			p.mu.Lock()
			delete(p.tasks, task.ID)
			p.mu.Unlock()
		}()

		fn(func() {
			p.mu.Lock()
			if t, ok := p.tasks[task.ID]; ok {
				t.Status = SendRunning
			}
			p.mu.Unlock()
		})
	}()
	return true
}

// List returns a snapshot of in-flight sends.
func (p *pendingSends) List() []PendingSend {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PendingSend, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, *t)
	}
	return out
}

// wait blocks until every in-flight send has finished or ctx is done.
func (p *pendingSends) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("pending sends still running at shutdown", "count", len(p.List()))
		return ctx.Err()
	}
}
