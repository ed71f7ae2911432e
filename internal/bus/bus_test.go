package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocatch/internal/domain"
)

func TestInMemoryBus_PreservesOrder(t *testing.T) {
	b := New(10, testEBLogger())

	for i := uint64(1); i <= 3; i++ {
		b.Publish(domain.InboundMessage{ID: i})
	}
	b.Close()

	var got []uint64
	for msg := range b.Subscribe() {
		got = append(got, msg.ID)
	}
	assert.Equal(t, []uint64{1, 2, 3}, got)
}

func TestInMemoryBus_PublishAfterClose(t *testing.T) {
	b := New(1, testEBLogger())
	b.Close()

	assert.NotPanics(t, func() { b.Publish(domain.InboundMessage{ID: 1}) })
	b.Close()
}

func TestInMemoryBus_FullDropsAfterTimeout(t *testing.T) {
	b := New(1, testEBLogger())
	b.timeout = 20 * time.Millisecond

	b.Publish(domain.InboundMessage{ID: 1})
	start := time.Now()
	b.Publish(domain.InboundMessage{ID: 2})
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	msg := <-b.Subscribe()
	require.Equal(t, uint64(1), msg.ID)
	select {
	case extra := <-b.Subscribe():
		t.Fatalf("expected dropped message, got %d", extra.ID)
	default:
	}
}

func TestInMemoryBus_DefaultBuffer(t *testing.T) {
	b := New(0, nil)
	assert.Equal(t, 100, cap(b.inbound))
}
