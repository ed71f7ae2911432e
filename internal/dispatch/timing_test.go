package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_CategoryOverride(t *testing.T) {
	global := GlobalPolicy{JitterEnabled: true, JitterMax: 2 * time.Second}
	table, err := NewPolicyTable(Vocabulary, global, map[string]CategoryOverride{
		"Rare": {Delay: durPtr(3500 * time.Millisecond), Jitter: boolPtr(false)},
	})
	require.NoError(t, err)

	rt := Resolve("Rare", table, global)
	assert.Equal(t, ResolvedTiming{Enabled: true, Delay: 3500 * time.Millisecond, Jitter: false}, rt)
	for i := 0; i < 100; i++ {
		assert.Equal(t, 3500*time.Millisecond, rt.FinalDelay(global.JitterMax, nil))
	}
}

func TestResolve_NoneUsesGlobal(t *testing.T) {
	global := GlobalPolicy{BaseDelay: 250 * time.Millisecond, JitterEnabled: true}
	table, err := NewPolicyTable(Vocabulary, global, map[string]CategoryOverride{
		"Fine": {Enabled: boolPtr(false)},
	})
	require.NoError(t, err)

	rt := Resolve(CategoryNone, table, global)
	assert.True(t, rt.Enabled)
	assert.Equal(t, 250*time.Millisecond, rt.Delay)
	assert.True(t, rt.Jitter)

	assert.False(t, Resolve("Fine", table, global).Enabled)
}

func TestResolve_InheritsGlobalJitter(t *testing.T) {
	global := GlobalPolicy{JitterEnabled: true}
	table, err := NewPolicyTable(Vocabulary, global, nil)
	require.NoError(t, err)
	assert.True(t, Resolve("Epic", table, global).Jitter)
}

func TestFinalDelay_JitterBounds(t *testing.T) {
	rt := ResolvedTiming{Enabled: true, Delay: time.Second, Jitter: true}
	max := 2 * time.Second
	for i := 0; i < 10000; i++ {
		d := rt.FinalDelay(max, nil)
		require.GreaterOrEqual(t, d, time.Second)
		require.Less(t, d, 3*time.Second)
	}
}

func TestFinalDelay_InjectedRandom(t *testing.T) {
	rt := ResolvedTiming{Delay: time.Second, Jitter: true}
	assert.Equal(t, 2*time.Second, rt.FinalDelay(2*time.Second, func() float64 { return 0.5 }))
	assert.Equal(t, time.Second, rt.FinalDelay(0, func() float64 { return 0.5 }))

	rt.Jitter = false
	assert.Equal(t, time.Second, rt.FinalDelay(2*time.Second, func() float64 { return 0.9 }))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 3500*time.Millisecond, Seconds(3.5))
	assert.Equal(t, time.Duration(0), Seconds(0))
}

func TestWatermark(t *testing.T) {
	var w Watermark
	assert.False(t, w.Primed())

	w.Prime(100)
	last, ok := w.Last()
	assert.True(t, ok)
	assert.EqualValues(t, 100, last)

	assert.False(t, w.Advance(100), "same id is not new")
	assert.False(t, w.Advance(99), "older id is not new")
	assert.True(t, w.Advance(101))
	assert.False(t, w.Advance(101), "replayed id is ignored")

	last, _ = w.Last()
	assert.EqualValues(t, 101, last)
}

func TestWatermark_AdvanceUnprimed(t *testing.T) {
	var w Watermark
	assert.True(t, w.Advance(5))
	assert.True(t, w.Primed())
}
