package dispatch

import (
	"math/rand/v2"
	"time"
)

// ResolvedTiming is the timing decision for one message.
type ResolvedTiming struct {
	Enabled bool
	Delay   time.Duration
	Jitter  bool
}

// Resolve picks the timing for a category. Unknown labels and CategoryNone
// are always enabled and use the global delay and jitter flag.
func Resolve(c Category, table PolicyTable, global GlobalPolicy) ResolvedTiming {
	p, ok := table[c]
	if !ok {
		return ResolvedTiming{
			Enabled: true,
			Delay:   global.BaseDelay,
			Jitter:  global.JitterEnabled,
		}
	}

	jitter := global.JitterEnabled
	if p.Jitter != nil {
		jitter = *p.Jitter
	}
	return ResolvedTiming{
		Enabled: p.Enabled,
		Delay:   p.BaseDelay,
		Jitter:  jitter,
	}
}

// RandomFloat returns a value in [0, 1).
type RandomFloat func() float64

// FinalDelay adds a uniform draw from [0, jitterMax) when jitter is active
// and jitterMax is positive.
func (rt ResolvedTiming) FinalDelay(jitterMax time.Duration, rnd RandomFloat) time.Duration {
	if !rt.Jitter || jitterMax <= 0 {
		return rt.Delay
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	return rt.Delay + time.Duration(rnd()*float64(jitterMax))
}

// Seconds converts a fractional number of seconds to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
