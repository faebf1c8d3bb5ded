package ratelimiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnlimitedAlwaysAllows(t *testing.T) {
	rl := New(0, 0)
	for i := 0; i < 10000; i++ {
		assert.True(t, rl.Allow())
	}
}

func TestBurstExhaustion(t *testing.T) {
	rl := New(1, 5)

	allowed := 0
	for i := 0; i < 100; i++ {
		if rl.Allow() {
			allowed++
		}
	}
	// The burst drains immediately; at most a token or two refill during the
	// loop.
	assert.GreaterOrEqual(t, allowed, 5)
	assert.Less(t, allowed, 10)
}

func TestZeroBurstDefaultsToRate(t *testing.T) {
	rl := New(50, 0)
	assert.True(t, rl.Allow())
}
