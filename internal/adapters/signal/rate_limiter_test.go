package signal

import (
	"testing"
	"time"

	"github.com/dkeye/roomrelay/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(3, time.Second)
	rl.now = func() time.Time { return now }

	for j := 0; j < 3; j++ {
		assert.True(t, rl.Allow("c1"))
	}
	assert.False(t, rl.Allow("c1"))
	assert.True(t, rl.Allow("c2"), "limits are per connection")

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("c1"))
}

func TestRateLimiter_Forget(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	assert.True(t, rl.Allow(domain.ConnID("c1")))
	assert.False(t, rl.Allow("c1"))
	assert.Equal(t, 1, rl.tracked())

	rl.Forget("c1")
	assert.Equal(t, 0, rl.tracked())
	assert.True(t, rl.Allow("c1"))
}
