package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesPerFailure(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	assert.Equal(t, 30*time.Second, Backoff(0, base, max))
	assert.Equal(t, time.Minute, Backoff(1, base, max))
	assert.Equal(t, 2*time.Minute, Backoff(2, base, max))
	assert.Equal(t, 4*time.Minute, Backoff(3, base, max))
}

func TestBackoff_Cap(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	assert.Equal(t, max, Backoff(7, base, max))
	assert.Equal(t, max, Backoff(100, base, max))
	// Large retry counts must not overflow past the cap.
	assert.Equal(t, max, Backoff(1000, base, max))
}

func TestBackoff_Monotonic(t *testing.T) {
	base := time.Second
	max := time.Hour

	prev := time.Duration(0)
	for i := 0; i < 64; i++ {
		d := Backoff(i, base, max)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, max)
		prev = d
	}
}

func TestBackoff_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), Backoff(3, 0, time.Hour))
}
