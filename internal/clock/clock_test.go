package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfMonth(t *testing.T) {
	got := StartOfMonth(time.Date(2026, time.March, 17, 15, 4, 5, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, time.January, 31, 23, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(2 * time.Hour)
	assert.Equal(t, time.February, c.Now().Month())
}
