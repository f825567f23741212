package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTodayTruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	fake := NewFakeClock(time.Date(2025, 7, 2, 3, 30, 0, 0, loc))

	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), Today(fake))

	fake.AdvanceDays(1)
	assert.Equal(t, time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC), Today(fake))
}
