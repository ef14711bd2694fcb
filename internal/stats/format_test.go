package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0м"},
		{59 * time.Second, "0м"},
		{time.Minute, "1м"},
		{2*time.Hour + 3*time.Minute, "2ч 3м"},
		{2 * time.Hour, "2ч"},
		{26*time.Hour + 5*time.Minute, "1д 2ч 5м"},
		{48*time.Hour + 7*time.Minute, "2д 7м"},
		{-time.Hour, "0м"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}

func TestFormatHoursMinutes(t *testing.T) {
	assert.Equal(t, "0ч 0м", FormatHoursMinutes(0))
	assert.Equal(t, "26ч 3м", FormatHoursMinutes(26*time.Hour+3*time.Minute+30*time.Second))
	assert.Equal(t, "0ч 0м", FormatHoursMinutes(-time.Minute))
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "меньше минуты", FormatRemaining(30*time.Second))
	assert.Equal(t, "23ч 59м", FormatRemaining(23*time.Hour+59*time.Minute))
}
