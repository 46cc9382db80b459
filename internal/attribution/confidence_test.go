package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepDecay(t *testing.T) {
	tests := []struct {
		name  string
		hours float64
		want  float64
	}{
		{name: "immediately after click", hours: 0, want: 1.0},
		{name: "within twelve hours", hours: 10, want: 1.0},
		{name: "exactly twelve hours", hours: 12, want: 1.0},
		{name: "just past twelve hours", hours: 12.01, want: 0.6},
		{name: "within a day", hours: 20, want: 0.6},
		{name: "exactly one day", hours: 24, want: 0.6},
		{name: "second day", hours: 30, want: 0.3},
		{name: "exactly two days", hours: 48, want: 0.3},
		{name: "past two days", hours: 48.5, want: 0},
		{name: "a week later", hours: 168, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, StepDecay(tt.hours), 1e-9)
		})
	}
}
