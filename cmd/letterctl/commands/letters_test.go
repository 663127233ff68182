package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/letterbox/models"
)

func TestConditionFlags(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		flags conditionFlags
		want  models.DeliveryCondition
	}{
		{"default is random window", conditionFlags{}, models.RandomWindow{}},
		{"fixed date", conditionFlags{at: "2026-12-25T09:00:00Z"}, models.FixedDate{At: time.Date(2026, 12, 25, 9, 0, 0, 0, time.UTC)}},
		{"relative", conditionFlags{in: time.Hour}, models.FixedDate{At: now.Add(time.Hour)}},
		{"inactivity", conditionFlags{inactiveDays: 30}, models.SenderInactivity{Days: 30}},
		{"window start only", conditionFlags{windowStart: "2026-06-01T00:00:00Z"}, models.RandomWindow{Start: &start}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.condition(now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionFlags_Errors(t *testing.T) {
	now := time.Now()

	_, err := conditionFlags{at: "2026-12-25T09:00:00Z", inactiveDays: 3}.condition(now)
	assert.Error(t, err)

	_, err = conditionFlags{random: true, in: time.Hour}.condition(now)
	assert.Error(t, err)

	_, err = conditionFlags{at: "next tuesday"}.condition(now)
	assert.Error(t, err)

	_, err = conditionFlags{in: -time.Hour}.condition(now)
	assert.Error(t, err)
}

func TestDemo(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, runDemo(ctx, time.Second))
}
