package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"voting-ledger/models"
	"voting-ledger/service"
)

func TestSessionGateIsOpen(t *testing.T) {
	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	gate := service.NewSessionGate(models.VotingSession{
		StartTime: start,
		EndTime:   end,
		IsActive:  true,
	}, func() time.Time { return start.Add(time.Hour) })

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before start", start.Add(-time.Second), false},
		{"at start", start, true},
		{"inside", start.Add(12 * time.Hour), true},
		{"at end", end, true},
		{"after end", end.Add(time.Nanosecond), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.IsOpen(tt.now))
		})
	}

	assert.True(t, gate.IsVotingOpen())
	assert.True(t, gate.Active())
	assert.True(t, gate.End())
	assert.False(t, gate.End())
	assert.False(t, gate.Active())
	assert.False(t, gate.IsOpen(start.Add(time.Hour)))
	assert.False(t, gate.IsVotingOpen())
}

func TestSessionGateDefaultsToWallClock(t *testing.T) {
	now := time.Now()
	gate := service.NewSessionGate(models.VotingSession{
		StartTime: now.Add(-time.Minute),
		EndTime:   now.Add(time.Hour),
		IsActive:  true,
	}, nil)
	assert.True(t, gate.IsVotingOpen())
}
