package service

import (
	"sync"
	"time"

	"voting-ledger/models"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// SessionGate decides whether votes may be accepted. The window is fixed at
// construction; only the manual active flag can change, and only to false.
type SessionGate struct {
	startTime time.Time
	endTime   time.Time
	isActive  bool
	clock     Clock
	mu        sync.RWMutex
}

func NewSessionGate(session models.VotingSession, clock Clock) *SessionGate {
	if clock == nil {
		clock = time.Now
	}
	return &SessionGate{
		startTime: session.StartTime,
		endTime:   session.EndTime,
		isActive:  session.IsActive,
		clock:     clock,
	}
}

// IsOpen reports whether a vote arriving at now would be admitted. Both ends of
// the window are inclusive.
func (sg *SessionGate) IsOpen(now time.Time) bool {
	sg.mu.RLock()
	defer sg.mu.RUnlock()
	return sg.isActive && !now.Before(sg.startTime) && !now.After(sg.endTime)
}

func (sg *SessionGate) IsVotingOpen() bool {
	return sg.IsOpen(sg.clock())
}

// End clears the active flag. It returns true only for the call that actually
// closed the session.
func (sg *SessionGate) End() bool {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	wasActive := sg.isActive
	sg.isActive = false
	return wasActive
}

func (sg *SessionGate) Active() bool {
	sg.mu.RLock()
	defer sg.mu.RUnlock()
	return sg.isActive
}

func (sg *SessionGate) Window() (time.Time, time.Time) {
	return sg.startTime, sg.endTime
}
