package observability

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseShopping Phase = "shopping"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentPhase  Phase
	ActiveItem    string
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentPhase:  PhaseIdle,
	LastHeartbeat: time.Now(),
}

// SetStatus updates the global system status.
func SetStatus(phase Phase, item string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentPhase = phase
	globalStatus.ActiveItem = item
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Phase, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentPhase, globalStatus.ActiveItem, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
