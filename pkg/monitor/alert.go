package monitor

import (
	"sync"

	"github.com/MrCodeEU/drowsiguard/pkg/logging"
)

// Alerter drives the external alarm. Alert is called on every drowsy frame
// and Stop on every attentive one, so implementations must be idempotent.
type Alerter interface {
	Alert()
	Stop()
}

// LogAlerter writes alarm state changes to the log.
type LogAlerter struct {
	mu     sync.Mutex
	active bool
}

// Alert turns the alarm on.
func (a *LogAlerter) Alert() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		a.active = true
		logging.Component("alert").Warn("ALARM: driver drowsy")
	}
}

// Stop turns the alarm off.
func (a *LogAlerter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		a.active = false
		logging.Component("alert").Info("Alarm cleared")
	}
}

// Active reports whether the alarm is on.
func (a *LogAlerter) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}
