// Package energy keeps a running per-device energy estimate derived from the
// instantaneous power readings each sync cycle reports.
package energy

import (
	"sync"
	"time"

	"github.com/joshp123/godaikin/internal/cloud"
)

// Meter integrates power over wall-clock time into cumulative kWh totals.
// Totals live for the process lifetime; they reset on restart.
type Meter struct {
	mu     sync.Mutex
	ledger map[cloud.DeviceID]*entry
}

type entry struct {
	totalKWh float64
	powerW   float64
	at       time.Time
}

func NewMeter() *Meter {
	return &Meter{ledger: make(map[cloud.DeviceID]*entry)}
}

// Accumulate folds one power sample into the device's total and returns the
// new cumulative kWh. The first sample for a device establishes the baseline
// and contributes nothing. Later samples add the energy the device drew at
// the previously reported power across the elapsed interval (left-rule
// approximation, accurate at the sync cadence).
func (m *Meter) Accumulate(id cloud.DeviceID, powerW float64, now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.ledger[id]
	if !ok {
		m.ledger[id] = &entry{powerW: powerW, at: now}
		return 0
	}

	elapsed := now.Sub(e.at).Hours()
	if elapsed > 0 && e.powerW > 0 {
		e.totalKWh += e.powerW / 1000 * elapsed
	}
	e.powerW = powerW
	e.at = now
	return e.totalKWh
}

// Total returns the cumulative kWh for a device, 0 when nothing has been
// accumulated yet.
func (m *Meter) Total(id cloud.DeviceID) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.ledger[id]; ok {
		return e.totalKWh
	}
	return 0
}

// Totals returns a copy of every device's cumulative kWh.
func (m *Meter) Totals() map[cloud.DeviceID]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[cloud.DeviceID]float64, len(m.ledger))
	for id, e := range m.ledger {
		totals[id] = e.totalKWh
	}
	return totals
}
