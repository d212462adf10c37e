// Package clock provee implementaciones de ports.Clock: el reloj de pared y
// uno manual para simulaciones y tests, donde el tiempo solo avanza cuando
// se le pide.
package clock

import (
	"sync"
	"time"
)

// System devuelve la hora real en UTC.
type System struct{}

// Now implements ports.Clock.
func (System) Now() time.Time { return time.Now().UTC() }

// Manual es un reloj que solo se mueve con Advance o Set.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual crea un reloj parado en start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// Now implements ports.Clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance mueve el reloj d hacia delante. Un d negativo se ignora: el tiempo no retrocede.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now = m.now.Add(d)
	}
	return m.now
}

// Set fija el reloj en t si t no es anterior a la hora actual.
func (m *Manual) Set(t time.Time) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.After(m.now) {
		m.now = t.UTC()
	}
	return m.now
}
