package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/predmarket/internal/adapters/clock"
	"github.com/alejandrodnm/predmarket/internal/ports"
)

var _ ports.Clock = clock.System{}
var _ ports.Clock = (*clock.Manual)(nil)

func TestManual_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewManual(start)
	assert.Equal(t, start, c.Now())

	c.Advance(86400 * time.Second)
	assert.Equal(t, start.Add(24*time.Hour), c.Now())

	// No retrocede
	c.Advance(-time.Hour)
	c.Set(start)
	assert.Equal(t, start.Add(24*time.Hour), c.Now())

	c.Set(start.Add(48 * time.Hour))
	assert.Equal(t, start.Add(48*time.Hour), c.Now())
}

func TestSystem_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, clock.System{}.Now().Location())
}
