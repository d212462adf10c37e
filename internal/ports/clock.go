package ports

import "time"

// Clock is the execution environment's notion of "now". Close times and
// resolution are gated on it, never on an internal timer.
type Clock interface {
	Now() time.Time
}
