package timeline

import (
	"fmt"
	"time"

	galaxy "github.com/Logrui/next-galaxy-sub000"
)

// Duration bounds for a whole timeline. The loading sequence is tuned to
// feel deliberate but never sluggish; configurations outside this window
// are rejected at Initialize.
const (
	MinTotal = 3000 * time.Millisecond
	MaxTotal = 5000 * time.Millisecond
)

// Step schedules one phase inside a timeline.
type Step struct {
	// Phase is the phase announced when the step starts.
	Phase galaxy.Phase

	// Duration is how long the step runs. Must be positive.
	Duration time.Duration

	// Delay postpones the step's start relative to the end of the
	// previous step. Optional; must not be negative.
	Delay time.Duration
}

// Config describes a timeline: an ordered list of phase steps and the
// total play time.
type Config struct {
	// Steps run in order. Each step's start offset is the sum of all
	// preceding delays and durations plus its own delay.
	Steps []Step

	// Total is the full play time. Progress reaches 1.0 at Total even
	// if the scheduled steps end earlier.
	Total time.Duration
}

// DefaultConfig returns the production loading timeline.
func DefaultConfig() Config {
	return Config{
		Steps: []Step{
			{Phase: galaxy.PhaseInitializing, Duration: 200 * time.Millisecond},
			{Phase: galaxy.PhaseLoadingAssets, Duration: 800 * time.Millisecond},
			{Phase: galaxy.PhaseAnimating, Duration: 2000 * time.Millisecond},
			{Phase: galaxy.PhaseTransitioning, Duration: 1000 * time.Millisecond},
		},
		Total: 4000 * time.Millisecond,
	}
}

// validate checks the Config invariants and returns a *galaxy.ConfigError
// describing the first violation.
func (c Config) validate() error {
	if len(c.Steps) == 0 {
		return &galaxy.ConfigError{Field: "Steps", Reason: "at least one phase is required"}
	}
	if c.Total < MinTotal || c.Total > MaxTotal {
		return &galaxy.ConfigError{
			Field:  "Total",
			Reason: fmt.Sprintf("%v is outside [%v, %v]", c.Total, MinTotal, MaxTotal),
		}
	}

	var end time.Duration
	for i, s := range c.Steps {
		if !s.Phase.Valid() {
			return &galaxy.ConfigError{
				Field:  fmt.Sprintf("Steps[%d].Phase", i),
				Reason: fmt.Sprintf("invalid phase %d", uint8(s.Phase)),
			}
		}
		if s.Duration <= 0 {
			return &galaxy.ConfigError{
				Field:  fmt.Sprintf("Steps[%d].Duration", i),
				Reason: "must be positive",
			}
		}
		if s.Delay < 0 {
			return &galaxy.ConfigError{
				Field:  fmt.Sprintf("Steps[%d].Delay", i),
				Reason: "must not be negative",
			}
		}
		end += s.Delay + s.Duration
	}

	if end > c.Total {
		return &galaxy.ConfigError{
			Field:  "Total",
			Reason: fmt.Sprintf("scheduled steps end at %v, after the total %v", end, c.Total),
		}
	}
	return nil
}

// offsets returns each step's start offset from the beginning of the
// timeline. The config must be valid.
func (c Config) offsets() []time.Duration {
	offs := make([]time.Duration, len(c.Steps))
	var at time.Duration
	for i, s := range c.Steps {
		at += s.Delay
		offs[i] = at
		at += s.Duration
	}
	return offs
}
