package motion

import (
	"errors"
	"fmt"

	"github.com/book-expert/toon-service/internal/timeline"
)

// Eye states, each naming one image of the rig's blink layer.
const (
	Open   = "open"
	Half   = "half"
	Closed = "closed"
)

// Blink defaults, in seconds.
const (
	DefaultMinInterval   = 2.0
	DefaultMaxInterval   = 6.0
	DefaultPhaseDuration = 0.05
)

var (
	// ErrInvalidInterval is returned when the blink interval range is empty
	// or not positive.
	ErrInvalidInterval = errors.New("blink interval must satisfy 0 < min <= max")

	// ErrInvalidPhase is returned for phases without a state or with a
	// non-positive duration.
	ErrInvalidPhase = errors.New("blink phase needs a state and a positive duration")
)

// Phase is one eye state held for a fixed duration within a blink.
type Phase struct {
	State    string  `toml:"state"`
	Duration float64 `toml:"duration"`
}

// BlinkConfig controls blink schedule generation.
type BlinkConfig struct {
	MinInterval float64 `toml:"min_interval"`
	MaxInterval float64 `toml:"max_interval"`
	Phases      []Phase `toml:"phases"`
}

// DefaultBlinkConfig blinks every two to six seconds through
// half -> closed -> half before the eyes open again.
func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		MinInterval: DefaultMinInterval,
		MaxInterval: DefaultMaxInterval,
		Phases: []Phase{
			{State: Half, Duration: DefaultPhaseDuration},
			{State: Closed, Duration: DefaultPhaseDuration},
			{State: Half, Duration: DefaultPhaseDuration},
		},
	}
}

// Validate checks the interval range and every phase.
func (c BlinkConfig) Validate() error {
	if c.MinInterval <= 0 || c.MaxInterval < c.MinInterval {
		return fmt.Errorf("%w: min %.3f max %.3f", ErrInvalidInterval, c.MinInterval, c.MaxInterval)
	}

	for i, phase := range c.Phases {
		if phase.State == "" || phase.Duration <= 0 {
			return fmt.Errorf("%w: phase %d", ErrInvalidPhase, i)
		}
	}

	return nil
}

// Length returns the total duration of one blink.
func (c BlinkConfig) Length() float64 {
	total := 0.0
	for _, phase := range c.Phases {
		total += phase.Duration
	}

	return total
}

// BlinkSchedule is the precomputed list of blink phases for one render.
// Outside every phase the eyes are open.
type BlinkSchedule struct {
	phases timeline.Track[string]
	starts []float64
}

// GenerateBlinks draws blink start times from seed: starting at zero, each
// blink begins a uniform(min, max) interval after the previous blink began,
// until the start passes duration.
func GenerateBlinks(seed uint64, duration float64, cfg BlinkConfig) (*BlinkSchedule, error) {
	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	rng := newSource(seed, blinkStream)
	schedule := &BlinkSchedule{}
	current := 0.0

	for {
		start := current + uniform(rng, cfg.MinInterval, cfg.MaxInterval)
		if start >= duration {
			break
		}

		schedule.starts = append(schedule.starts, start)

		at := start
		for _, phase := range cfg.Phases {
			schedule.phases = append(schedule.phases, timeline.Event[string]{
				Start: at,
				End:   at + phase.Duration,
				Value: phase.State,
			})
			at += phase.Duration
		}

		current = start
	}

	return schedule, nil
}

// State returns the eye state at t.
func (s *BlinkSchedule) State(t float64) string {
	return s.phases.ValueAt(t, Open)
}

// Starts returns the blink start times in ascending order.
func (s *BlinkSchedule) Starts() []float64 {
	out := make([]float64, len(s.starts))
	copy(out, s.starts)

	return out
}

// Track returns the schedule as a track of eye-state events.
func (s *BlinkSchedule) Track() timeline.Track[string] {
	return s.phases.Sorted()
}
