package motion

import "math"

// Idle motion defaults.
const (
	DefaultBobAmplitude   = 0.5
	DefaultSwayAmplitude  = 0.5
	DefaultBobFrequency   = 1.0
	DefaultSwayFrequency  = 0.75
	DefaultMicroAmplitude = 0.5
	DefaultNoiseSpeed     = 0.5
	DefaultZoomDuration   = 10.0
	DefaultZoomScale      = 1.0

	noiseOffsetRange = 1000.0
)

// IdleConfig controls the idle body motion. Amplitudes are in pixels and
// frequencies in hertz.
type IdleConfig struct {
	BobAmplitude   float64 `toml:"bob_amplitude"`
	SwayAmplitude  float64 `toml:"sway_amplitude"`
	BobFrequency   float64 `toml:"bob_frequency"`
	SwayFrequency  float64 `toml:"sway_frequency"`
	MicroAmplitude float64 `toml:"micro_amplitude"`
	NoiseSpeed     float64 `toml:"noise_speed"`
	ZoomDuration   float64 `toml:"zoom_duration"`
	ZoomStartScale float64 `toml:"zoom_start_scale"`
	ZoomEndScale   float64 `toml:"zoom_end_scale"`
}

// DefaultIdleConfig returns a gentle bob and sway without zoom.
func DefaultIdleConfig() IdleConfig {
	return IdleConfig{
		BobAmplitude:   DefaultBobAmplitude,
		SwayAmplitude:  DefaultSwayAmplitude,
		BobFrequency:   DefaultBobFrequency,
		SwayFrequency:  DefaultSwayFrequency,
		MicroAmplitude: DefaultMicroAmplitude,
		NoiseSpeed:     DefaultNoiseSpeed,
		ZoomDuration:   DefaultZoomDuration,
		ZoomStartScale: DefaultZoomScale,
		ZoomEndScale:   DefaultZoomScale,
	}
}

// Offset is the idle displacement and scale factor at one instant.
type Offset struct {
	X     float64
	Y     float64
	Scale float64
}

// Idle evaluates idle motion for one session. Its constants are drawn once
// from the seed; At holds no other state.
type Idle struct {
	cfg    IdleConfig
	phase  float64
	noiseX float64
	noiseY float64
}

// NewIdle draws the session's phase and noise offsets from seed.
func NewIdle(seed uint64, cfg IdleConfig) *Idle {
	rng := newSource(seed, idleStream)

	return &Idle{
		cfg:    cfg,
		phase:  uniform(rng, 0, 2*math.Pi),
		noiseX: uniform(rng, 0, noiseOffsetRange),
		noiseY: uniform(rng, 0, noiseOffsetRange),
	}
}

// At returns the offset at t seconds.
func (m *Idle) At(t float64) Offset {
	bob := math.Sin(2*math.Pi*m.cfg.BobFrequency*t+m.phase) * m.cfg.BobAmplitude
	sway := math.Sin(2*math.Pi*m.cfg.SwayFrequency*t+m.phase) * m.cfg.SwayAmplitude

	noise := t * m.cfg.NoiseSpeed
	microX := math.Sin(noise+m.noiseX) * m.cfg.MicroAmplitude
	microY := math.Sin(noise+m.noiseY) * m.cfg.MicroAmplitude

	return Offset{
		X:     sway + microX,
		Y:     bob + microY,
		Scale: m.zoom(t),
	}
}

func (m *Idle) zoom(t float64) float64 {
	progress := 1.0
	if m.cfg.ZoomDuration > 0 {
		progress = math.Min(math.Max(t/m.cfg.ZoomDuration, 0), 1)
	}

	start := m.cfg.ZoomStartScale
	end := m.cfg.ZoomEndScale

	if start == 0 && end == 0 {
		return 1
	}

	return start + (end-start)*progress
}
