package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// AxisConfig holds the wiring and motion tuning of one stepper axis.
// Pins are BCM numbers. Enable is active LOW (LOW=energized).
type AxisConfig struct {
	EnablePin   int `yaml:"enable_pin"`
	DirPin      int `yaml:"dir_pin"`
	ClockPin    int `yaml:"clock_pin"`
	MaxSpeed    int `yaml:"max_speed"`    // 1-128, same scale as the ramp table
	RampStretch int `yaml:"ramp_stretch"` // >= 1, ticks-per-ramp-entry multiplier
	// ScaleMilli converts detector units (0-1000) to steps: steps = units * ScaleMilli / 1000.
	// Unused for the draw axis.
	ScaleMilli int `yaml:"scale_milli"`
}

// TimingConfig holds the control loop and inactivity thresholds.
type TimingConfig struct {
	TickUs           int `yaml:"tick_us"`             // control loop period
	TickErrorUs      int `yaml:"tick_error_us"`       // overrun threshold
	HomeAfterMs      int `yaml:"home_after_ms"`       // no target for this long: return home
	PowerDownAfterMs int `yaml:"power_down_after_ms"` // no target for this long: de-energize
}

// TargetingConfig holds the dedup filter parameters, in detector units.
type TargetingConfig struct {
	SettleSpan    int `yaml:"settle_span"`    // history spans below this are stable
	FireTolerance int `yaml:"fire_tolerance"` // stable within this of the last shot is suppressed
	CooldownMs    int `yaml:"cooldown_ms"`    // minimum time between shots
}

// ShotConfig describes the draw/dwell/retract cycle.
type ShotConfig struct {
	DrawSteps  int `yaml:"draw_steps"`  // draw axis position that releases the projectile
	DwellTicks int `yaml:"dwell_ticks"` // idle ticks to hold the drawn position
}

// LinkConfig describes the inbound target command channel.
type LinkConfig struct {
	ListenAddr string `yaml:"listen_addr"` // UDP address, e.g. ":7777"
}

// HardwareConfig locates the peripheral register blocks.
type HardwareConfig struct {
	PeripheralBase uint32 `yaml:"peripheral_base"` // 0x3f000000 on Pi 2/3
}

// DefaultsConfig contains generic runtime switches.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	ShootTest  bool `yaml:"shoot_test"`  // fire once at startup, exit after power down
}

// Config aggregates all application configuration.
type Config struct {
	DrawAxis   AxisConfig      `yaml:"draw_axis"`
	TiltAxis   AxisConfig      `yaml:"tilt_axis"`
	TurretAxis AxisConfig      `yaml:"turret_axis"`
	Timing     TimingConfig    `yaml:"timing"`
	Targeting  TargetingConfig `yaml:"targeting"`
	Shot       ShotConfig      `yaml:"shot"`
	Link       LinkConfig      `yaml:"link"`
	Hardware   HardwareConfig  `yaml:"hardware"`
	Defaults   DefaultsConfig  `yaml:"defaults"`
}

// Default returns the configuration of the reference rig.
func Default() *Config {
	return &Config{
		DrawAxis:   AxisConfig{EnablePin: 2, DirPin: 3, ClockPin: 4, MaxSpeed: 128, RampStretch: 1},
		TiltAxis:   AxisConfig{EnablePin: 15, DirPin: 17, ClockPin: 18, MaxSpeed: 50, RampStretch: 10, ScaleMilli: 3110},
		TurretAxis: AxisConfig{EnablePin: 22, DirPin: 23, ClockPin: 24, MaxSpeed: 100, RampStretch: 12, ScaleMilli: -3888},
		Timing: TimingConfig{
			TickUs:           200,
			TickErrorUs:      280,
			HomeAfterMs:      5000,
			PowerDownAfterMs: 8000,
		},
		Targeting: TargetingConfig{SettleSpan: 5, FireTolerance: 3, CooldownMs: 8000},
		Shot:      ShotConfig{DrawSteps: 875, DwellTicks: 150},
		Link:      LinkConfig{ListenAddr: ":7777"},
		Hardware:  HardwareConfig{PeripheralBase: 0x3f000000},
	}
}

// MaxConfigFileBytes caps the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 * 1024

// Load reads a YAML file on top of Default and returns the validated configuration.
// Keys missing from the file keep their default value.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and pin assignments.
func (c *Config) Validate() error {
	axes := []struct {
		name string
		a    AxisConfig
	}{
		{"draw_axis", c.DrawAxis},
		{"tilt_axis", c.TiltAxis},
		{"turret_axis", c.TurretAxis},
	}

	used := make(map[int]string)
	for _, ax := range axes {
		if ax.a.MaxSpeed < 1 || ax.a.MaxSpeed > 128 {
			return fmt.Errorf("%s.max_speed must be between 1 and 128, got %d", ax.name, ax.a.MaxSpeed)
		}
		if ax.a.RampStretch < 1 {
			return fmt.Errorf("%s.ramp_stretch must be >= 1, got %d", ax.name, ax.a.RampStretch)
		}
		for _, pin := range []int{ax.a.EnablePin, ax.a.DirPin, ax.a.ClockPin} {
			if pin < 0 || pin > 31 {
				return fmt.Errorf("%s: pin %d out of range 0-31", ax.name, pin)
			}
			if other, dup := used[pin]; dup {
				return fmt.Errorf("%s: pin %d already used by %s", ax.name, pin, other)
			}
			used[pin] = ax.name
		}
	}

	if c.Timing.TickUs <= 0 {
		return fmt.Errorf("timing.tick_us must be > 0")
	}
	if c.Timing.TickErrorUs < c.Timing.TickUs {
		return fmt.Errorf("timing.tick_error_us (%d) must be >= tick_us (%d)", c.Timing.TickErrorUs, c.Timing.TickUs)
	}
	if c.Timing.HomeAfterMs <= 0 {
		return fmt.Errorf("timing.home_after_ms must be > 0")
	}
	if c.Timing.PowerDownAfterMs <= c.Timing.HomeAfterMs {
		return fmt.Errorf("timing.power_down_after_ms (%d) must be > home_after_ms (%d)",
			c.Timing.PowerDownAfterMs, c.Timing.HomeAfterMs)
	}
	if c.Targeting.SettleSpan <= 0 {
		return fmt.Errorf("targeting.settle_span must be > 0")
	}
	if c.Targeting.FireTolerance < 0 {
		return fmt.Errorf("targeting.fire_tolerance must be >= 0")
	}
	if c.Targeting.CooldownMs < 0 {
		return fmt.Errorf("targeting.cooldown_ms must be >= 0")
	}
	if c.Shot.DrawSteps <= 0 {
		return fmt.Errorf("shot.draw_steps must be > 0")
	}
	if c.Shot.DwellTicks <= 0 {
		return fmt.Errorf("shot.dwell_ticks must be > 0")
	}
	if c.Link.ListenAddr == "" {
		return fmt.Errorf("link.listen_addr is required")
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// ValidateConfigPath rejects paths that are not a .yaml file directly inside a
// "configs" directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Tick returns the control loop period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Timing.TickUs) * time.Microsecond
}

// HomeAfter returns how long without a target before homing.
func (c *Config) HomeAfter() time.Duration {
	return time.Duration(c.Timing.HomeAfterMs) * time.Millisecond
}

// PowerDownAfter returns how long without a target before de-energizing.
func (c *Config) PowerDownAfter() time.Duration {
	return time.Duration(c.Timing.PowerDownAfterMs) * time.Millisecond
}

// Cooldown returns the minimum time between two shots.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Targeting.CooldownMs) * time.Millisecond
}
