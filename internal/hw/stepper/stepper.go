package stepper

import (
	"fmt"

	"github.com/turretctl/turretd/internal/debug"
	"github.com/turretctl/turretd/internal/hw/gpio"
)

const (
	// DwellTicks is the settle time after an axis reaches its target before it
	// reports quiescent.
	DwellTicks = 20

	startCountDown = 127 // first half-cycle starts with the clock low
	stepPeriod     = 256 // CountDown span of one full step
	pulseHigh      = 128 // CountDown at or above this: clock line high
	startSettle    = 1   // ticks between setting DIR and the first clock edge
)

// State is the phase of an axis.
type State int

const (
	Idle     State = iota // Speed == 0, Wait == 0
	Starting              // enabled and direction set, waiting one tick before stepping
	Stepping              // Speed > 0, CountDown advancing
	Dwelling              // target reached, Wait counting down
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Stepping:
		return "stepping"
	case Dwelling:
		return "dwelling"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the hardware configuration for a stepper axis.
type Config struct {
	Name        string
	EnablePin   int // A4988 ENABLE pin (BCM). Active LOW (LOW=enabled).
	DirPin      int
	ClockPin    int
	MaxSpeed    int // 1-128
	RampStretch int // >= 1; 0 is treated as 1
}

// Axis drives one stepper through a trapezoidal velocity profile, one Tick at
// a time. It has no position feedback: Position only advances when a modelled
// step cycle completes.
type Axis struct {
	name string
	gpio gpio.Driver

	enable gpio.Lines
	dir    gpio.Lines
	clock  gpio.Lines

	maxSpeed    int
	rampStretch int

	state     State
	position  int
	target    int
	speed     int
	direction int
	rampIndex int
	countDown int
	wait      int
	clockHigh bool
}

// NewAxis configures the three lines as outputs and energizes the driver so
// the axis holds its boot position, which is taken as 0.
func NewAxis(g gpio.Driver, cfg Config) (*Axis, error) {
	for _, pin := range []int{cfg.EnablePin, cfg.DirPin, cfg.ClockPin} {
		if err := g.ConfigureOutput(pin); err != nil {
			return nil, fmt.Errorf("axis %s: configure pin %d: %w", cfg.Name, pin, err)
		}
	}

	stretch := cfg.RampStretch
	if stretch < 1 {
		stretch = 1
	}
	maxSpeed := cfg.MaxSpeed
	if maxSpeed < 1 || maxSpeed > RampTable[NumRampSteps-1] {
		return nil, fmt.Errorf("axis %s: max speed %d out of range 1-%d", cfg.Name, maxSpeed, RampTable[NumRampSteps-1])
	}

	a := &Axis{
		name:        cfg.Name,
		gpio:        g,
		enable:      gpio.Line(cfg.EnablePin),
		dir:         gpio.Line(cfg.DirPin),
		clock:       gpio.Line(cfg.ClockPin),
		maxSpeed:    maxSpeed,
		rampStretch: stretch,
		direction:   1,
	}

	g.Clear(a.clock)
	g.Clear(a.enable)
	return a, nil
}

// Tick advances the axis by one scheduler tick.
func (a *Axis) Tick() {
	switch a.state {
	case Idle:
		a.tickIdle()
	case Starting:
		a.tickStarting()
	case Stepping:
		a.tickStepping()
	case Dwelling:
		a.tickDwelling()
	}
}

func (a *Axis) tickIdle() {
	if a.position == a.target {
		return
	}

	// Active LOW: clearing the enable line energizes the driver.
	a.gpio.Clear(a.enable)
	if a.target > a.position {
		a.gpio.Set(a.dir)
		a.direction = 1
	} else {
		a.gpio.Clear(a.dir)
		a.direction = -1
	}

	a.rampIndex = 0
	a.speed = RampTable[0]
	if a.speed > a.maxSpeed {
		a.speed = a.maxSpeed
	}
	a.countDown = startCountDown
	a.wait = startSettle
	a.state = Starting
	debug.Trace("axis %s: start %d -> %d", a.name, a.position, a.target)
}

func (a *Axis) tickStarting() {
	a.wait--
	if a.wait <= 0 {
		a.wait = 0
		a.state = Stepping
	}
}

func (a *Axis) tickStepping() {
	if a.position == a.target {
		if a.clockHigh {
			a.gpio.Clear(a.clock)
			a.clockHigh = false
		}
		a.speed = 0
		a.state = Idle
		return
	}

	a.countDown -= a.speed
	if a.countDown >= 0 {
		if a.countDown < pulseHigh && a.clockHigh {
			a.gpio.Clear(a.clock)
			a.clockHigh = false
		}
		return
	}

	// A full step cycle has completed.
	a.position += a.direction
	if a.rampIndex < a.rampLen()-1 {
		a.rampIndex++
	}
	remaining := a.target - a.position
	if remaining < 0 {
		remaining = -remaining
	}
	a.speed = a.rampSpeed(remaining)

	// Every completed step cycle ends on a rising clock edge, including the
	// last one, so the driver sees exactly one pulse per Position change.
	a.gpio.Set(a.clock)
	a.clockHigh = true

	if remaining == 0 {
		a.wait = DwellTicks
		a.state = Dwelling
		return
	}
	a.countDown += stepPeriod
}

func (a *Axis) tickDwelling() {
	if a.clockHigh {
		a.gpio.Clear(a.clock)
		a.clockHigh = false
	}
	if a.wait > 0 {
		a.wait--
		return
	}
	a.speed = 0
	a.state = Idle
}

// SetTarget sets the position the axis moves to once it is idle.
func (a *Axis) SetTarget(target int) {
	a.target = target
}

// Disable de-energizes the driver (ENABLE=HIGH). The motor freewheels and may
// lose position. The next move re-energizes it.
func (a *Axis) Disable() {
	a.gpio.Set(a.enable)
}

// EnableLine returns the axis' enable line mask.
func (a *Axis) EnableLine() gpio.Lines {
	return a.enable
}

// Quiescent reports zero speed and no pending settle ticks.
func (a *Axis) Quiescent() bool {
	return a.speed == 0 && a.wait == 0
}

// Settled reports a quiescent axis sitting on its target.
func (a *Axis) Settled() bool {
	return a.Quiescent() && a.position == a.target
}

func (a *Axis) Name() string { return a.name }
func (a *Axis) State() State { return a.state }
func (a *Axis) Position() int { return a.position }
func (a *Axis) Target() int { return a.target }
func (a *Axis) Speed() int { return a.speed }
func (a *Axis) MaxSpeed() int { return a.maxSpeed }
func (a *Axis) Direction() int { return a.direction }
func (a *Axis) RampIndex() int { return a.rampIndex }
func (a *Axis) RampStretch() int { return a.rampStretch }
func (a *Axis) Wait() int { return a.wait }

// Status is a point-in-time copy of an axis for reporting.
type Status struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Position int    `json:"position"`
	Target   int    `json:"target"`
	Speed    int    `json:"speed"`
}

// Status returns a copy of the axis' reportable state.
func (a *Axis) Status() Status {
	return Status{
		Name:     a.name,
		State:    a.state.String(),
		Position: a.position,
		Target:   a.target,
		Speed:    a.speed,
	}
}
