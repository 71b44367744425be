// Package motion runs the control loop: it ticks the three axes on a fixed
// period and, between moves, lets targeting, firing and the idle supervisor
// act on them.
package motion

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/turretctl/turretd/internal/config"
	"github.com/turretctl/turretd/internal/debug"
	"github.com/turretctl/turretd/internal/hw/gpio"
	"github.com/turretctl/turretd/internal/hw/stepper"
	"github.com/turretctl/turretd/internal/logic/firing"
	"github.com/turretctl/turretd/internal/logic/geometry"
	"github.com/turretctl/turretd/internal/logic/targeting"
)

// Axis indices.
const (
	Draw = iota
	Tilt
	Turret
	NumAxes
)

// ErrShotTestComplete is returned by Run in shot test mode once the test shot
// has been fired and the motors powered down.
var ErrShotTestComplete = errors.New("motion: shot test complete")

// Status is a snapshot of the controller, published between moves.
type Status struct {
	Event       string           `json:"event"`
	UptimeMs    int64            `json:"uptime_ms"`
	Axes        []stepper.Status `json:"axes"`
	Sequencer   string           `json:"sequencer"`
	Shots       int              `json:"shots"`
	LastShotX   int              `json:"last_shot_x"`
	LastShotY   int              `json:"last_shot_y"`
	Homed       bool             `json:"homed"`
	PoweredDown bool             `json:"powered_down"`
	Ticks       uint64           `json:"ticks"`
	Overruns    uint64           `json:"overruns"`
}

// Controller owns the GPIO driver, the axes and the decision logic. Everything
// except Status is confined to the goroutine calling Run.
type Controller struct {
	gpio gpio.Driver
	axes [NumAxes]*stepper.Axis

	filter *targeting.Filter
	seq    *firing.Sequence
	sup    *Supervisor

	tick      uint32 // µs
	tickError uint32 // µs
	shootTest bool
	testFired bool

	now      time.Duration // monotonic, accumulated from clock deltas
	ticks    uint64
	overruns uint64
	busy     bool // an axis was moving on the last tick

	status atomic.Pointer[Status]
	notify func(Status)
}

// NewController builds the three axes from cfg and wires targeting and firing
// to them. Commands are read from src between moves. The axes start at
// position 0 wherever they physically are.
func NewController(g gpio.Driver, cfg *config.Config, src targeting.Source) (*Controller, error) {
	c := &Controller{
		gpio:      g,
		tick:      uint32(cfg.Tick() / time.Microsecond),
		tickError: uint32(cfg.Timing.TickErrorUs),
		shootTest: cfg.Defaults.ShootTest,
	}

	axes := []struct {
		name string
		cfg  config.AxisConfig
	}{
		Draw:   {"draw", cfg.DrawAxis},
		Tilt:   {"tilt", cfg.TiltAxis},
		Turret: {"turret", cfg.TurretAxis},
	}
	for i, ax := range axes {
		a, err := stepper.NewAxis(g, stepper.Config{
			Name:        ax.name,
			EnablePin:   ax.cfg.EnablePin,
			DirPin:      ax.cfg.DirPin,
			ClockPin:    ax.cfg.ClockPin,
			MaxSpeed:    ax.cfg.MaxSpeed,
			RampStretch: ax.cfg.RampStretch,
		})
		if err != nil {
			return nil, fmt.Errorf("create axes: %w", err)
		}
		c.axes[i] = a
	}

	c.seq = firing.NewSequence(c.axes[Draw], cfg.Shot.DrawSteps, cfg.Shot.DwellTicks)
	c.filter = targeting.NewFilter(src, c.axes[Turret], c.axes[Tilt], c.seq,
		geometry.NewStepsCalculator(cfg),
		targeting.Params{
			SettleSpan:    cfg.Targeting.SettleSpan,
			FireTolerance: cfg.Targeting.FireTolerance,
			Cooldown:      cfg.Cooldown(),
		})
	c.sup = NewSupervisor(cfg.HomeAfter(), cfg.PowerDownAfter())

	c.filter.Start(0)
	c.sup.Seen(0)
	c.publish("start")
	return c, nil
}

// OnStatus registers fn to receive every published snapshot. It is called on
// the control goroutine and must not block. Call before Run.
func (c *Controller) OnStatus(fn func(Status)) {
	c.notify = fn
}

// Run busy-waits on the hardware clock and calls Tick once per tick period
// until ctx is cancelled or shot test mode completes. ctx is only checked
// between moves with the shot sequencer armed, so a shot cycle always finishes. All motors are de-energized on return. Run returns nil on
// cancellation.
func (c *Controller) Run(ctx context.Context) error {
	// The busy-wait must not migrate or share its thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer c.PowerDown()

	debug.Info("Control loop running, tick %dus", c.tick)
	last := c.gpio.ReadClock()
	for {
		var now, elapsed uint32
		for {
			now = c.gpio.ReadClock()
			elapsed = now - last
			if elapsed >= c.tick {
				break
			}
		}
		last = now

		if elapsed > c.tickError && c.busy {
			c.overruns++
			debug.Overrun(elapsed, c.overruns)
		}
		c.now += time.Duration(elapsed) * time.Microsecond

		if err := c.Tick(); err != nil {
			return err
		}

		if !c.busy && c.seq.Armed() {
			select {
			case <-ctx.Done():
				debug.Info("Control loop stopped")
				return nil
			default:
			}
		}
	}
}

// Tick runs one control period: every axis advances, then, if none is moving,
// the next command is taken, the supervisor is consulted and the shot cycle
// advances.
func (c *Controller) Tick() error {
	c.ticks++
	for _, a := range c.axes {
		a.Tick()
	}
	if !c.quiescent() {
		c.busy = true
		return nil
	}
	if c.busy {
		c.busy = false
		c.publish("idle")
	}

	if c.shootTest && !c.testFired {
		if c.seq.Fire() {
			c.testFired = true
			debug.Live("Shot test: firing")
			c.publish("fire")
		}
	}

	res := c.filter.Poll(c.now)
	if res.Received && !res.Rejected {
		c.sup.Seen(c.now)
	}
	if res.Fired {
		c.publish("fire")
	}

	action := c.sup.Check(c.now)
	if action != ActionNone {
		debug.Verbose("Supervisor action: %s", action)
	}
	switch action {
	case ActionHome:
		debug.Live("No target for %v, homing", c.sup.homeAfter)
		c.axes[Tilt].SetTarget(0)
		c.axes[Turret].SetTarget(0)
		c.publish("home")
	case ActionPowerDown:
		debug.Live("No target for %v, powering down", c.sup.powerDownAfter)
		c.PowerDown()
		c.publish("power-down")
		if c.shootTest && c.seq.Shots() > 0 && c.seq.Armed() {
			debug.Info("Shot test complete")
			return ErrShotTestComplete
		}
	}

	c.seq.Tick()
	return nil
}

// PowerDown de-energizes all three drivers. Position is kept but may be lost
// if an axis is pushed while unpowered.
func (c *Controller) PowerDown() {
	for _, a := range c.axes {
		a.Disable()
	}
}

func (c *Controller) quiescent() bool {
	for _, a := range c.axes {
		if !a.Quiescent() {
			return false
		}
	}
	return true
}

func (c *Controller) publish(event string) {
	s := &Status{
		Event:       event,
		UptimeMs:    c.now.Milliseconds(),
		Axes:        make([]stepper.Status, 0, NumAxes),
		Sequencer:   c.seq.State().String(),
		Shots:       c.seq.Shots(),
		Homed:       c.sup.Homed(),
		PoweredDown: c.sup.PoweredDown(),
		Ticks:       c.ticks,
		Overruns:    c.overruns,
	}
	s.LastShotX, s.LastShotY = c.filter.LastShot()
	for _, a := range c.axes {
		s.Axes = append(s.Axes, a.Status())
	}
	c.status.Store(s)
	if c.notify != nil {
		c.notify(*s)
	}
}

// Status returns the last published snapshot. Safe for concurrent use.
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// Axis returns the axis at index i (Draw, Tilt or Turret).
func (c *Controller) Axis(i int) *stepper.Axis {
	return c.axes[i]
}

// Now returns the control loop time since start.
func (c *Controller) Now() time.Duration { return c.now }

// Overruns returns the number of ticks that exceeded the error threshold.
func (c *Controller) Overruns() uint64 { return c.overruns }
