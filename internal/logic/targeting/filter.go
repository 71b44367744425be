package targeting

import (
	"time"

	"github.com/turretctl/turretd/internal/debug"
	"github.com/turretctl/turretd/internal/link"
	"github.com/turretctl/turretd/internal/logic/geometry"
)

// Source yields the pending target command, if any, without blocking.
type Source interface {
	Poll() (link.Command, bool)
}

// Positioner accepts a new step target. *stepper.Axis implements it.
type Positioner interface {
	SetTarget(target int)
}

// Trigger starts a shot. Fire returns false if a shot is already in progress.
type Trigger interface {
	Fire() bool
}

// Params holds the dedup thresholds, in detector units.
type Params struct {
	SettleSpan    int           // spans below this are stable
	FireTolerance int           // stable within this of the last shot is suppressed
	Cooldown      time.Duration // minimum time between shots
}

// Result describes what one Poll did.
type Result struct {
	Received   bool         // a command was taken from the source
	Rejected   bool         // the command was out of range and ignored
	Command    link.Command // the resolved absolute command
	Stable     bool         // the recent history is within SettleSpan
	Suppressed bool         // stable, but too close to the last shot
	Fired      bool         // a shot was started
}

// Filter aims the turret and tilt axes at incoming targets and decides when to
// fire. It is not safe for concurrent use; the control loop owns it.
type Filter struct {
	src     Source
	turret  Positioner
	tilt    Positioner
	trigger Trigger
	steps   *geometry.StepsCalculator
	params  Params

	history History

	lastX, lastY         int // last absolute command, base for deltas
	lastShotX, lastShotY int
	lastFired            time.Duration
}

// noShot keeps the first stable target outside FireTolerance of any real
// position.
const noShot = -1000

func NewFilter(src Source, turret, tilt Positioner, trigger Trigger, steps *geometry.StepsCalculator, p Params) *Filter {
	return &Filter{
		src:       src,
		turret:    turret,
		tilt:      tilt,
		trigger:   trigger,
		steps:     steps,
		params:    p,
		lastShotX: noShot,
		lastShotY: noShot,
	}
}

// Start sets the reference time for the first cooldown.
func (f *Filter) Start(now time.Duration) {
	f.lastFired = now
}

// Poll takes at most one command from the source, aims at it and fires if the
// target has been stable, is not the one last shot at, and the cooldown has
// elapsed. now is the monotonic control loop time.
func (f *Filter) Poll(now time.Duration) Result {
	c, ok := f.src.Poll()
	if !ok {
		return Result{}
	}
	r := Result{Received: true}

	if c.Delta {
		c.X += f.lastX
		c.Y += f.lastY
		c.Delta = false
	}
	r.Command = c
	if !link.InRange(c.X, c.Y) {
		debug.Warn("Target (%d, %d) outside 0-%d, ignored", c.X, c.Y, link.MaxCoord)
		r.Rejected = true
		return r
	}
	f.lastX, f.lastY = c.X, c.Y

	turretSteps := f.steps.TurretStepsFromX(c.X)
	tiltSteps := f.steps.TiltStepsFromY(c.Y)
	f.turret.SetTarget(turretSteps)
	f.tilt.SetTarget(tiltSteps)
	debug.Target(c.X, c.Y, turretSteps, tiltSteps)

	f.history.Push(c.X, c.Y)

	if c.Fire {
		if f.trigger.Fire() {
			f.record(c.X, c.Y, now, "forced")
			r.Fired = true
		}
		return r
	}

	if !f.history.Full() {
		return r
	}
	spanX, spanY := f.history.Spans()
	if spanX >= f.params.SettleSpan || spanY >= f.params.SettleSpan {
		return r
	}
	r.Stable = true

	if abs(c.X-f.lastShotX) <= f.params.FireTolerance && abs(c.Y-f.lastShotY) <= f.params.FireTolerance {
		debug.Verbose("Target (%d, %d) already shot at, suppressed", c.X, c.Y)
		r.Suppressed = true
		return r
	}
	if now-f.lastFired <= f.params.Cooldown {
		return r
	}
	if f.trigger.Fire() {
		f.record(c.X, c.Y, now, "stable")
		r.Fired = true
	}
	return r
}

func (f *Filter) record(x, y int, now time.Duration, reason string) {
	f.lastShotX, f.lastShotY = x, y
	f.lastFired = now
	debug.Shot(x, y, reason)
}

// LastShot returns the coordinates of the last shot, or (-1000, -1000) if
// none has been fired.
func (f *Filter) LastShot() (x, y int) {
	return f.lastShotX, f.lastShotY
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
