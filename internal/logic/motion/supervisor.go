package motion

import "time"

// Action is what the supervisor asks the controller to do on an idle tick.
type Action int

const (
	ActionNone Action = iota
	ActionHome
	ActionPowerDown
)

func (a Action) String() string {
	switch a {
	case ActionHome:
		return "home"
	case ActionPowerDown:
		return "power-down"
	default:
		return "none"
	}
}

// Supervisor watches for targets going quiet. After homeAfter without a
// target it asks for the aiming axes to return home, then after
// powerDownAfter (both measured from the last target) for the motors to be
// de-energized. Each action is requested once per quiet period.
type Supervisor struct {
	homeAfter      time.Duration
	powerDownAfter time.Duration

	lastSeen    time.Duration
	homed       bool
	poweredDown bool
}

func NewSupervisor(homeAfter, powerDownAfter time.Duration) *Supervisor {
	return &Supervisor{homeAfter: homeAfter, powerDownAfter: powerDownAfter}
}

// Seen records a target at now and re-arms both actions.
func (s *Supervisor) Seen(now time.Duration) {
	s.lastSeen = now
	s.homed = false
	s.poweredDown = false
}

// Check returns the action due at now, if any.
func (s *Supervisor) Check(now time.Duration) Action {
	quiet := now - s.lastSeen
	switch {
	case !s.homed && quiet >= s.homeAfter:
		s.homed = true
		return ActionHome
	case s.homed && !s.poweredDown && quiet >= s.powerDownAfter:
		s.poweredDown = true
		return ActionPowerDown
	}
	return ActionNone
}

// Homed reports whether the current quiet period has triggered homing.
func (s *Supervisor) Homed() bool { return s.homed }

// PoweredDown reports whether the motors were de-energized for the current
// quiet period.
func (s *Supervisor) PoweredDown() bool { return s.poweredDown }
