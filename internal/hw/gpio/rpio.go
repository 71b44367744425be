package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
	"github.com/turretctl/turretd/internal/debug"
)

// systemTimerOffset is the BCM283x system timer block relative to the
// peripheral base.
const systemTimerOffset = 0x3000

// RPiDriver is the real implementation for Raspberry Pi. go-rpio maps the GPIO
// block; the system timer block is mapped separately since go-rpio does not
// expose it.
type RPiDriver struct {
	pins  map[int]rpio.Pin
	timer *systemTimer
}

// NewRPiRealDriver maps both register blocks.
// Requires running on a Raspberry Pi with access to /dev/mem (root).
func NewRPiRealDriver(peripheralBase uint32) (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}
	debug.Verbose("GPIO memory mapped successfully")

	timer, err := openSystemTimer(int64(peripheralBase) + systemTimerOffset)
	if err != nil {
		_ = rpio.Close()
		return nil, fmt.Errorf("failed to map system timer at %#x: %w (are you root?)",
			int64(peripheralBase)+systemTimerOffset, err)
	}
	debug.Verbose("System timer mapped at %#x", int64(peripheralBase)+systemTimerOffset)

	return &RPiDriver{
		pins:  make(map[int]rpio.Pin),
		timer: timer,
	}, nil
}

func (r *RPiDriver) ConfigureOutput(line int) error {
	if line < 0 || line > 31 {
		return fmt.Errorf("line %d out of range 0-31", line)
	}
	debug.Trace("ConfigureOutput line=%d", line)

	p := rpio.Pin(line)
	// Through input first so the function-select bits are cleared.
	p.Input()
	p.Output()
	r.pins[line] = p
	return nil
}

// Set drives every line in mask high. Each write goes to the controller's
// set register and leaves other lines untouched.
func (r *RPiDriver) Set(mask Lines) {
	mask.Each(func(line int) {
		rpio.Pin(line).High()
	})
}

// Clear drives every line in mask low through the clear register.
func (r *RPiDriver) Clear(mask Lines) {
	mask.Each(func(line int) {
		rpio.Pin(line).Low()
	})
}

func (r *RPiDriver) ReadClock() uint32 {
	return r.timer.micros()
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Reset all pins to input (safe state)
	for line, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", line)
		p.Input()
	}

	var timerErr error
	if r.timer != nil {
		timerErr = r.timer.close()
	}
	if err := rpio.Close(); err != nil {
		return err
	}
	return timerErr
}
