package gpio

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/turretctl/turretd/internal/debug"
)

// Lines is a bit mask of BCM GPIO lines 0-31, matching the layout of the
// controller's set/clear registers.
type Lines uint32

// Line returns the mask for a single BCM line.
func Line(n int) Lines {
	return Lines(1) << uint(n)
}

// Each calls fn for every line number in the mask, lowest first.
func (l Lines) Each(fn func(line int)) {
	for m := uint32(l); m != 0; m &= m - 1 {
		fn(bits.TrailingZeros32(m))
	}
}

func (l Lines) String() string {
	return fmt.Sprintf("%#08x", uint32(l))
}

// Driver is the hardware I/O gateway: output configuration, atomic set/clear of
// output lines, and the free-running microsecond counter. Every call is
// non-blocking. A Driver is owned by a single goroutine.
type Driver interface {
	ConfigureOutput(line int) error
	Set(mask Lines)
	Clear(mask Lines)
	// ReadClock returns the wrapping 32-bit microsecond counter.
	ReadClock() uint32
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver whose clock follows wall time (for dev).
// If mock is false, maps the GPIO and system timer blocks below
// peripheralBase (requires a Raspberry Pi and root).
func NewDriver(mock bool, peripheralBase uint32) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewWallClockMockDriver(), nil
	}
	return NewRPiRealDriver(peripheralBase)
}

// MockDriver simulates the GPIO output registers and the microsecond counter.
// A stepped mock advances the counter by ClockStep on every ReadClock, so a
// busy-wait loop makes progress without real time passing (tests). A wall
// clock mock counts real microseconds since it was created (development on PC).
type MockDriver struct {
	ClockStep uint32

	outputs Lines
	level   Lines
	clock   uint32
	start   time.Time
	wall    bool
}

// NewMockDriver returns a mock whose clock advances clockStep microseconds per read.
func NewMockDriver(clockStep uint32) *MockDriver {
	return &MockDriver{ClockStep: clockStep}
}

// NewWallClockMockDriver returns a mock whose clock tracks elapsed wall time.
func NewWallClockMockDriver() *MockDriver {
	return &MockDriver{start: time.Now(), wall: true}
}

func (m *MockDriver) ConfigureOutput(line int) error {
	if line < 0 || line > 31 {
		return fmt.Errorf("line %d out of range 0-31", line)
	}
	debug.Trace("ConfigureOutput line=%d (mock)", line)
	m.outputs |= Line(line)
	return nil
}

func (m *MockDriver) Set(mask Lines) {
	debug.GPIO("set", uint32(mask))
	m.level |= mask & m.outputs
}

func (m *MockDriver) Clear(mask Lines) {
	debug.GPIO("clear", uint32(mask))
	m.level &^= mask & m.outputs
}

func (m *MockDriver) ReadClock() uint32 {
	if m.wall {
		return m.clock + uint32(time.Since(m.start).Microseconds())
	}
	now := m.clock
	m.clock += m.ClockStep
	return now
}

// SetClock moves the simulated counter, e.g. to just below the 32-bit wrap.
func (m *MockDriver) SetClock(us uint32) {
	m.clock = us
	if m.wall {
		m.start = time.Now()
	}
}

// Level reports which lines of mask are currently driven high.
func (m *MockDriver) Level(mask Lines) Lines {
	return m.level & mask
}

// Outputs reports the lines configured as outputs.
func (m *MockDriver) Outputs() Lines {
	return m.outputs
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
