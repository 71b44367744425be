//go:build linux

package gpio

import (
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const timerBlockSize = 4 * 1024

// systemTimer is the memory-mapped BCM system timer. Register 1 (CLO) holds
// the low 32 bits of the free-running 1 MHz counter.
type systemTimer struct {
	mem  []byte
	regs []uint32
}

func openSystemTimer(base int64) (*systemTimer, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDONLY|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	// The mapping stays valid after the descriptor is closed.
	defer f.Close()

	mem, err := unix.Mmap(int(f.Fd()), base, timerBlockSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	regs := unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), len(mem)/4)
	return &systemTimer{mem: mem, regs: regs}, nil
}

// micros reads CLO. The atomic load keeps the compiler from caching the value
// across iterations of a busy-wait loop.
func (t *systemTimer) micros() uint32 {
	return atomic.LoadUint32(&t.regs[1])
}

func (t *systemTimer) close() error {
	t.regs = nil
	return unix.Munmap(t.mem)
}
