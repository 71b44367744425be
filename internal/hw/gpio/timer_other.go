//go:build !linux

package gpio

import "errors"

type systemTimer struct{}

func openSystemTimer(base int64) (*systemTimer, error) {
	return nil, errors.New("system timer mapping is only supported on linux")
}

func (t *systemTimer) micros() uint32 { return 0 }

func (t *systemTimer) close() error { return nil }
