//go:build !windows && !linux

package power

import "go.uber.org/zap"

type unsupportedReader struct{}

func newReader() Reader {
	return unsupportedReader{}
}

func (unsupportedReader) LineStatus() (LineStatus, error) { return LineUnknown, ErrUnsupported }

type noopHook struct{}

func newHook(*zap.Logger) Hook {
	return noopHook{}
}

func (noopHook) Start(func()) error { return ErrUnsupported }
func (noopHook) Stop()              {}
