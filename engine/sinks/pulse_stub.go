//go:build !linux || headless

package sinks

import (
	"errors"
	"log/slog"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

var errPulseUnavailable = errors.New("pulse sink: not available on this platform")

type PulseDriver struct{}

func NewPulseDriver(int, int, *slog.Logger) *PulseDriver { return &PulseDriver{} }

func (d *PulseDriver) Name() string {
	return "pulse"
}

func (d *PulseDriver) Capabilities() driver.Capability {
	return 0
}

func (d *PulseDriver) Open(pcm.Format) (int, error) {
	return 0, errPulseUnavailable
}

func (d *PulseDriver) Write([]byte, int) error {
	return errPulseUnavailable
}

func (d *PulseDriver) Delay() int {
	return 0
}

func (d *PulseDriver) GapTolerance() int64 {
	return DefaultGapTolerance
}

func (d *PulseDriver) Close() {}

func (d *PulseDriver) Exit() {}

func (d *PulseDriver) Control(driver.Command) error {
	return errPulseUnavailable
}

func (d *PulseDriver) Property(driver.Property) (int, error) {
	return 0, errPulseUnavailable
}

func (d *PulseDriver) SetProperty(driver.Property, int) (int, error) {
	return 0, errPulseUnavailable
}
