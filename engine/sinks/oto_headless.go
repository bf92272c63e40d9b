//go:build headless

package sinks

import (
	"errors"
	"log/slog"

	"audiosync/engine/driver"
	"audiosync/engine/pcm"
)

var errOtoHeadless = errors.New("oto sink: not available in headless builds")

type OtoDriver struct{}

func NewOtoDriver(int, *slog.Logger) (*OtoDriver, error) {
	return nil, errOtoHeadless
}

func (d *OtoDriver) Name() string {
	return "oto"
}

func (d *OtoDriver) Capabilities() driver.Capability {
	return 0
}

func (d *OtoDriver) Open(pcm.Format) (int, error) {
	return 0, errOtoHeadless
}

func (d *OtoDriver) Write([]byte, int) error {
	return errOtoHeadless
}

func (d *OtoDriver) Delay() int {
	return 0
}

func (d *OtoDriver) GapTolerance() int64 {
	return DefaultGapTolerance
}

func (d *OtoDriver) Close() {}

func (d *OtoDriver) Exit() {}

func (d *OtoDriver) Control(driver.Command) error {
	return errOtoHeadless
}

func (d *OtoDriver) Property(driver.Property) (int, error) {
	return 0, errOtoHeadless
}

func (d *OtoDriver) SetProperty(driver.Property, int) (int, error) {
	return 0, errOtoHeadless
}
