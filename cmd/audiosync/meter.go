package main

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	msdk "github.com/livekit/media-sdk"
)

// levelMeter is a PCM16 writer that discards audio and logs its level, so the
// media-sdk sink can be exercised without a network peer.
type levelMeter struct {
	rate    int
	log     *slog.Logger
	samples uint64
	energy  float64
	lastLog time.Time
}

func newLevelMeter(rate int, logger *slog.Logger) *levelMeter {
	return &levelMeter{rate: rate, log: logger, lastLog: time.Now()}
}

func (m *levelMeter) String() string { return fmt.Sprintf("LevelMeter(%dHz)", m.rate) }

func (m *levelMeter) SampleRate() int { return m.rate }

func (m *levelMeter) WriteSample(sample msdk.PCM16Sample) error {
	m.samples += uint64(len(sample))
	m.energy = rms(sample)
	if time.Since(m.lastLog) >= 5*time.Second {
		m.log.Info("level meter",
			"samples", m.samples,
			"seconds", float64(m.samples)/float64(m.rate),
			"last_energy", m.energy,
		)
		m.lastLog = time.Now()
	}
	return nil
}

func (m *levelMeter) Close() error {
	m.log.Debug("level meter closed", "samples", m.samples)
	return nil
}

// rms returns 0 for silence and up to 1 for full scale.
func rms(s msdk.PCM16Sample) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		f := float64(v) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(s)))
}
