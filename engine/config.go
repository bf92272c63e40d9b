package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"audiosync/engine/drift"
	"audiosync/engine/filter"
	"audiosync/engine/pcm"
)

const (
	// DefaultMaxGap is the largest gap, in pts, the loop corrects by
	// adjusting the clock. Larger gaps are dropped or filled.
	DefaultMaxGap = 15000
	// DefaultSyncInterval is the minimum clock time between two offset
	// corrections.
	DefaultSyncInterval = 90000
	// DefaultSyncBufs is the minimum number of played buffers between two
	// offset corrections.
	DefaultSyncBufs = 16
	// DefaultSyncGapRate divides the gap into the applied offset delta.
	DefaultSyncGapRate = 4

	defaultBackend   = "null"
	defaultBufferMs  = 100
	defaultLatencyMs = 30
	defaultRTPCodec  = "pcmu"
	defaultLogLevel  = "info"
)

// PauseMode selects how the loop behaves while playback is paused or the
// clock runs at another speed.
type PauseMode int

const (
	// PauseNone leaves pausing to the sink; the loop keeps writing.
	PauseNone PauseMode = iota
	// PauseGated holds buffers until they are due while paused or at a
	// speed other than 1x, dropping those that become late.
	PauseGated
	// PauseTrick holds buffers only while paused and keeps processing at
	// other speeds.
	PauseTrick
)

func (m PauseMode) String() string {
	switch m {
	case PauseNone:
		return "none"
	case PauseGated:
		return "gated"
	case PauseTrick:
		return "trick"
	}
	return fmt.Sprintf("pause(%d)", int(m))
}

type Config struct {
	// Output
	Backend    string
	RTPAddress string
	RTPCodec   string
	RTPSSRC    uint32
	BufferMs   int
	LatencyMs  int

	// Buffers
	NumBuffers int
	BufferSize int

	// Sync
	MaxGap       int64
	SyncInterval int64
	SyncBufs     int
	SyncGapRate  int64
	ResampleSync bool
	// GapTolerance overrides the sink's tolerance when positive.
	GapTolerance int64
	PauseMode    PauseMode
	Drift        drift.Config

	// Filters
	Amp        int
	Compressor int
	Equalizer  [filter.NumBands]float64

	LogLevel string

	// Demo producers run by the CLI.
	DemoStreams  int
	DemoFormat   pcm.Format
	DemoToneHz   float64
	DemoDuration time.Duration
}

type yamlConfig struct {
	Output struct {
		Backend    string `yaml:"backend"`
		RTPAddress string `yaml:"rtp_address"`
		RTPCodec   string `yaml:"rtp_codec"`
		RTPSSRC    uint32 `yaml:"rtp_ssrc"`
		BufferMs   int    `yaml:"buffer_ms"`
		LatencyMs  int    `yaml:"latency_ms"`
	} `yaml:"output"`
	Buffers struct {
		Count int `yaml:"count"`
		Size  int `yaml:"size"`
	} `yaml:"buffers"`
	Sync struct {
		MaxGap       int64  `yaml:"max_gap"`
		SyncInterval int64  `yaml:"sync_interval"`
		SyncBufs     int    `yaml:"sync_bufs"`
		SyncGapRate  int64  `yaml:"sync_gap_rate"`
		ResampleSync *bool  `yaml:"resample_sync"`
		GapTolerance int64  `yaml:"gap_tolerance"`
		PauseMode    string `yaml:"pause_mode"`
		DriftWindow  int    `yaml:"drift_window"`
	} `yaml:"sync"`
	Filters struct {
		Amp        int       `yaml:"amp"`
		Compressor int       `yaml:"compressor"`
		Equalizer  []float64 `yaml:"equalizer"`
	} `yaml:"filters"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Demo struct {
		Streams  int     `yaml:"streams"`
		Rate     int     `yaml:"rate"`
		Channels int     `yaml:"channels"`
		Bits     int     `yaml:"bits"`
		ToneHz   float64 `yaml:"tone_hz"`
		Duration string  `yaml:"duration"`
	} `yaml:"demo"`
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() Config {
	return Config{
		Backend:      defaultBackend,
		RTPCodec:     defaultRTPCodec,
		BufferMs:     defaultBufferMs,
		LatencyMs:    defaultLatencyMs,
		NumBuffers:   pcm.DefaultNumBuffers,
		BufferSize:   pcm.DefaultBufferSize,
		MaxGap:       DefaultMaxGap,
		SyncInterval: DefaultSyncInterval,
		SyncBufs:     DefaultSyncBufs,
		SyncGapRate:  DefaultSyncGapRate,
		PauseMode:    PauseGated,
		Drift:        drift.DefaultConfig(),
		Amp:          100,
		Compressor:   100,
		LogLevel:     defaultLogLevel,
		DemoStreams:  1,
		DemoFormat:   pcm.Format{Bits: 16, Rate: 44100, Mode: pcm.ModeStereo},
		DemoToneHz:   440,
		DemoDuration: 10 * time.Second,
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Output
	if yc.Output.Backend != "" {
		cfg.Backend = strings.ToLower(yc.Output.Backend)
	}
	cfg.RTPAddress = yc.Output.RTPAddress
	if yc.Output.RTPCodec != "" {
		cfg.RTPCodec = strings.ToLower(yc.Output.RTPCodec)
	}
	cfg.RTPSSRC = yc.Output.RTPSSRC
	if yc.Output.BufferMs > 0 {
		cfg.BufferMs = yc.Output.BufferMs
	}
	if yc.Output.LatencyMs > 0 {
		cfg.LatencyMs = yc.Output.LatencyMs
	}

	// Buffers
	if yc.Buffers.Count > 0 {
		cfg.NumBuffers = yc.Buffers.Count
	}
	if yc.Buffers.Size > 0 {
		cfg.BufferSize = yc.Buffers.Size
	}

	// Sync
	if yc.Sync.MaxGap > 0 {
		cfg.MaxGap = yc.Sync.MaxGap
		cfg.Drift.MaxGap = yc.Sync.MaxGap
	}
	if yc.Sync.SyncInterval > 0 {
		cfg.SyncInterval = yc.Sync.SyncInterval
	}
	if yc.Sync.SyncBufs > 0 {
		cfg.SyncBufs = yc.Sync.SyncBufs
	}
	if yc.Sync.SyncGapRate > 0 {
		cfg.SyncGapRate = yc.Sync.SyncGapRate
	}
	if yc.Sync.ResampleSync != nil {
		cfg.ResampleSync = *yc.Sync.ResampleSync
	}
	if yc.Sync.GapTolerance > 0 {
		cfg.GapTolerance = yc.Sync.GapTolerance
	}
	switch strings.ToLower(yc.Sync.PauseMode) {
	case "":
	case "none":
		cfg.PauseMode = PauseNone
	case "gated":
		cfg.PauseMode = PauseGated
	case "trick":
		cfg.PauseMode = PauseTrick
	default:
		return Config{}, fmt.Errorf("sync.pause_mode must be 'none', 'gated' or 'trick', got %q", yc.Sync.PauseMode)
	}
	if yc.Sync.DriftWindow > 0 {
		cfg.Drift.Window = yc.Sync.DriftWindow
	}

	// Filters
	if yc.Filters.Amp > 0 {
		cfg.Amp = yc.Filters.Amp
	}
	if yc.Filters.Compressor > 0 {
		cfg.Compressor = yc.Filters.Compressor
	}
	if len(yc.Filters.Equalizer) > filter.NumBands {
		return Config{}, fmt.Errorf("filters.equalizer has %d bands, at most %d allowed", len(yc.Filters.Equalizer), filter.NumBands)
	}
	copy(cfg.Equalizer[:], yc.Filters.Equalizer)

	if yc.Log.Level != "" {
		cfg.LogLevel = strings.ToLower(yc.Log.Level)
	}

	// Demo
	if yc.Demo.Streams > 0 {
		cfg.DemoStreams = yc.Demo.Streams
	}
	if yc.Demo.Rate > 0 {
		cfg.DemoFormat.Rate = yc.Demo.Rate
	}
	if yc.Demo.Bits > 0 {
		cfg.DemoFormat.Bits = yc.Demo.Bits
	}
	switch yc.Demo.Channels {
	case 0:
	case 1:
		cfg.DemoFormat.Mode = pcm.ModeMono
	case 2:
		cfg.DemoFormat.Mode = pcm.ModeStereo
	default:
		return Config{}, fmt.Errorf("demo.channels must be 1 or 2, got %d", yc.Demo.Channels)
	}
	if yc.Demo.ToneHz > 0 {
		cfg.DemoToneHz = yc.Demo.ToneHz
	}
	if yc.Demo.Duration != "" {
		d, err := time.ParseDuration(yc.Demo.Duration)
		if err != nil {
			return Config{}, fmt.Errorf("invalid demo.duration: %w", err)
		}
		cfg.DemoDuration = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings NewPort and the CLI rely on.
func (c Config) Validate() error {
	switch c.Backend {
	case "null", "rtp", "mediasdk", "oto", "pulse":
	default:
		return fmt.Errorf("output.backend must be one of null, rtp, mediasdk, oto, pulse, got %q", c.Backend)
	}
	if c.Backend == "rtp" {
		if c.RTPAddress == "" {
			return errors.New("output.rtp_address is required for the rtp backend")
		}
		if c.RTPCodec != "pcmu" && c.RTPCodec != "pcma" {
			return fmt.Errorf("output.rtp_codec must be 'pcmu' or 'pcma', got %q", c.RTPCodec)
		}
	}
	if c.MaxGap <= 0 {
		return errInvalid("sync.max_gap")
	}
	if c.SyncGapRate <= 0 {
		return errInvalid("sync.sync_gap_rate")
	}
	if c.PauseMode < PauseNone || c.PauseMode > PauseTrick {
		return errInvalid("sync.pause_mode")
	}
	if c.Amp < 0 || c.Amp > maxAmp {
		return fmt.Errorf("filters.amp must be within 0..%d, got %d", maxAmp, c.Amp)
	}
	if c.Compressor < 0 || c.Compressor > maxCompressor {
		return fmt.Errorf("filters.compressor must be within 0..%d, got %d", maxCompressor, c.Compressor)
	}
	for i, g := range c.Equalizer {
		if g < -filter.MaxGainDB || g > filter.MaxGainDB {
			return fmt.Errorf("filters.equalizer[%d] must be within +-%v dB, got %v", i, filter.MaxGainDB, g)
		}
	}
	if c.DemoStreams < 0 {
		return errInvalid("demo.streams")
	}
	if err := c.DemoFormat.Validate(); err != nil {
		return fmt.Errorf("demo format: %w", err)
	}
	return nil
}
