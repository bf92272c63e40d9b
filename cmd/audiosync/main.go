package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"audiosync/engine"
	"audiosync/engine/driver"
	"audiosync/engine/metronom"
	"audiosync/engine/pcm"
	"audiosync/engine/sinks"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg := engine.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = engine.LoadConfig(configPath)
		if err != nil {
			slog.Error("config error", "error", err)
			os.Exit(1)
		}
	} else if len(os.Args) > 1 {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	drv, closeSink, err := openSink(cfg, logger)
	if err != nil {
		logger.Error("sink init failed", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer closeSink()

	clock := metronom.NewSystemClock()
	port := engine.NewPort(drv, clock, cfg, logger)
	logger.Info("audio out ready", "sink", drv.Name(), "caps", port.Capabilities(), "streams", cfg.DemoStreams)

	err = run(ctx, port, clock, cfg, logger)

	// Graceful shutdown
	logger.Info("shutting down...")
	port.Exit()
	st := port.Stats()
	logger.Info("shutdown complete",
		"played", st.PlayedBuffers,
		"dropped", st.DroppedBuffers,
		"filled_frames", st.FilledFrames,
		"corrections", st.Corrections,
	)

	if err != nil && ctx.Err() == nil {
		slog.Error("playback stopped with error", "error", err)
		os.Exit(1)
	}
}

// run plays cfg.DemoStreams tone producers through the port until they are
// done or ctx is cancelled.
func run(ctx context.Context, port *engine.Port, clock *metronom.SystemClock, cfg engine.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.DemoDuration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for i := range cfg.DemoStreams {
		tone := &toneSource{
			freq:   cfg.DemoToneHz * float64(i+1),
			format: cfg.DemoFormat,
		}
		s := engine.NewStream(fmt.Sprintf("tone-%d", i), metronom.New(clock, logger))
		g.Go(func() error {
			return produce(ctx, port, s, tone, logger)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// produce feeds one stream until ctx ends.
func produce(ctx context.Context, port *engine.Port, s *engine.Stream, src *toneSource, logger *slog.Logger) error {
	rate, err := port.Open(s, src.format)
	if err != nil {
		return fmt.Errorf("open %v: %w", s, err)
	}
	defer port.Close(s)
	logger.Info("stream opened", "stream", s.Name, "format", src.format, "output_rate", rate)

	for ctx.Err() == nil {
		buf := port.TryGetBuffer(s)
		if buf == nil {
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}
		buf.NumFrames = src.fill(buf.Mem)
		port.PutBuffer(s, buf, 0)
	}
	return ctx.Err()
}

// toneSource renders a sine in the stream's format, 20 ms per buffer.
type toneSource struct {
	freq   float64
	format pcm.Format
	phase  float64
}

func (t *toneSource) fill(mem []byte) int {
	ch := t.format.Mode.Channels()
	frames := min(len(mem)/t.format.BytesPerFrame(), t.format.Rate/50)
	step := 2 * math.Pi * t.freq / float64(t.format.Rate)
	for i := 0; i < frames; i++ {
		v := 0.3 * math.Sin(t.phase)
		t.phase += step
		if t.phase > 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
		for c := 0; c < ch; c++ {
			if t.format.Bits == 8 {
				mem[i*ch+c] = byte(128 + int(v*127))
			} else {
				pcm.PutSample(mem, i*ch+c, int16(v*math.MaxInt16))
			}
		}
	}
	return frames
}

// openSink builds the driver selected by cfg.Backend. The returned func
// releases what the driver does not own.
func openSink(cfg engine.Config, logger *slog.Logger) (driver.Driver, func(), error) {
	nop := func() {}
	frames := cfg.BufferMs * cfg.DemoFormat.Rate / 1000
	switch cfg.Backend {
	case "null":
		return sinks.NewNullDriver(frames, logger), nop, nil
	case "rtp":
		conn, err := net.Dial("udp", cfg.RTPAddress)
		if err != nil {
			return nil, nop, fmt.Errorf("dial %s: %w", cfg.RTPAddress, err)
		}
		d, err := sinks.NewRTPDriver(conn, sinks.RTPConfig{
			Codec:        cfg.RTPCodec,
			SSRC:         cfg.RTPSSRC,
			BufferFrames: cfg.BufferMs * 8,
		}, logger)
		if err != nil {
			conn.Close()
			return nil, nop, err
		}
		return d, func() { conn.Close() }, nil
	case "mediasdk":
		meter := newLevelMeter(cfg.DemoFormat.Rate, logger)
		return sinks.NewMediaSDKDriver(meter, frames, logger), nop, nil
	case "oto":
		d, err := sinks.NewOtoDriver(cfg.BufferMs, logger)
		if err != nil {
			return nil, nop, err
		}
		return d, nop, nil
	case "pulse":
		return sinks.NewPulseDriver(cfg.BufferMs, cfg.LatencyMs, logger), nop, nil
	}
	return nil, nop, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
