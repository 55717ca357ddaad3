package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sleepywoodpecker/ppg-scope/internal/device"
	"sleepywoodpecker/ppg-scope/internal/packet"
	"sleepywoodpecker/ppg-scope/internal/telemetry"
)

const (
	// DefaultPollInterval is a tenth of one 120 Hz sample period.
	DefaultPollInterval = 833 * time.Microsecond
	// DefaultIncrement is the time covered by one packet of 10 sub-samples.
	DefaultIncrement = 83300 * time.Microsecond
)

var ErrDeviceRead = errors.New("device read failed")

// TimestampSource selects how capture times are assigned to packets.
type TimestampSource int

const (
	// Synthetic advances a fixed increment per packet.
	Synthetic TimestampSource = iota
	// Monotonic uses the host's monotonic clock at the moment the packet was read.
	Monotonic
)

func (t TimestampSource) String() string {
	if t == Monotonic {
		return "monotonic"
	}
	return "synthetic"
}

func ParseTimestampSource(s string) (TimestampSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "synthetic":
		return Synthetic, nil
	case "monotonic":
		return Monotonic, nil
	}
	return Synthetic, fmt.Errorf("unknown timestamp source %q (want synthetic or monotonic)", s)
}

type LoopConfig struct {
	ServiceID        string
	CharacteristicID string
	PollInterval     time.Duration
	Increment        time.Duration
	Timestamps       TimestampSource
}

// Loop reads packets from a connected device and hands them to the enabled pools.
type Loop struct {
	dev     device.Device
	cfg     LoopConfig
	enabled func() Path
	render  *Pool
	persist *Pool
	release ReleaseFunc
	store   *telemetry.Store
	logger  *zap.Logger
	now     func() time.Time
}

func NewLoop(dev device.Device, cfg LoopConfig, enabled func() Path, render, persist *Pool, release ReleaseFunc, store *telemetry.Store, logger *zap.Logger) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Increment <= 0 {
		cfg.Increment = DefaultIncrement
	}
	return &Loop{
		dev:     dev,
		cfg:     cfg,
		enabled: enabled,
		render:  render,
		persist: persist,
		release: release,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Run polls the device until ctx is cancelled or a read fails. Cancellation returns nil.
func (l *Loop) Run(ctx context.Context) error {
	wait := time.NewTimer(l.cfg.PollInterval)
	defer wait.Stop()

	var (
		started    bool
		origin     time.Time
		capturedAt time.Duration
	)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("[loop] exiting acquisition loop")
			return nil
		default:
		}

		value, err := l.dev.ReadCharacteristic(ctx, l.cfg.ServiceID, l.cfg.CharacteristicID)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("[loop] exiting acquisition loop")
				return nil
			}
			return fmt.Errorf("%w: %w", ErrDeviceRead, err)
		}

		if len(value) == 0 {
			l.store.EmptyRead()
			wait.Reset(l.cfg.PollInterval)
			select {
			case <-ctx.Done():
				l.logger.Info("[loop] exiting acquisition loop")
				return nil
			case <-wait.C:
			}
			continue
		}

		switch {
		case !started:
			started = true
			origin = l.now()
			capturedAt = 0
		case l.cfg.Timestamps == Monotonic:
			next := l.now().Sub(origin)
			if next <= capturedAt {
				next = capturedAt + time.Microsecond
			}
			capturedAt = next
		default:
			capturedAt += l.cfg.Increment
		}

		sample, err := packet.Decode(value)
		if err != nil {
			l.store.InvalidPacket()
			l.logger.Warn("[loop] rejecting packet", zap.Error(err), zap.Int("packetLength", len(value)), zap.Binary("rawBytes", value))
			continue
		}

		l.dispatch(ctx, value, sample, capturedAt)
	}
}

func (l *Loop) dispatch(ctx context.Context, value []byte, sample packet.Sample, capturedAt time.Duration) {
	paths := l.enabled()
	if paths == 0 {
		return
	}

	raw := packet.GetBuffer()
	copy(raw[:], value)
	u := NewDispatchUnit(raw, sample, capturedAt, 0, paths, l.release)
	l.store.Packet(sample.BeatAvg)

	if paths&RenderPath != 0 {
		if err := l.render.Submit(ctx, u); err != nil {
			l.store.RenderDropped()
			l.logger.Debug("[loop] render path skipped unit", zap.Error(err), zap.Duration("capturedAt", capturedAt))
		}
	}
	if paths&PersistPath != 0 {
		if err := l.persist.Submit(ctx, u); err != nil {
			l.store.PersistDropped()
			l.logger.Debug("[loop] persist path skipped unit", zap.Error(err), zap.Duration("capturedAt", capturedAt))
		}
	}
}
