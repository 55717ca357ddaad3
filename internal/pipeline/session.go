package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sleepywoodpecker/ppg-scope/internal/chart"
	"sleepywoodpecker/ppg-scope/internal/device"
	"sleepywoodpecker/ppg-scope/internal/recorder"
	"sleepywoodpecker/ppg-scope/internal/telemetry"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrRecordingRefused = errors.New("recording refused")
)

type State int

const (
	Idle State = iota
	Running
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Options struct {
	Loop         LoopConfig
	Render       PoolConfig
	Persist      PoolConfig
	Interval     float64
	YUpper       float64
	Channel      chart.Channel
	RecordPath   string
	RecordFormat recorder.Format
	// OpenRecorder opens the sink when recording starts; defaults to recorder.Open.
	OpenRecorder func(path string, format recorder.Format) (*recorder.Recorder, error)
	// OnRelease is called after a unit has been released.
	OnRelease ReleaseFunc
}

// Session is one acquisition run: one chart, one recording, one pass of the loop.
type Session struct {
	ID string

	opts    Options
	dev     device.Device
	logger  *zap.Logger
	model   *chart.Model
	store   *telemetry.Store
	render  *Pool
	persist *Pool

	channel atomic.Int32
	enabled atomic.Uint32

	startOnce sync.Once
	done      chan struct{}

	mu       sync.Mutex
	state    State
	rec      *recorder.Recorder
	failure  error
	closeErr error
	cancel   context.CancelFunc
	abort    context.CancelFunc
}

type Status struct {
	ID         string             `json:"id"`
	State      string             `json:"state"`
	Plotting   bool               `json:"plotting"`
	Recording  bool               `json:"recording"`
	Channel    string             `json:"channel"`
	RecordPath string             `json:"record_path,omitempty"`
	Error      string             `json:"error,omitempty"`
	Counters   telemetry.Counters `json:"counters"`
}

func NewSession(dev device.Device, opts Options, logger *zap.Logger) (*Session, error) {
	model, err := chart.NewModel(opts.Interval, opts.YUpper)
	if err != nil {
		return nil, err
	}
	if opts.OpenRecorder == nil {
		opts.OpenRecorder = recorder.Open
	}

	id := uuid.NewString()
	s := &Session{
		ID:     id,
		opts:   opts,
		dev:    dev,
		logger: logger.With(zap.String("session", id)),
		model:  model,
		store:  telemetry.NewStore(),
		done:   make(chan struct{}),
	}
	s.channel.Store(int32(opts.Channel))

	s.render = NewPool(RenderPath, opts.Render, s.renderUnit, s.logger)
	s.persist = NewPool(PersistPath, opts.Persist, s.persistUnit, s.logger)
	return s, nil
}

func (s *Session) renderUnit(ctx context.Context, u *DispatchUnit) func() {
	points := chart.Transform(u.Sample, u.CapturedAt, u.SessionStart, s.Channel())
	return func() {
		s.model.AppendBatch(points[:])
		s.store.PointsPlotted(len(points))
	}
}

func (s *Session) persistUnit(ctx context.Context, u *DispatchUnit) func() {
	points := chart.Transform(u.Sample, u.CapturedAt, u.SessionStart, s.Channel())
	rec := s.recorder()
	return func() {
		n, err := rec.Append(points[:], u.Sample, u.CapturedAt)
		if err != nil {
			s.store.WriteError()
			s.logger.Warn("[recorder] error appending to recording", zap.Error(err), zap.Duration("capturedAt", u.CapturedAt))
			return
		}
		s.store.LinesRecorded(n)
	}
}

func (s *Session) recorder() *recorder.Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

func (s *Session) released(u *DispatchUnit) {
	s.store.UnitReleased()
	if s.opts.OnRelease != nil {
		s.opts.OnRelease(u)
	}
}

// StartPlotting enables the render path and starts the session if it is not running yet.
func (s *Session) StartPlotting(ctx context.Context) error {
	if s.closed() {
		return ErrSessionClosed
	}
	s.enable(RenderPath)
	return s.start(ctx)
}

// StartRecording opens the recording and enables the persist path. If the recording cannot be
// opened the persist path stays off and an idle session is not started.
func (s *Session) StartRecording(ctx context.Context) error {
	if s.closed() {
		return ErrSessionClosed
	}

	s.mu.Lock()
	if s.rec == nil {
		rec, err := s.opts.OpenRecorder(s.opts.RecordPath, s.opts.RecordFormat)
		if err != nil {
			s.mu.Unlock()
			s.logger.Error("[session] cannot open recording", zap.Error(err), zap.String("outputFile", s.opts.RecordPath))
			return fmt.Errorf("[session] %w: %w", ErrRecordingRefused, err)
		}
		s.rec = rec
		s.logger.Info("[session] recording opened", zap.String("outputFile", s.opts.RecordPath), zap.Stringer("format", s.opts.RecordFormat))
	}
	s.mu.Unlock()

	s.enable(PersistPath)
	return s.start(ctx)
}

func (s *Session) enable(p Path) {
	for {
		old := s.enabled.Load()
		if s.enabled.CompareAndSwap(old, old|uint32(p)) {
			return
		}
	}
}

func (s *Session) enabledPaths() Path {
	return Path(s.enabled.Load())
}

func (s *Session) start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		err = s.run(ctx)
	})
	if err == nil && s.closed() {
		return ErrSessionClosed
	}
	return err
}

func (s *Session) run(ctx context.Context) error {
	if err := s.dev.Connect(ctx); err != nil {
		s.fail(fmt.Errorf("[session] connect: %w", err))
		return err
	}
	if err := device.CheckCharacteristic(s.dev, s.opts.Loop.ServiceID, s.opts.Loop.CharacteristicID); err != nil {
		_ = s.dev.Disconnect()
		s.fail(err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	abortCtx, abort := context.WithCancel(context.Background())

	s.mu.Lock()
	s.state = Running
	s.cancel = cancel
	s.abort = abort
	s.mu.Unlock()

	s.render.Start(abortCtx)
	s.persist.Start(abortCtx)

	loop := NewLoop(s.dev, s.opts.Loop, s.enabledPaths, s.render, s.persist, s.released, s.store, s.logger)
	s.logger.Info("[session] acquisition started", zap.Stringer("paths", s.enabledPaths()), zap.Stringer("channel", s.Channel()))

	go func() {
		err := loop.Run(loopCtx)
		s.finish(err)
	}()
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = Failed
	s.failure = err
	if s.rec != nil {
		s.closeErr = s.rec.Close()
	}
	s.mu.Unlock()
	s.logger.Error("[session] session failed", zap.Error(err))
	close(s.done)
}

// finish drains both pools, then releases the recording and the device.
func (s *Session) finish(loopErr error) {
	s.render.Close()
	s.persist.Close()
	s.render.Wait()
	s.persist.Wait()

	var closeErr error
	if rec := s.recorder(); rec != nil {
		closeErr = multierr.Append(closeErr, rec.Close())
	}
	closeErr = multierr.Append(closeErr, s.dev.Disconnect())

	s.mu.Lock()
	s.closeErr = closeErr
	if loopErr != nil {
		s.state = Failed
		s.failure = loopErr
	} else {
		s.state = Stopped
	}
	s.mu.Unlock()

	if loopErr != nil {
		s.logger.Error("[session] acquisition stopped by device error", zap.Error(loopErr))
	} else {
		s.logger.Info("[session] acquisition stopped", zap.Any("counters", s.store.Snapshot()))
	}
	if closeErr != nil {
		s.logger.Warn("[session] error releasing session resources", zap.Error(closeErr))
	}
	s.cancel()
	s.abort()
	close(s.done)
}

// Stop cancels the loop and waits for the pools to drain. If ctx ends first, units still queued
// are released without being handled.
func (s *Session) Stop(ctx context.Context) error {
	started := true
	s.startOnce.Do(func() {
		started = false
		s.mu.Lock()
		s.state = Stopped
		if s.rec != nil {
			s.closeErr = s.rec.Close()
		}
		s.mu.Unlock()
		close(s.done)
	})
	if !started {
		return s.closeErr
	}

	s.mu.Lock()
	cancel, abort := s.cancel, s.abort
	s.mu.Unlock()
	if cancel == nil {
		// the session failed before the loop began
		<-s.done
		return nil
	}

	cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Warn("[session] drain deadline exceeded, abandoning queued units", zap.Error(ctx.Err()))
		abort()
		<-s.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetChannel(ch chart.Channel) {
	s.channel.Store(int32(ch))
}

func (s *Session) Channel() chart.Channel {
	return chart.Channel(s.channel.Load())
}

func (s *Session) Window() chart.View {
	return s.model.Window()
}

func (s *Session) Model() *chart.Model {
	return s.model
}

func (s *Session) Store() *telemetry.Store {
	return s.store
}

func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		ID:    s.ID,
		State: s.state.String(),
	}
	if s.failure != nil {
		st.Error = s.failure.Error()
	}
	if s.rec != nil {
		st.RecordPath = s.opts.RecordPath
	}
	s.mu.Unlock()

	paths := s.enabledPaths()
	st.Plotting = paths&RenderPath != 0
	st.Recording = paths&PersistPath != 0
	st.Channel = s.Channel().String()
	st.Counters = s.store.Snapshot()
	return st
}
