package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sleepywoodpecker/ppg-scope/internal/chart"
	"sleepywoodpecker/ppg-scope/internal/device"
)

// Manager routes session control events to the current session and starts a fresh one when a
// start event arrives after the previous session has ended.
type Manager struct {
	mu      sync.Mutex
	dev     device.Device
	opts    Options
	logger  *zap.Logger
	current *Session
}

func NewManager(dev device.Device, opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		dev:    dev,
		opts:   opts,
		logger: logger,
	}
}

// Current returns the latest session, which may already have ended, or nil before the first one.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) active() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.closed() {
		return m.current, nil
	}

	s, err := NewSession(m.dev, m.opts, m.logger)
	if err != nil {
		return nil, err
	}
	if m.current != nil {
		m.logger.Info("[manager] starting new session", zap.String("previous", m.current.ID), zap.String("session", s.ID))
	}
	m.current = s
	return s, nil
}

func (m *Manager) StartPlotting(ctx context.Context) (*Session, error) {
	s, err := m.active()
	if err != nil {
		return nil, err
	}
	return s, s.StartPlotting(ctx)
}

func (m *Manager) StartRecording(ctx context.Context) (*Session, error) {
	s, err := m.active()
	if err != nil {
		return nil, err
	}
	return s, s.StartRecording(ctx)
}

// Stop stops the current session. It is a no-op when nothing is running.
func (m *Manager) Stop(ctx context.Context) error {
	s := m.Current()
	if s == nil {
		return nil
	}
	return s.Stop(ctx)
}

// SetChannel switches the current session and every later one to ch.
func (m *Manager) SetChannel(ch chart.Channel) {
	m.mu.Lock()
	m.opts.Channel = ch
	s := m.current
	m.mu.Unlock()

	if s != nil {
		s.SetChannel(ch)
	}
}

func (m *Manager) Channel() chart.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Channel
}
