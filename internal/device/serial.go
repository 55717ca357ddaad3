package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"sleepywoodpecker/ppg-scope/internal/packet"
)

var StopSequence = []byte{'\r', '\n'}

// partial frames get this many read timeouts to complete before the bridge resyncs
const maxPartialTimeouts = 8

// Port is the part of serial.Port the bridge uses.
type Port interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

type PortOpener func(portName string, mode *serial.Mode) (Port, error)

func openSerialPort(portName string, mode *serial.Mode) (Port, error) {
	return serial.Open(portName, mode)
}

type OutOfSyncError struct {
	ByteSequence []byte
}

func (e *OutOfSyncError) Error() string {
	return fmt.Sprintf("[serial] incorrect stop sequence detected: %v", e.ByteSequence)
}

type SerialConfig struct {
	PortName         string
	BaudRate         int
	ReadTimeout      time.Duration
	ServiceID        string
	CharacteristicID string
}

// SerialBridge talks to a BLE-to-UART bridge that forwards each characteristic value followed by
// StopSequence.
type SerialBridge struct {
	mu       sync.Mutex
	port     Port
	open     PortOpener
	cfg      SerialConfig
	tempBuff []byte
	logger   *zap.Logger
}

func NewSerialBridge(cfg SerialConfig, logger *zap.Logger) *SerialBridge {
	return &SerialBridge{
		open:     openSerialPort,
		cfg:      cfg,
		tempBuff: make([]byte, packet.PacketSize+len(StopSequence)),
		logger:   logger,
	}
}

// WithOpener replaces the function used to open the port.
func (r *SerialBridge) WithOpener(open PortOpener) *SerialBridge {
	r.open = open
	return r
}

func (r *SerialBridge) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: r.cfg.BaudRate,
	}
	port, err := r.open(r.cfg.PortName, mode)
	if err != nil {
		return fmt.Errorf("[serial] open %s: %w", r.cfg.PortName, err)
	}

	if err := port.SetReadTimeout(r.cfg.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("[serial] set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return fmt.Errorf("[serial] reset input buffer: %w", err)
	}

	r.port = port
	if err := r.sync(ctx); err != nil {
		r.port = nil
		port.Close()
		return err
	}

	r.logger.Info("[serial] connected", zap.String("portName", r.cfg.PortName), zap.Int("baudRate", r.cfg.BaudRate))
	return nil
}

func (r *SerialBridge) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port == nil {
		return nil
	}
	err := r.port.Close()
	r.port = nil
	r.logger.Info("[serial] disconnected", zap.String("portName", r.cfg.PortName))
	return err
}

func (r *SerialBridge) ListServices() ([]Service, error) {
	return []Service{{
		UUID:            r.cfg.ServiceID,
		Characteristics: []string{r.cfg.CharacteristicID},
	}}, nil
}

func (r *SerialBridge) ReadCharacteristic(ctx context.Context, serviceID, charID string) ([]byte, error) {
	if serviceID != r.cfg.ServiceID || charID != r.cfg.CharacteristicID {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownCharacteristic, serviceID, charID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.port == nil {
		return nil, ErrNotConnected
	}

	value, err := r.readPacket(ctx)
	if err != nil {
		var oosError *OutOfSyncError
		if errors.As(err, &oosError) {
			r.logger.Warn("[serial] dropping frame", zap.Error(err), zap.String("portName", r.cfg.PortName), zap.ByteString("payload", oosError.ByteSequence))
			return nil, r.sync(ctx)
		}
		return nil, err
	}
	return value, nil
}

func (r *SerialBridge) readPacket(ctx context.Context) ([]byte, error) {
	frameSize := len(r.tempBuff)
	count := 0
	timeouts := 0
	for count < frameSize {
		n, err := r.port.Read(r.tempBuff[count:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// nothing in flight: an idle line is not an error
			if count == 0 {
				return nil, nil
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			timeouts++
			if timeouts > maxPartialTimeouts {
				break
			}
			continue
		}
		count += n
	}

	if count != frameSize || !bytes.Equal(r.tempBuff[frameSize-len(StopSequence):], StopSequence) {
		byteSequenceCopy := make([]byte, count)
		copy(byteSequenceCopy, r.tempBuff[:count])
		return nil, &OutOfSyncError{ByteSequence: byteSequenceCopy}
	}

	value := make([]byte, packet.PacketSize)
	copy(value, r.tempBuff[:packet.PacketSize])
	return value, nil
}

// sync discards input up to the next end of a stop sequence. A read timeout with nothing
// pending also counts as a frame boundary.
func (r *SerialBridge) sync(ctx context.Context) error {
	r.logger.Warn("[serial] resyncing serial port", zap.String("portName", r.cfg.PortName))
	onebyte := make([]byte, 1)
	last := StopSequence[len(StopSequence)-1]

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.port.Read(onebyte)
		if err != nil {
			return fmt.Errorf("[serial] resync: %w", err)
		}
		if n == 0 || onebyte[0] == last {
			return nil
		}
	}
}
