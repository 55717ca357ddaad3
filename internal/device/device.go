package device

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConnected          = errors.New("device not connected")
	ErrUnknownCharacteristic = errors.New("unknown service or characteristic")
)

type Service struct {
	UUID            string
	Characteristics []string
}

// Device is a connected sensor handle. ReadCharacteristic returns an empty slice and a nil
// error when no value is available yet.
type Device interface {
	Connect(ctx context.Context) error
	Disconnect() error
	ListServices() ([]Service, error)
	ReadCharacteristic(ctx context.Context, serviceID, charID string) ([]byte, error)
}

// CheckCharacteristic verifies that the device exposes charID under serviceID.
func CheckCharacteristic(d Device, serviceID, charID string) error {
	services, err := d.ListServices()
	if err != nil {
		return err
	}
	for _, s := range services {
		if s.UUID != serviceID {
			continue
		}
		for _, c := range s.Characteristics {
			if c == charID {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownCharacteristic, serviceID, charID)
}
