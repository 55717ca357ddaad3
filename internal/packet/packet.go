package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	PacketSize = 46
	SubSamples = 10
)

var ErrInvalidLength = errors.New("invalid packet length")

// Sample is one decoded sensor packet. Field order and widths match the wire layout exactly,
// so binary.Read fills it without padding.
type Sample struct {
	T1      uint8
	T2      uint8
	Red     [SubSamples]uint16
	IR      [SubSamples]uint16
	BeatAvg int32
}

type InvalidLengthError struct {
	Length int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("[packet] expected %d bytes, got %d", PacketSize, e.Length)
}

func (e *InvalidLengthError) Is(target error) bool {
	return target == ErrInvalidLength
}

func Decode(buf []byte) (Sample, error) {
	var sample Sample
	if len(buf) != PacketSize {
		return sample, &InvalidLengthError{Length: len(buf)}
	}

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &sample); err != nil {
		return sample, err
	}

	return sample, nil
}

func Encode(sample Sample) []byte {
	var out bytes.Buffer
	out.Grow(PacketSize)
	// writes into a bytes.Buffer cannot fail for a fixed-size struct
	_ = binary.Write(&out, binary.LittleEndian, &sample)
	return out.Bytes()
}

// Buffer is the raw packet as read from the device.
type Buffer [PacketSize]byte

var bufferPool = sync.Pool{
	New: func() any { return new(Buffer) },
}

func GetBuffer() *Buffer {
	return bufferPool.Get().(*Buffer)
}

func PutBuffer(b *Buffer) {
	if b == nil {
		return
	}
	*b = Buffer{}
	bufferPool.Put(b)
}
