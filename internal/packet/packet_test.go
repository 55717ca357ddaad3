package packet

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"
)

func randomSample(r *rand.Rand) Sample {
	s := Sample{
		T1:      uint8(r.Intn(256)),
		T2:      uint8(r.Intn(256)),
		BeatAvg: int32(r.Uint32()),
	}
	for i := 0; i < SubSamples; i++ {
		s.Red[i] = uint16(r.Intn(1 << 16))
		s.IR[i] = uint16(r.Intn(1 << 16))
	}
	return s
}

func TestDecodeRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		want := randomSample(r)
		buf := Encode(want)
		if len(buf) != PacketSize {
			t.Fatalf("encoded length = %d, want %d", len(buf), PacketSize)
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != want {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
		}
	}
}

func TestDecodeOffsets(t *testing.T) {
	buf := make([]byte, PacketSize)
	buf[0] = 7
	buf[1] = 9
	for i := 0; i < SubSamples; i++ {
		binary.LittleEndian.PutUint16(buf[2+2*i:], uint16(1000+i))
		binary.LittleEndian.PutUint16(buf[22+2*i:], uint16(2000+i))
	}
	beat := int32(-72)
	binary.LittleEndian.PutUint32(buf[42:], uint32(beat))

	s, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.T1 != 7 || s.T2 != 9 {
		t.Fatalf("t1/t2 = %d/%d", s.T1, s.T2)
	}
	for i := 0; i < SubSamples; i++ {
		if s.Red[i] != uint16(1000+i) {
			t.Errorf("red[%d] = %d", i, s.Red[i])
		}
		if s.IR[i] != uint16(2000+i) {
			t.Errorf("ir[%d] = %d", i, s.IR[i])
		}
	}
	if s.BeatAvg != beat {
		t.Errorf("beatAvg = %d, want %d", s.BeatAvg, beat)
	}
}

func TestDecodeInvalidLength(t *testing.T) {
	for _, n := range []int{0, 1, 45, 47, 48, 92} {
		_, err := Decode(make([]byte, n))
		if !errors.Is(err, ErrInvalidLength) {
			t.Fatalf("len %d: err = %v, want ErrInvalidLength", n, err)
		}
		var lenErr *InvalidLengthError
		if !errors.As(err, &lenErr) || lenErr.Length != n {
			t.Fatalf("len %d: err = %#v", n, err)
		}
	}

	if _, err := Decode(nil); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("nil buffer: err = %v", err)
	}
}

func TestBufferPoolClears(t *testing.T) {
	b := GetBuffer()
	b[0] = 0xff
	PutBuffer(b)
	PutBuffer(nil)

	again := GetBuffer()
	if again[0] != 0 {
		t.Fatalf("pooled buffer not cleared")
	}
}
