package spiflash

import (
	"bytes"
	"errors"
	"testing"
)

func TestAddressWidth(t *testing.T) {
	tests := []struct {
		capacity int64
		width    int
	}{
		{4096, 3},
		{1024 * 1024, 3},
		{16 * 1024 * 1024, 3},
		{16*1024*1024 + 1, 4},
		{32 * 1024 * 1024, 4},
		{1 << 32, 4},
	}

	for _, tc := range tests {
		a := newAddressCodec(tc.capacity)
		if a.width != tc.width {
			t.Errorf("capacity %d: width %d, want %d", tc.capacity, a.width, tc.width)
		}

		enc, err := a.encode(0)
		if err != nil {
			t.Fatalf("capacity %d: %v", tc.capacity, err)
		}
		if len(enc) != tc.width {
			t.Errorf("capacity %d: encoded %d bytes, want %d", tc.capacity, len(enc), tc.width)
		}
	}
}

func TestAddressEncode(t *testing.T) {
	a := newAddressCodec(16 * 1024 * 1024)
	enc, err := a.encode(0x123456)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, []byte{0x12, 0x34, 0x56}) {
		t.Errorf("encoded %x", enc)
	}

	a = newAddressCodec(64 * 1024 * 1024)
	enc, err = a.encode(0x3456789)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc, []byte{0x03, 0x45, 0x67, 0x89}) {
		t.Errorf("encoded %x", enc)
	}
}

func TestAddressRange(t *testing.T) {
	a := newAddressCodec(8192)

	for _, offset := range []int64{-1, 8192, 1 << 40} {
		if _, err := a.encode(offset); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("offset %d: got %v", offset, err)
		}
	}

	if _, err := a.encode(8191); err != nil {
		t.Errorf("last byte rejected: %v", err)
	}

	if err := a.check(8000, 192); err != nil {
		t.Errorf("range up to the end rejected: %v", err)
	}
	if err := a.check(8000, 193); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("range past the end: %v", err)
	}
}
