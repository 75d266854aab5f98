package image

import (
	"errors"
	"fmt"
	"os"
)

var (
	ErrorInvalidLength = errors.New("image length not valid")
	ErrorOutOfRange    = errors.New("image does not fit in flash")
	ErrorCRCMismatch   = errors.New("CRC is not valid")
)

const erasedByte = 0xFF

// Image is a blob destined for a fixed offset in flash.
type Image struct {
	Offset int64
	Data   []byte
}

func Load(path string, offset int64) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrorInvalidLength
	}

	return &Image{Offset: offset, Data: data}, nil
}

// Validate checks that the image lies inside a flash of the given capacity.
func (i *Image) Validate(capacity int64) error {
	if len(i.Data) == 0 {
		return ErrorInvalidLength
	}
	if i.Offset < 0 || i.Offset+int64(len(i.Data)) > capacity {
		return fmt.Errorf("%w: 0x%x+%d > %d", ErrorOutOfRange, i.Offset, len(i.Data), capacity)
	}
	return nil
}

// Span returns the region [start, end) covering the image after aligning
// both ends outwards to unit.
func (i *Image) Span(unit int64) (int64, int64) {
	start := i.Offset &^ (unit - 1)
	end := i.Offset + int64(len(i.Data))
	end = (end + unit - 1) &^ (unit - 1)
	return start, end
}

// Padded returns the image extended with erased bytes to the aligned span,
// so that the result can be written over whole erase units.
func (i *Image) Padded(unit int64) *Image {
	start, end := i.Span(unit)

	buf := make([]byte, end-start)
	for k := range buf {
		buf[k] = erasedByte
	}
	copy(buf[i.Offset-start:], i.Data)

	return &Image{Offset: start, Data: buf}
}

func (i *Image) Checksum() uint32 {
	return Checksum(i.Data)
}

// Verify compares readback against the image by checksum.
func (i *Image) Verify(readback []byte) error {
	if len(readback) != len(i.Data) {
		return ErrorInvalidLength
	}
	if got, want := Checksum(readback), i.Checksum(); got != want {
		return fmt.Errorf("%w: %08x != %08x", ErrorCRCMismatch, got, want)
	}
	return nil
}
