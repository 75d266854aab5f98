package spiflash

import "fmt"

// Largest capacity that can be addressed with 3 address bytes.
const max3ByteCapacity = 16 * 1024 * 1024

const maxCapacity = 1 << 32

type addressCodec struct {
	capacity int64
	width    int
}

func newAddressCodec(capacity int64) addressCodec {
	width := 3
	if capacity > max3ByteCapacity {
		width = 4
	}
	return addressCodec{capacity: capacity, width: width}
}

func (a addressCodec) check(offset int64, length int64) error {
	if offset < 0 || length < 0 || offset >= a.capacity || length > a.capacity-offset {
		return fmt.Errorf("%w: offset 0x%x length %d, capacity %d", ErrOutOfRange, offset, length, a.capacity)
	}
	return nil
}

// put appends the big endian address of offset to buf.
func (a addressCodec) put(buf []byte, offset int64) ([]byte, error) {
	if err := a.check(offset, 0); err != nil {
		return buf, err
	}

	for i := a.width - 1; i >= 0; i-- {
		buf = append(buf, byte(offset>>(8*i)))
	}
	return buf, nil
}

func (a addressCodec) encode(offset int64) ([]byte, error) {
	return a.put(make([]byte, 0, a.width), offset)
}
