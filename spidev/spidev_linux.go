// Package spidev drives a flash chip through the Linux spidev interface.
//
// Useful references:
//   - Linux: include/uapi/linux/spi/spidev.h
//   - Linux: Documentation/spi/spidev.rst
package spidev

import (
	"encoding/binary"
	"errors"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocWrMaxSpeedHz  = 0x40046b04
	iocRdMaxSpeedHz  = 0x80046b04
	iocWrBitsPerWord = 0x40016b03
	iocRdMode32      = 0x80046b05
	iocWrMode32      = 0x40046b05
)

type Mode uint32

const (
	CPHA Mode = 1 << iota
	CPOL
	CSHigh
	LSBFirst
	ThreeWire
	Loop
	NoCS
	Ready
)

// iocTransfer mirrors struct spi_ioc_transfer.
type iocTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Length         uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

// iocMessage is the ioctl number for a message of n transfers.
func iocMessage(n int) uintptr {
	const (
		sizeBits  = 14
		sizeShift = 16
	)
	size := uint32(n * binary.Size(iocTransfer{}))
	if n < 0 || size > (1<<sizeBits) {
		return iocMessage(0)
	}
	return uintptr(0x40006b00 | (size << sizeShift))
}

var ErrorNotSelected = errors.New("spidev: transfer while chip is not selected")

// Device is a spidev node. Chip select is held between Select and Deselect
// by setting cs_change on every transfer and ending the window with an
// empty transfer that releases it.
type Device struct {
	fd int

	selected bool
	active   bool

	// MaxTransfer is the spidev buffer size (the bufsiz module parameter).
	MaxTransfer int
}

// Open opens a spidev node such as "/dev/spidev0.0". Remember to call Close.
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	return &Device{fd: fd, MaxTransfer: 4096}, nil
}

func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}

	fd := d.fd
	d.fd = -1
	return unix.Close(fd)
}

func (d *Device) message(it *iocTransfer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocMessage(1), uintptr(unsafe.Pointer(it)))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *Device) Select() error {
	if d.selected {
		return errors.New("spidev: already selected")
	}
	d.selected = true
	d.active = false
	return nil
}

func (d *Device) Transfer(out []byte) ([]byte, error) {
	if !d.selected {
		return nil, ErrorNotSelected
	}
	if len(out) == 0 {
		return nil, nil
	}

	in := make([]byte, len(out))
	it := iocTransfer{
		TxBuf:    uint64(uintptr(unsafe.Pointer(&out[0]))),
		RxBuf:    uint64(uintptr(unsafe.Pointer(&in[0]))),
		Length:   uint32(len(out)),
		CSChange: 1,
	}

	err := d.message(&it)
	runtime.KeepAlive(out)
	runtime.KeepAlive(in)
	if err != nil {
		return nil, err
	}
	d.active = true

	return in, nil
}

func (d *Device) Deselect() error {
	if !d.selected {
		return ErrorNotSelected
	}
	d.selected = false

	if !d.active {
		return nil
	}
	d.active = false

	it := iocTransfer{}
	return d.message(&it)
}

func (d *Device) Mode() (Mode, error) {
	var m Mode
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocRdMode32, uintptr(unsafe.Pointer(&m)))
	if errno != 0 {
		return 0, errno
	}
	return m, nil
}

func (d *Device) SetMode(m Mode) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocWrMode32, uintptr(unsafe.Pointer(&m)))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *Device) SetBitsPerWord(bpw uint8) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocWrBitsPerWord, uintptr(unsafe.Pointer(&bpw)))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *Device) SpeedHz() (uint32, error) {
	var hz uint32
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocRdMaxSpeedHz, uintptr(unsafe.Pointer(&hz)))
	if errno != 0 {
		return 0, errno
	}
	return hz, nil
}

func (d *Device) SetSpeedHz(hz uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocWrMaxSpeedHz, uintptr(unsafe.Pointer(&hz)))
	if errno != 0 {
		return errno
	}
	return nil
}
