//go:build !linux

package spidev

import "errors"

var ErrorNotSelected = errors.New("spidev: transfer while chip is not selected")

var errUnsupported = errors.New("spidev: only available on Linux")

type Mode uint32

const (
	CPHA Mode = 1 << iota
	CPOL
)

type Device struct {
	MaxTransfer int
}

func Open(path string) (*Device, error) {
	return nil, errUnsupported
}

func (d *Device) Close() error { return nil }
func (d *Device) Select() error { return errUnsupported }
func (d *Device) Deselect() error { return errUnsupported }
func (d *Device) Transfer(out []byte) ([]byte, error) { return nil, errUnsupported }
func (d *Device) SetMode(m Mode) error { return errUnsupported }
func (d *Device) SetBitsPerWord(bpw uint8) error { return errUnsupported }
func (d *Device) SetSpeedHz(hz uint32) error { return errUnsupported }
func (d *Device) Mode() (Mode, error) { return 0, errUnsupported }
func (d *Device) SpeedHz() (uint32, error) { return 0, errUnsupported }
