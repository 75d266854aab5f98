package spiflash

import "fmt"

// Transport is the bus the chip hangs off. Transfer is full duplex: it
// clocks out every byte of out and returns the same number of bytes read.
// The driver calls Select, one or more Transfers and Deselect for each
// command, and never interleaves two commands.
type Transport interface {
	Select() error
	Deselect() error
	Transfer(out []byte) ([]byte, error)
}

func (f *Flash) transfer(out []byte) ([]byte, error) {
	in, err := f.t.Transfer(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	if len(in) < len(out) {
		return nil, fmt.Errorf("%w: short transfer, %d of %d bytes", ErrTransportFailure, len(in), len(out))
	}
	return in, nil
}

// command runs a single chip select window: header, then an optional
// outgoing data phase, then an optional incoming data phase into rx.
func (f *Flash) command(header []byte, data []byte, rx []byte) (err error) {
	if err = f.t.Select(); err != nil {
		return fmt.Errorf("%w: select: %w", ErrTransportFailure, err)
	}
	defer func() {
		if dErr := f.t.Deselect(); dErr != nil && err == nil {
			err = fmt.Errorf("%w: deselect: %w", ErrTransportFailure, dErr)
		}
	}()

	if _, err = f.transfer(header); err != nil {
		return err
	}

	for len(data) > 0 {
		n := len(data)
		if n > f.maxTransfer {
			n = f.maxTransfer
		}
		if _, err = f.transfer(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}

	var zero []byte
	for len(rx) > 0 {
		n := len(rx)
		if n > f.maxTransfer {
			n = f.maxTransfer
		}
		if len(zero) < n {
			zero = make([]byte, n)
		}

		in, err := f.transfer(zero[:n])
		if err != nil {
			return err
		}
		copy(rx, in[:n])
		rx = rx[n:]
	}

	return nil
}

func (f *Flash) simpleCommand(op Operation) error {
	code, err := f.profile.opcode(op, 0)
	if err != nil {
		return err
	}
	return f.command([]byte{code}, nil, nil)
}
