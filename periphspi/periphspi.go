// Package periphspi adapts a periph.io SPI connection and a GPIO chip select
// line to the spiflash transport.
package periphspi

import (
	"errors"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

var ErrorNoChipSelect = errors.New("periphspi: a chip select pin is required")

// Transport drives the chip select pin itself so that one command can span
// several Tx calls.
type Transport struct {
	conn spi.Conn
	cs   gpio.PinOut
}

func New(conn spi.Conn, cs gpio.PinOut) (*Transport, error) {
	if cs == nil {
		return nil, ErrorNoChipSelect
	}

	t := &Transport{conn: conn, cs: cs}
	if err := cs.Out(gpio.High); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) Select() error {
	return t.cs.Out(gpio.Low)
}

func (t *Transport) Deselect() error {
	return t.cs.Out(gpio.High)
}

func (t *Transport) Transfer(out []byte) ([]byte, error) {
	in := make([]byte, len(out))
	if err := t.conn.Tx(out, in); err != nil {
		return nil, err
	}
	return in, nil
}

// MaxTransfer is the largest Tx the connection accepts, 0 if unknown.
func (t *Transport) MaxTransfer() int {
	if l, ok := t.conn.(interface{ MaxTxSize() int }); ok {
		return l.MaxTxSize()
	}
	return 0
}

func (t *Transport) String() string {
	return t.conn.String() + " cs=" + t.cs.Name()
}
