package periphspi

import (
	"testing"

	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/BertoldVdb/spinor/spiflash"
)

func TestJEDECID(t *testing.T) {
	p := &spitest.Playback{
		Playback: conntest.Playback{
			Ops: []conntest.IO{
				{W: []byte{0x9F}, R: []byte{0x00}},
				{W: []byte{0x00, 0x00, 0x00}, R: []byte{0xEF, 0x40, 0x18}},
			},
		},
	}
	defer func() {
		if err := p.Close(); err != nil {
			t.Error(err)
		}
	}()

	conn, err := p.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		t.Fatal(err)
	}

	cs := &gpiotest.Pin{N: "CS", L: gpio.Low}
	tr, err := New(conn, cs)
	if err != nil {
		t.Fatal(err)
	}
	if cs.L != gpio.High {
		t.Error("chip select not released by New")
	}

	f, err := spiflash.New(tr, spiflash.FamilyQ, 16*1024*1024)
	if err != nil {
		t.Fatal(err)
	}

	id, err := f.JEDECID()
	if err != nil {
		t.Fatal(err)
	}
	if id != [3]byte{0xEF, 0x40, 0x18} {
		t.Errorf("id %x", id)
	}
	if cs.L != gpio.High {
		t.Error("chip select left asserted")
	}
}

func TestNeedsChipSelect(t *testing.T) {
	if _, err := New(nil, nil); err != ErrorNoChipSelect {
		t.Errorf("got %v", err)
	}
}
