package spidev

import (
	"encoding/binary"
	"testing"
)

func TestTransferLayout(t *testing.T) {
	if size := binary.Size(iocTransfer{}); size != 32 {
		t.Errorf("spi_ioc_transfer is %d bytes, want 32", size)
	}
}

func TestIocMessage(t *testing.T) {
	tests := []struct {
		n    int
		want uintptr
	}{
		{0, 0x40006b00},
		{1, 0x40206b00},
		{2, 0x40406b00},
		{1000, 0x40006b00},
	}

	for _, tc := range tests {
		if got := iocMessage(tc.n); got != tc.want {
			t.Errorf("iocMessage(%d) = %08x, want %08x", tc.n, got, tc.want)
		}
	}
}

func TestTransferNeedsSelect(t *testing.T) {
	d := &Device{fd: -1}
	if _, err := d.Transfer([]byte{0x05}); err != ErrorNotSelected {
		t.Errorf("got %v", err)
	}
	if err := d.Deselect(); err != ErrorNotSelected {
		t.Errorf("got %v", err)
	}

	/* An empty window never reaches the kernel */
	if err := d.Select(); err != nil {
		t.Fatal(err)
	}
	if err := d.Deselect(); err != nil {
		t.Errorf("empty window: %v", err)
	}
}
