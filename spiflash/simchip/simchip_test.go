package simchip

import (
	"bytes"
	"testing"
)

func window(t *testing.T, c *Chip, out ...byte) []byte {
	t.Helper()

	if err := c.Select(); err != nil {
		t.Fatal(err)
	}
	in, err := c.Transfer(out)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Deselect(); err != nil {
		t.Fatal(err)
	}
	return in
}

func TestProgramNeedsWriteEnable(t *testing.T) {
	c := New(Config{Capacity: 4096})

	window(t, c, cmdPageProgram, 0, 0, 0, 0x12)
	if c.Memory()[0] != 0xFF || c.Ignored != 1 {
		t.Error("program accepted without write enable")
	}

	window(t, c, cmdWriteEnable)
	window(t, c, cmdPageProgram, 0, 0, 0, 0x12)
	if c.Memory()[0] != 0x12 {
		t.Error("program not applied")
	}
	if c.Status()&statusWEL != 0 {
		t.Error("write enable latch not cleared")
	}
}

func TestProgramWrapsInPage(t *testing.T) {
	c := New(Config{Capacity: 4096})

	window(t, c, cmdWriteEnable)
	window(t, c, cmdPageProgram, 0, 0x01, 0xFF, 0xA0, 0xA1)

	if c.Memory()[0x1FF] != 0xA0 || c.Memory()[0x100] != 0xA1 || c.Memory()[0x200] != 0xFF {
		t.Error("page program did not wrap inside the page")
	}
}

func TestBusyPolls(t *testing.T) {
	c := New(Config{Capacity: 4096, BusyPolls: 2})

	window(t, c, cmdWriteEnable)
	window(t, c, cmdSectorErase, 0, 0, 0)

	var got []byte
	for i := 0; i < 3; i++ {
		got = append(got, window(t, c, cmdReadStatus, 0)[1])
	}

	want := []byte{statusBusy | statusWEL, statusBusy | statusWEL, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("status sequence %x, want %x", got, want)
	}
}

func TestReadAndIDs(t *testing.T) {
	c := New(Config{Capacity: 4096, JEDECID: [3]byte{1, 2, 3}})
	c.Memory()[10] = 0x55

	if in := window(t, c, cmdRead, 0, 0, 10, 0, 0); !bytes.Equal(in[4:], []byte{0x55, 0xFF}) {
		t.Errorf("read %x", in)
	}
	if in := window(t, c, cmdFastRead, 0, 0, 10, 0, 0); in[5] != 0x55 {
		t.Errorf("fast read %x", in)
	}
	if in := window(t, c, cmdJEDECID, 0, 0, 0); !bytes.Equal(in[1:], []byte{1, 2, 3}) {
		t.Errorf("jedec id %x", in)
	}

	if len(c.Log) != 3 || c.Count(cmdRead) != 1 {
		t.Errorf("log %v", c.Log)
	}

	c.ClearLog()
	window(t, c, cmdReadStatus, 0)
	if !bytes.Equal(c.Opcodes(), []byte{cmdReadStatus}) {
		t.Errorf("log after clear %x", c.Opcodes())
	}
}

func TestTransferWithoutSelect(t *testing.T) {
	c := New(Config{Capacity: 4096})
	if _, err := c.Transfer([]byte{cmdReadStatus}); err != ErrNotSelected {
		t.Errorf("got %v", err)
	}
}
