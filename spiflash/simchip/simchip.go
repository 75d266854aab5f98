// Package simchip is an in-memory W25 style NOR flash that speaks the SPI
// command set through the spiflash.Transport interface. Program and erase
// keep the chip busy for a configurable number of status polls.
package simchip

import (
	"errors"
	"fmt"
)

const pageSize = 256

const (
	cmdWriteEnable    = 0x06
	cmdWriteDisable   = 0x04
	cmdReadStatus     = 0x05
	cmdRead           = 0x03
	cmdRead4          = 0x13
	cmdFastRead       = 0x0B
	cmdFastRead4      = 0x0C
	cmdPageProgram    = 0x02
	cmdPageProgram4   = 0x12
	cmdSectorErase    = 0x20
	cmdSectorErase4   = 0x21
	cmdBlock32Erase   = 0x52
	cmdBlock64Erase   = 0xD8
	cmdBlock64Erase4  = 0xDC
	cmdChipErase      = 0xC7
	cmdChipErase2     = 0x60
	cmdJEDECID        = 0x9F
	cmdUniqueID       = 0x4B
	cmdPowerDown      = 0xB9
	cmdReleasePowerDn = 0xAB
	cmdEnableReset    = 0x66
	cmdReset          = 0x99
)

const (
	statusBusy = 1 << 0
	statusWEL  = 1 << 1
)

var ErrNotSelected = errors.New("transfer without chip select")

type Config struct {
	Capacity int64

	// AddressBytes used by the 3 byte opcodes. 0 selects 3 or 4 from the
	// capacity, like a chip strapped into 4 byte mode above 16MiB.
	AddressBytes int

	// BusyPolls is the number of status reads that report busy after a
	// program or erase was accepted.
	BusyPolls int

	// StuckWEL keeps the write enable latch set after completion.
	StuckWEL bool

	JEDECID  [3]byte
	UniqueID [8]byte
}

// Transaction is one chip select window as seen by the chip.
type Transaction struct {
	Opcode byte
	Bytes  []byte
}

type Chip struct {
	cfg Config
	mem []byte

	selected bool
	cur      []byte

	wel          bool
	busy         int
	poweredDown  bool
	resetEnabled bool

	// TransferErr, when set, is returned by every Transfer.
	TransferErr error

	// Ignored counts commands dropped because the chip was busy or not
	// write enabled.
	Ignored int

	Log []Transaction
}

func New(cfg Config) *Chip {
	if cfg.AddressBytes == 0 {
		cfg.AddressBytes = 3
		if cfg.Capacity > 16*1024*1024 {
			cfg.AddressBytes = 4
		}
	}

	c := &Chip{
		cfg: cfg,
		mem: make([]byte, cfg.Capacity),
	}
	fill(c.mem)
	return c
}

func fill(b []byte) {
	for i := range b {
		b[i] = 0xFF
	}
}

// Memory returns the live contents of the array.
func (c *Chip) Memory() []byte {
	return c.mem
}

func (c *Chip) Status() uint8 {
	var s uint8
	if c.busy > 0 {
		s |= statusBusy
	}
	if c.wel {
		s |= statusWEL
	}
	return s
}

// Count returns how many logged transactions used opcode.
func (c *Chip) Count(opcode byte) int {
	n := 0
	for _, t := range c.Log {
		if t.Opcode == opcode {
			n++
		}
	}
	return n
}

// Opcodes lists the opcode of every logged transaction in order.
func (c *Chip) Opcodes() []byte {
	result := make([]byte, len(c.Log))
	for i, t := range c.Log {
		result[i] = t.Opcode
	}
	return result
}

func (c *Chip) ClearLog() {
	c.Log = nil
}

func (c *Chip) Select() error {
	if c.selected {
		return errors.New("chip already selected")
	}
	c.selected = true
	c.cur = c.cur[:0]
	return nil
}

func (c *Chip) Transfer(out []byte) ([]byte, error) {
	if c.TransferErr != nil {
		return nil, c.TransferErr
	}
	if !c.selected {
		return nil, ErrNotSelected
	}

	in := make([]byte, len(out))
	for i, m := range out {
		c.cur = append(c.cur, m)
		in[i] = c.respond(len(c.cur) - 1)
	}
	return in, nil
}

func (c *Chip) Deselect() error {
	if !c.selected {
		return ErrNotSelected
	}
	c.selected = false

	if len(c.cur) == 0 {
		return nil
	}

	t := Transaction{Opcode: c.cur[0], Bytes: append([]byte(nil), c.cur...)}
	c.Log = append(c.Log, t)
	c.execute(t.Bytes)
	return nil
}

func (c *Chip) addressBytes(op byte) int {
	switch op {
	case cmdRead4, cmdFastRead4, cmdPageProgram4, cmdSectorErase4, cmdBlock64Erase4:
		return 4
	}
	return c.cfg.AddressBytes
}

func (c *Chip) address(cmd []byte, width int) (int64, bool) {
	if len(cmd) < 1+width {
		return 0, false
	}

	var addr int64
	for _, m := range cmd[1 : 1+width] {
		addr = addr<<8 | int64(m)
	}
	return addr % c.cfg.Capacity, true
}

// respond returns the byte the chip drives while byte idx of the current
// window is clocked in.
func (c *Chip) respond(idx int) byte {
	if idx == 0 || c.poweredDown {
		return 0xFF
	}

	op := c.cur[0]
	switch op {
	case cmdReadStatus:
		return c.Status()

	case cmdRead, cmdRead4, cmdFastRead, cmdFastRead4:
		if c.busy > 0 {
			return 0xFF
		}

		width := c.addressBytes(op)
		skip := 1 + width
		if op == cmdFastRead || op == cmdFastRead4 {
			skip++
		}
		if idx < skip {
			return 0
		}

		addr, _ := c.address(c.cur, width)
		return c.mem[(addr+int64(idx-skip))%c.cfg.Capacity]

	case cmdJEDECID:
		if idx <= len(c.cfg.JEDECID) {
			return c.cfg.JEDECID[idx-1]
		}

	case cmdUniqueID:
		if idx >= 5 && idx < 5+len(c.cfg.UniqueID) {
			return c.cfg.UniqueID[idx-5]
		}
	}

	return 0
}

func (c *Chip) execute(cmd []byte) {
	op := cmd[0]

	if c.poweredDown {
		if op == cmdReleasePowerDn {
			c.poweredDown = false
		} else {
			c.Ignored++
		}
		return
	}

	if op == cmdReadStatus {
		if c.busy > 0 {
			c.busy--
			if c.busy == 0 {
				c.complete()
			}
		}
		return
	}

	if c.busy > 0 {
		c.Ignored++
		return
	}

	switch op {
	case cmdWriteEnable:
		c.wel = true
	case cmdWriteDisable:
		c.wel = false
	case cmdPowerDown:
		c.poweredDown = true
	case cmdEnableReset:
		c.resetEnabled = true
		return
	case cmdReset:
		if c.resetEnabled {
			c.wel = false
		}

	case cmdPageProgram, cmdPageProgram4:
		addr, ok := c.address(cmd, c.addressBytes(op))
		if !ok || !c.wel {
			c.Ignored++
			break
		}

		/* Data past the end of the page wraps to its start */
		base := addr &^ (pageSize - 1)
		for i, m := range cmd[1+c.addressBytes(op):] {
			c.mem[base+(addr+int64(i))%pageSize] &= m
		}
		c.start()

	case cmdSectorErase, cmdSectorErase4:
		c.eraseUnit(cmd, 4*1024)
	case cmdBlock32Erase:
		c.eraseUnit(cmd, 32*1024)
	case cmdBlock64Erase, cmdBlock64Erase4:
		c.eraseUnit(cmd, 64*1024)

	case cmdChipErase, cmdChipErase2:
		if !c.wel {
			c.Ignored++
			break
		}
		fill(c.mem)
		c.start()
	}

	c.resetEnabled = false
}

func (c *Chip) eraseUnit(cmd []byte, size int64) {
	addr, ok := c.address(cmd, c.addressBytes(cmd[0]))
	if !ok || !c.wel {
		c.Ignored++
		return
	}

	base := addr &^ (size - 1)
	end := base + size
	if end > c.cfg.Capacity {
		end = c.cfg.Capacity
	}
	fill(c.mem[base:end])
	c.start()
}

func (c *Chip) start() {
	c.busy = c.cfg.BusyPolls
	if c.busy == 0 {
		c.complete()
	}
}

func (c *Chip) complete() {
	if !c.cfg.StuckWEL {
		c.wel = false
	}
}

func (t Transaction) String() string {
	return fmt.Sprintf("%02x %x", t.Opcode, t.Bytes[1:])
}
