package spiflash

import "fmt"

// Family selects the command set of the chip.
type Family int

const (
	FamilyQ Family = iota
	FamilyX
)

func (f Family) String() string {
	switch f {
	case FamilyQ:
		return "Q"
	case FamilyX:
		return "X"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// ParseFamily accepts "q"/"Q" and "x"/"X".
func ParseFamily(s string) (Family, error) {
	switch s {
	case "q", "Q":
		return FamilyQ, nil
	case "x", "X":
		return FamilyX, nil
	}
	return 0, fmt.Errorf("unknown chip family %q", s)
}

// Operation is a logical command that a profile maps to an opcode.
type Operation int

const (
	OpRead Operation = iota
	OpFastRead
	OpPageProgram
	OpSectorErase
	OpBlock32Erase
	OpBlock64Erase
	OpChipErase
	OpReadStatus
	OpWriteEnable
	OpJEDECID
	OpUniqueID
	OpPowerDown
	OpReleasePowerDown
	OpEnableReset
	OpReset
)

var operationNames = [...]string{
	OpRead:             "read",
	OpFastRead:         "fast read",
	OpPageProgram:      "page program",
	OpSectorErase:      "sector erase",
	OpBlock32Erase:     "block32 erase",
	OpBlock64Erase:     "block64 erase",
	OpChipErase:        "chip erase",
	OpReadStatus:       "read status",
	OpWriteEnable:      "write enable",
	OpJEDECID:          "jedec id",
	OpUniqueID:         "unique id",
	OpPowerDown:        "power down",
	OpReleasePowerDown: "release power down",
	OpEnableReset:      "enable reset",
	OpReset:            "reset",
}

func (o Operation) String() string {
	if o >= 0 && int(o) < len(operationNames) {
		return operationNames[o]
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// EraseUnit is an erase granularity in bytes.
type EraseUnit uint32

const (
	Sector4K EraseUnit = 4 * 1024
	Block32K EraseUnit = 32 * 1024
	Block64K EraseUnit = 64 * 1024
)

func (u EraseUnit) String() string {
	return fmt.Sprintf("%dKiB", uint32(u)/1024)
}

func (u EraseUnit) operation() (Operation, bool) {
	switch u {
	case Sector4K:
		return OpSectorErase, true
	case Block32K:
		return OpBlock32Erase, true
	case Block64K:
		return OpBlock64Erase, true
	}
	return 0, false
}

const (
	PageSize   = 256
	SectorSize = PageSize * 16
)

// StatusRegister is the raw value of status register 1.
type StatusRegister struct {
	Value uint8

	busyMask uint8
	welMask  uint8
}

func (s StatusRegister) Busy() bool {
	return s.Value&s.busyMask != 0
}

// WriteEnabled reports the write enable latch.
func (s StatusRegister) WriteEnabled() bool {
	return s.Value&s.welMask != 0
}

func (s StatusRegister) String() string {
	return fmt.Sprintf("%02x (busy=%v wel=%v)", s.Value, s.Busy(), s.WriteEnabled())
}

type chipProfile struct {
	family Family

	/* Opcodes keyed by address width, width 0 is used for commands
	 * without an address phase */
	opcodes3 map[Operation]uint8
	opcodes4 map[Operation]uint8
	plain    map[Operation]uint8

	dummy map[Operation]int

	busyMask uint8
	welMask  uint8
}

var profiles = map[Family]*chipProfile{
	FamilyQ: {
		family: FamilyQ,
		opcodes3: map[Operation]uint8{
			OpRead:         0x03,
			OpFastRead:     0x0B,
			OpPageProgram:  0x02,
			OpSectorErase:  0x20,
			OpBlock32Erase: 0x52,
			OpBlock64Erase: 0xD8,
		},
		opcodes4: map[Operation]uint8{
			OpRead:         0x13,
			OpFastRead:     0x0C,
			OpPageProgram:  0x12,
			OpSectorErase:  0x21,
			OpBlock64Erase: 0xDC,
		},
		plain: map[Operation]uint8{
			OpChipErase:        0xC7,
			OpReadStatus:       0x05,
			OpWriteEnable:      0x06,
			OpJEDECID:          0x9F,
			OpUniqueID:         0x4B,
			OpPowerDown:        0xB9,
			OpReleasePowerDown: 0xAB,
			OpEnableReset:      0x66,
			OpReset:            0x99,
		},
		dummy:    map[Operation]int{OpFastRead: 1, OpUniqueID: 4},
		busyMask: 1 << 0,
		welMask:  1 << 1,
	},
	FamilyX: {
		family: FamilyX,
		opcodes3: map[Operation]uint8{
			OpRead:         0x03,
			OpFastRead:     0x0B,
			OpPageProgram:  0x02,
			OpSectorErase:  0x20,
			OpBlock32Erase: 0x52,
			OpBlock64Erase: 0xD8,
		},
		opcodes4: map[Operation]uint8{},
		plain: map[Operation]uint8{
			OpChipErase:        0xC7,
			OpReadStatus:       0x05,
			OpWriteEnable:      0x06,
			OpJEDECID:          0x9F,
			OpUniqueID:         0x4B,
			OpPowerDown:        0xB9,
			OpReleasePowerDown: 0xAB,
		},
		dummy:    map[Operation]int{OpFastRead: 1, OpUniqueID: 4},
		busyMask: 1 << 0,
		welMask:  1 << 1,
	},
}

func profileLookup(f Family) (*chipProfile, bool) {
	p, ok := profiles[f]
	return p, ok
}

// opcode resolves op for the given address width. Operations without an
// address phase ignore the width.
func (p *chipProfile) opcode(op Operation, width int) (uint8, error) {
	if code, ok := p.plain[op]; ok {
		return code, nil
	}

	table := p.opcodes3
	if width == 4 {
		table = p.opcodes4
	}
	if code, ok := table[op]; ok {
		return code, nil
	}

	return 0, fmt.Errorf("%w: %s on %s-series with %d byte addressing", ErrUnsupportedOperation, op, p.family, width)
}

func (p *chipProfile) dummyBytes(op Operation) int {
	return p.dummy[op]
}

func (p *chipProfile) status(v uint8) StatusRegister {
	return StatusRegister{Value: v, busyMask: p.busyMask, welMask: p.welMask}
}
