package spiflash

import (
	"context"
	"fmt"
	"math"
)

// Flash drives one NOR flash chip. It owns its transport and is not safe
// for concurrent use; callers sharing a chip must serialize access.
type Flash struct {
	t       Transport
	profile *chipProfile
	addr    addressCodec

	policies    map[PollKind]PollPolicy
	maxTransfer int
	fastRead    bool

	LogFunc func(format string, params ...any)
}

type Option func(f *Flash)

// WithPollPolicy overrides the busy wait policy for one kind of operation.
func WithPollPolicy(kind PollKind, p PollPolicy) Option {
	return func(f *Flash) {
		f.policies[kind] = p
	}
}

// WithMaxTransfer limits the number of bytes handed to a single
// Transport.Transfer call. Longer data phases are split while the chip
// stays selected.
func WithMaxTransfer(n int) Option {
	return func(f *Flash) {
		if n > 0 {
			f.maxTransfer = n
		}
	}
}

// WithFastRead makes Read use the fast read command with its dummy byte.
func WithFastRead() Option {
	return func(f *Flash) {
		f.fastRead = true
	}
}

func WithLogFunc(fn func(format string, params ...any)) Option {
	return func(f *Flash) {
		f.LogFunc = fn
	}
}

// New creates a driver for a chip of the given family and capacity in
// bytes. The capacity is not verified against the chip.
func New(t Transport, family Family, capacity int64, opts ...Option) (*Flash, error) {
	profile, ok := profileLookup(family)
	if !ok {
		return nil, fmt.Errorf("%w: unknown family %s", ErrUnsupportedOperation, family)
	}

	if capacity <= 0 || capacity%SectorSize != 0 || capacity > maxCapacity {
		return nil, fmt.Errorf("capacity %d is not a positive multiple of %d bytes", capacity, SectorSize)
	}

	f := &Flash{
		t:           t,
		profile:     profile,
		addr:        newAddressCodec(capacity),
		policies:    make(map[PollKind]PollPolicy),
		maxTransfer: math.MaxInt32,
	}

	for k, p := range DefaultPollPolicies {
		f.policies[k] = p
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Flash) log(format string, params ...any) {
	if f.LogFunc != nil {
		f.LogFunc(format, params...)
	}
}

func (f *Flash) Capacity() int64 {
	return f.addr.capacity
}

func (f *Flash) Family() Family {
	return f.profile.family
}

// AddressWidth is the number of address bytes sent with each command.
func (f *Flash) AddressWidth() int {
	return f.addr.width
}

func (f *Flash) Sectors() int64 {
	return f.addr.capacity / int64(Sector4K)
}

func (f *Flash) Blocks32K() int64 {
	return f.addr.capacity / int64(Block32K)
}

func (f *Flash) Blocks64K() int64 {
	return f.addr.capacity / int64(Block64K)
}

// Read reads len(buf) bytes starting at offset in a single command.
func (f *Flash) Read(offset int64, buf []byte) error {
	const op = "read"

	if err := f.addr.check(offset, int64(len(buf))); err != nil {
		return opError(op, offset, 0, err)
	}

	readOp := OpRead
	if f.fastRead {
		readOp = OpFastRead
	}

	code, err := f.profile.opcode(readOp, f.addr.width)
	if err != nil {
		return opError(op, offset, 0, err)
	}

	header := make([]byte, 1, 1+f.addr.width+f.profile.dummyBytes(readOp))
	header[0] = code
	if header, err = f.addr.put(header, offset); err != nil {
		return opError(op, offset, 0, err)
	}
	header = append(header, make([]byte, f.profile.dummyBytes(readOp))...)

	return opError(op, offset, 0, f.command(header, nil, buf))
}

// ReadBytes is Read returning a new slice.
func (f *Flash) ReadBytes(offset int64, length int) ([]byte, error) {
	if length < 0 {
		return nil, opError("read", offset, 0, fmt.Errorf("%w: negative length %d", ErrOutOfRange, length))
	}

	buf := make([]byte, length)
	if err := f.Read(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Program writes data at offset, one page at a time. The target region
// must have been erased. On failure the returned *OpError reports how many
// bytes were already written; those are not rolled back.
func (f *Flash) Program(ctx context.Context, offset int64, data []byte) error {
	return f.program(ctx, offset, data)
}

// Erase erases one unit starting at offset, which must be aligned to the
// unit size. Erasing larger regions is done with one call per unit.
func (f *Flash) Erase(ctx context.Context, offset int64, unit EraseUnit) error {
	return f.erase(ctx, offset, unit)
}

func (f *Flash) EraseChip(ctx context.Context) error {
	return f.eraseChip(ctx)
}

// ReadStatus returns status register 1 as read from the chip right now.
func (f *Flash) ReadStatus() (StatusRegister, error) {
	status, err := f.readStatus()
	return status, opError("read status", -1, 0, err)
}

// JEDECID returns manufacturer, memory type and capacity id bytes.
func (f *Flash) JEDECID() ([3]byte, error) {
	var id [3]byte

	code, err := f.profile.opcode(OpJEDECID, 0)
	if err == nil {
		err = f.command([]byte{code}, nil, id[:])
	}
	return id, opError("jedec id", -1, 0, err)
}

// UniqueID returns the factory programmed 64 bit serial number.
func (f *Flash) UniqueID() ([8]byte, error) {
	var id [8]byte

	code, err := f.profile.opcode(OpUniqueID, 0)
	if err == nil {
		header := make([]byte, 1+f.profile.dummyBytes(OpUniqueID))
		header[0] = code
		err = f.command(header, nil, id[:])
	}
	return id, opError("unique id", -1, 0, err)
}

func (f *Flash) PowerDown() error {
	return opError("power down", -1, 0, f.simpleCommand(OpPowerDown))
}

func (f *Flash) ReleasePowerDown() error {
	return opError("release power down", -1, 0, f.simpleCommand(OpReleasePowerDown))
}

// Reset issues enable reset followed by reset. Not every family has it.
func (f *Flash) Reset() error {
	const op = "reset"

	if _, err := f.profile.opcode(OpReset, 0); err != nil {
		return opError(op, -1, 0, err)
	}
	if err := f.simpleCommand(OpEnableReset); err != nil {
		return opError(op, -1, 0, err)
	}
	return opError(op, -1, 0, f.simpleCommand(OpReset))
}
