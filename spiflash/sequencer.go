package spiflash

import (
	"context"
	"fmt"
)

func (f *Flash) writeEnable() error {
	return f.simpleCommand(OpWriteEnable)
}

// finish waits for the chip to complete the command just issued and checks
// that it dropped the write enable latch.
func (f *Flash) finish(ctx context.Context, kind PollKind) error {
	status, err := f.waitReady(ctx, f.policies[kind])
	if err != nil {
		return err
	}

	if status.WriteEnabled() {
		return fmt.Errorf("%w: status %s", ErrProtocolViolation, status)
	}
	return nil
}

func (f *Flash) programPage(ctx context.Context, c chunk, data []byte) error {
	code, err := f.profile.opcode(OpPageProgram, f.addr.width)
	if err != nil {
		return err
	}

	header := make([]byte, 1, 1+f.addr.width)
	header[0] = code
	if header, err = f.addr.put(header, c.offset); err != nil {
		return err
	}

	if err := f.writeEnable(); err != nil {
		return err
	}

	if err := f.command(header, data, nil); err != nil {
		return err
	}

	return f.finish(ctx, PollProgram)
}

func (f *Flash) program(ctx context.Context, offset int64, data []byte) error {
	const op = "program"

	if err := f.addr.check(offset, int64(len(data))); err != nil {
		return opError(op, offset, 0, err)
	}

	/* Resolve the opcode before touching the chip */
	if _, err := f.profile.opcode(OpPageProgram, f.addr.width); err != nil {
		return opError(op, offset, 0, err)
	}

	done := 0
	for _, c := range splitPages(offset, len(data), PageSize) {
		if err := ctx.Err(); err != nil {
			return opError(op, c.offset, done, err)
		}

		f.log("spiflash: program 0x%06x, %d bytes", c.offset, c.length)
		if err := f.programPage(ctx, c, data[done:done+c.length]); err != nil {
			return opError(op, c.offset, done, err)
		}
		done += c.length
	}

	return nil
}

func (f *Flash) erase(ctx context.Context, offset int64, unit EraseUnit) error {
	const op = "erase"

	eraseOp, ok := unit.operation()
	if !ok {
		return opError(op, offset, 0, fmt.Errorf("%w: erase unit of %d bytes", ErrUnsupportedOperation, uint32(unit)))
	}

	if err := f.addr.check(offset, 0); err != nil {
		return opError(op, offset, 0, err)
	}
	if offset%int64(unit) != 0 {
		return opError(op, offset, 0, fmt.Errorf("%w: 0x%x is not a multiple of %s", ErrMisalignedAddress, offset, unit))
	}

	code, err := f.profile.opcode(eraseOp, f.addr.width)
	if err != nil {
		return opError(op, offset, 0, err)
	}

	header := make([]byte, 1, 1+f.addr.width)
	header[0] = code
	if header, err = f.addr.put(header, offset); err != nil {
		return opError(op, offset, 0, err)
	}

	if err := ctx.Err(); err != nil {
		return opError(op, offset, 0, err)
	}

	kind := PollBlockErase
	if unit == Sector4K {
		kind = PollSectorErase
	}

	f.log("spiflash: erase %s at 0x%06x", unit, offset)
	if err := f.writeEnable(); err != nil {
		return opError(op, offset, 0, err)
	}
	if err := f.command(header, nil, nil); err != nil {
		return opError(op, offset, 0, err)
	}
	return opError(op, offset, 0, f.finish(ctx, kind))
}

func (f *Flash) eraseChip(ctx context.Context) error {
	const op = "chip erase"

	code, err := f.profile.opcode(OpChipErase, 0)
	if err != nil {
		return opError(op, -1, 0, err)
	}
	if err := ctx.Err(); err != nil {
		return opError(op, -1, 0, err)
	}

	f.log("spiflash: chip erase")
	if err := f.writeEnable(); err != nil {
		return opError(op, -1, 0, err)
	}
	if err := f.command([]byte{code}, nil, nil); err != nil {
		return opError(op, -1, 0, err)
	}
	return opError(op, -1, 0, f.finish(ctx, PollChipErase))
}
