// Package tasks builds multi step workflows on top of spiflash: erasing a
// region unit by unit, writing an image with verification and dumping
// flash contents.
package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/BertoldVdb/spinor/image"
	"github.com/BertoldVdb/spinor/spiflash"
)

// Chunk size used when streaming reads and programs.
const chunkSize = 4096

type Tasks struct {
	flash *spiflash.Flash

	// Units tried by EraseRange, largest first.
	Units []spiflash.EraseUnit

	LogFunc func(format string, params ...any)

	// Progress, if set, is called with the completed fraction of a task.
	Progress func(task string, done float64)
}

func New(flash *spiflash.Flash) *Tasks {
	return &Tasks{
		flash: flash,
		Units: []spiflash.EraseUnit{spiflash.Block64K, spiflash.Block32K, spiflash.Sector4K},
	}
}

func (t *Tasks) log(format string, params ...any) {
	if t.LogFunc != nil {
		t.LogFunc(format, params...)
	}
}

func (t *Tasks) progress(task string, done int64, total int64) {
	if t.Progress != nil && total > 0 {
		t.Progress(task, float64(done)/float64(total))
	}
}

// eraseUnit picks the largest unit that starts at offset and fits in
// [offset, end).
func (t *Tasks) eraseUnit(offset int64, end int64) (spiflash.EraseUnit, bool) {
	for _, u := range t.Units {
		if offset%int64(u) == 0 && offset+int64(u) <= end {
			return u, true
		}
	}
	return 0, false
}

// EraseRange erases [offset, offset+length) with one erase command per
// unit. Both ends must be sector aligned. Units the chip family cannot
// erase are skipped in favour of smaller ones.
func (t *Tasks) EraseRange(ctx context.Context, offset int64, length int64) error {
	end := offset + length
	if offset%spiflash.SectorSize != 0 || end%spiflash.SectorSize != 0 {
		return fmt.Errorf("%w: range 0x%x-0x%x is not sector aligned", spiflash.ErrMisalignedAddress, offset, end)
	}
	if offset < 0 || length < 0 || end > t.flash.Capacity() {
		return fmt.Errorf("%w: range 0x%x-0x%x", spiflash.ErrOutOfRange, offset, end)
	}

	skip := make(map[spiflash.EraseUnit]bool)
	for pos := offset; pos < end; {
		unit, ok := t.eraseUnit(pos, end)
		for ok && skip[unit] {
			unit, ok = t.smaller(unit, pos, end)
		}
		if !ok {
			return fmt.Errorf("%w: no erase unit fits at 0x%x", spiflash.ErrUnsupportedOperation, pos)
		}

		err := t.flash.Erase(ctx, pos, unit)
		if err != nil && isUnsupported(err) {
			t.log("tasks: %s erase unsupported, falling back", unit)
			skip[unit] = true
			continue
		}
		if err != nil {
			return err
		}

		pos += int64(unit)
		t.progress("erase", pos-offset, length)
	}

	return nil
}

func (t *Tasks) smaller(unit spiflash.EraseUnit, offset int64, end int64) (spiflash.EraseUnit, bool) {
	for _, u := range t.Units {
		if u < unit && offset%int64(u) == 0 && offset+int64(u) <= end {
			return u, true
		}
	}
	return 0, false
}

// Program writes data at offset in chunks, reporting progress. The target
// must be erased; runs of 0xFF at the edges of a chunk are not sent.
func (t *Tasks) Program(ctx context.Context, offset int64, data []byte) error {
	if offset < 0 || offset+int64(len(data)) > t.flash.Capacity() {
		return &spiflash.OpError{
			Op:     "program",
			Offset: offset,
			Kind:   spiflash.ErrOutOfRange,
			Err:    fmt.Errorf("%w: 0x%x+%d > %d", spiflash.ErrOutOfRange, offset, len(data), t.flash.Capacity()),
		}
	}

	for done := 0; done < len(data); {
		n := len(data) - done
		if n > chunkSize {
			n = chunkSize
		}

		skipped, chunk := trimErased(data[done : done+n])
		if len(chunk) > 0 {
			if err := t.flash.Program(ctx, offset+int64(done+skipped), chunk); err != nil {
				return withCompleted(err, done+skipped)
			}
		}

		done += n
		t.progress("program", int64(done), int64(len(data)))
	}

	return nil
}

// Read dumps [offset, offset+length) in chunks.
func (t *Tasks) Read(offset int64, length int) ([]byte, error) {
	if length < 0 {
		return nil, fmt.Errorf("%w: negative length %d", spiflash.ErrOutOfRange, length)
	}

	out := make([]byte, length)

	for done := 0; done < length; {
		n := length - done
		if n > chunkSize {
			n = chunkSize
		}

		if err := t.flash.Read(offset+int64(done), out[done:done+n]); err != nil {
			return nil, err
		}

		done += n
		t.progress("read", int64(done), int64(length))
	}

	return out, nil
}

// Checksum computes the CRC-32 of a flash region without keeping it in
// memory.
func (t *Tasks) Checksum(offset int64, length int64) (uint32, error) {
	if length < 0 {
		return 0, fmt.Errorf("%w: negative length %d", spiflash.ErrOutOfRange, length)
	}

	h := image.NewHash()
	buf := make([]byte, chunkSize)

	for done := int64(0); done < length; {
		n := length - done
		if n > chunkSize {
			n = chunkSize
		}

		if err := t.flash.Read(offset+done, buf[:n]); err != nil {
			return 0, err
		}
		h.Write(buf[:n])
		done += n
	}

	return h.Sum32(), nil
}

// WriteImage erases every unit the image touches, programs it and, when
// verify is set, reads it back and compares checksums. Bytes sharing an
// erase unit with the image but outside it are preserved.
func (t *Tasks) WriteImage(ctx context.Context, img *image.Image, verify bool) error {
	if err := img.Validate(t.flash.Capacity()); err != nil {
		return err
	}

	start, end := img.Span(spiflash.SectorSize)
	padded := img.Padded(spiflash.SectorSize)

	/* Keep what shares the first and last sector with the image */
	if start < img.Offset {
		if err := t.flash.Read(start, padded.Data[:img.Offset-start]); err != nil {
			return err
		}
	}
	tail := img.Offset + int64(len(img.Data))
	if tail < end {
		if err := t.flash.Read(tail, padded.Data[tail-start:]); err != nil {
			return err
		}
	}

	t.log("tasks: writing %d bytes at 0x%x, erasing 0x%x-0x%x", len(img.Data), img.Offset, start, end)
	if err := t.EraseRange(ctx, start, end-start); err != nil {
		return err
	}

	if err := t.Program(ctx, start, padded.Data); err != nil {
		return err
	}

	if !verify {
		return nil
	}

	readback, err := t.Read(img.Offset, len(img.Data))
	if err != nil {
		return err
	}
	if err := img.Verify(readback); err != nil {
		return err
	}

	t.log("tasks: verified, crc %08x", img.Checksum())
	return nil
}

// withCompleted adds the bytes finished by earlier chunks to the count in
// a program error.
func withCompleted(err error, done int) error {
	var oe *spiflash.OpError
	if !errors.As(err, &oe) {
		return err
	}

	c := *oe
	c.Completed += done
	return &c
}

func isUnsupported(err error) bool {
	return errors.Is(err, spiflash.ErrUnsupportedOperation)
}

// trimErased strips leading and trailing 0xFF bytes, which need no
// programming on an erased part. It returns the offset of the remainder.
func trimErased(data []byte) (int, []byte) {
	front := 0
	for front < len(data) && data[front] == 0xFF {
		front++
	}

	end := len(data)
	for end > front && data[end-1] == 0xFF {
		end--
	}

	return front, data[front:end]
}
