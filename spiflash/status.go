package spiflash

import (
	"context"
	"fmt"
	"time"
)

// PollPolicy bounds the busy wait after a program or erase command.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

type PollKind int

const (
	PollProgram PollKind = iota
	PollSectorErase
	PollBlockErase
	PollChipErase
)

// DefaultPollPolicies are sized after the worst case W25Q datasheet
// timings (tPP 3ms, tSE 400ms, tBE2 2s, tCE 200s) with some margin.
var DefaultPollPolicies = map[PollKind]PollPolicy{
	PollProgram:     {MaxAttempts: 500, Interval: 20 * time.Microsecond},
	PollSectorErase: {MaxAttempts: 1000, Interval: time.Millisecond},
	PollBlockErase:  {MaxAttempts: 1000, Interval: 5 * time.Millisecond},
	PollChipErase:   {MaxAttempts: 4000, Interval: 100 * time.Millisecond},
}

func (f *Flash) readStatus() (StatusRegister, error) {
	code, err := f.profile.opcode(OpReadStatus, 0)
	if err != nil {
		return StatusRegister{}, err
	}

	var result [1]byte
	if err := f.command([]byte{code}, nil, result[:]); err != nil {
		return StatusRegister{}, err
	}
	return f.profile.status(result[0]), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// waitReady polls the status register until the busy bit clears. It gives
// up after exactly p.MaxAttempts polls. A cancelled context does not stop
// the chip, so it is reported as ErrAbandoned.
func (f *Flash) waitReady(ctx context.Context, p PollPolicy) (StatusRegister, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return StatusRegister{}, fmt.Errorf("%w: %w", ErrAbandoned, err)
		}

		status, err := f.readStatus()
		if err != nil {
			return status, err
		}

		if !status.Busy() {
			f.log("spiflash: ready after %d polls, status %s", attempt, status)
			return status, nil
		}

		if attempt >= maxAttempts {
			return status, fmt.Errorf("%w: still busy after %d polls", ErrTimeout, attempt)
		}

		if err := sleepContext(ctx, p.Interval); err != nil {
			return status, fmt.Errorf("%w: %w", ErrAbandoned, err)
		}
	}
}
