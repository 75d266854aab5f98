package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/BertoldVdb/spinor/image"
	"github.com/BertoldVdb/spinor/periphspi"
	"github.com/BertoldVdb/spinor/spidev"
	"github.com/BertoldVdb/spinor/spiflash"
	"github.com/BertoldVdb/spinor/spiflash/simchip"
	"github.com/BertoldVdb/spinor/tasks"
)

type options struct {
	transport string
	dev       string
	cs        string
	speed     int64
	family    string
	capacity  string
	fastRead  bool
	verbose   bool
}

var log = logrus.New()

// parseSize accepts plain numbers, 0x prefixed hex and K/M suffixes.
func parseSize(s string) (int64, error) {
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return v * mult, nil
}

func openTransport(o *options, capacity int64) (spiflash.Transport, int, func(), error) {
	switch o.transport {
	case "sim":
		chip := simchip.New(simchip.Config{
			Capacity: capacity,
			JEDECID:  [3]byte{0xEF, 0x40, 0x18},
		})
		return chip, 0, func() {}, nil

	case "spidev":
		d, err := spidev.Open(o.dev)
		if err != nil {
			return nil, 0, nil, err
		}
		if err := d.SetMode(0); err != nil {
			d.Close()
			return nil, 0, nil, err
		}
		if err := d.SetBitsPerWord(8); err != nil {
			d.Close()
			return nil, 0, nil, err
		}
		if err := d.SetSpeedHz(uint32(o.speed)); err != nil {
			d.Close()
			return nil, 0, nil, err
		}
		if hz, err := d.SpeedHz(); err == nil {
			mode, _ := d.Mode()
			log.Debugf("spidev %s: mode %d, %d Hz", o.dev, mode, hz)
		}
		return d, d.MaxTransfer, func() { d.Close() }, nil

	case "periph":
		if _, err := host.Init(); err != nil {
			return nil, 0, nil, fmt.Errorf("host initialization failed: %w", err)
		}

		p, err := spireg.Open(o.dev)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("failed to open SPI port: %w", err)
		}

		conn, err := p.Connect(physic.Frequency(o.speed)*physic.Hertz, spi.Mode0, 8)
		if err != nil {
			p.Close()
			return nil, 0, nil, fmt.Errorf("failed to create SPI connection: %w", err)
		}

		cs := gpioreg.ByName(o.cs)
		if cs == nil {
			p.Close()
			return nil, 0, nil, fmt.Errorf("chip select pin %q not found", o.cs)
		}

		t, err := periphspi.New(conn, cs)
		if err != nil {
			p.Close()
			return nil, 0, nil, err
		}
		log.Debugf("using %s", t)
		return t, t.MaxTransfer(), func() { p.Close() }, nil
	}

	return nil, 0, nil, fmt.Errorf("unknown transport %q", o.transport)
}

func openFlash(o *options) (*spiflash.Flash, func(), error) {
	family, err := spiflash.ParseFamily(o.family)
	if err != nil {
		return nil, nil, err
	}

	capacity, err := parseSize(o.capacity)
	if err != nil {
		return nil, nil, err
	}

	t, maxTransfer, closer, err := openTransport(o, capacity)
	if err != nil {
		return nil, nil, err
	}

	opts := []spiflash.Option{
		spiflash.WithLogFunc(log.Debugf),
		spiflash.WithMaxTransfer(maxTransfer),
	}
	if o.fastRead {
		opts = append(opts, spiflash.WithFastRead())
	}

	f, err := spiflash.New(t, family, capacity, opts...)
	if err != nil {
		closer()
		return nil, nil, err
	}

	log.Debugf("%s-series flash, %d bytes, %d byte addresses", f.Family(), f.Capacity(), f.AddressWidth())
	return f, closer, nil
}

func newTasks(f *spiflash.Flash) *tasks.Tasks {
	t := tasks.New(f)
	t.LogFunc = log.Debugf

	last := map[string]int{}
	t.Progress = func(task string, done float64) {
		pct := int(done * 100)
		if pct/10 != last[task]/10 || pct == 100 {
			log.Infof("%s: %d%%", task, pct)
		}
		last[task] = pct
	}
	return t
}

// withFlash wraps a command body with flash setup and teardown.
func withFlash(o *options, fn func(ctx context.Context, f *spiflash.Flash, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		f, closer, err := openFlash(o)
		if err != nil {
			return err
		}
		defer closer()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		err = fn(ctx, f, args)
		if errors.Is(err, spiflash.ErrAbandoned) {
			log.Warn("interrupted while the chip was busy, contents of the region are undefined")
		}
		return err
	}
}

func sizeArg(s string, name string) (int64, error) {
	v, err := parseSize(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func newRootCommand() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:           "spinor",
		Short:         "Read, write and erase SPI NOR flash chips",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if o.verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.transport, "transport", "spidev", "Bus transport: spidev, periph or sim")
	pf.StringVar(&o.dev, "dev", "/dev/spidev0.0", "SPI device (spidev path or periph port name)")
	pf.StringVar(&o.cs, "cs", "GPIO8", "Chip select GPIO for the periph transport")
	pf.Int64Var(&o.speed, "speed", 1000000, "SPI clock in Hz")
	pf.StringVar(&o.family, "family", "q", "Chip family: q or x")
	pf.StringVar(&o.capacity, "capacity", "16M", "Chip capacity in bytes (K and M suffixes allowed)")
	pf.BoolVar(&o.fastRead, "fast-read", false, "Use the fast read command")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "Log every bus operation")

	root.AddCommand(&cobra.Command{
		Use:   "id",
		Short: "Print JEDEC and unique ID",
		Args:  cobra.NoArgs,
		RunE: withFlash(o, func(ctx context.Context, f *spiflash.Flash, args []string) error {
			id, err := f.JEDECID()
			if err != nil {
				return err
			}
			uid, err := f.UniqueID()
			if err != nil {
				return err
			}
			fmt.Printf("jedec %s unique %s\n", hex.EncodeToString(id[:]), hex.EncodeToString(uid[:]))
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print status register 1",
		Args:  cobra.NoArgs,
		RunE: withFlash(o, func(ctx context.Context, f *spiflash.Flash, args []string) error {
			status, err := f.ReadStatus()
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		}),
	})

	var out string
	readCmd := &cobra.Command{
		Use:   "read <offset> <length>",
		Short: "Dump a region to a file or as hex",
		Args:  cobra.ExactArgs(2),
		RunE: withFlash(o, func(ctx context.Context, f *spiflash.Flash, args []string) error {
			offset, err := sizeArg(args[0], "offset")
			if err != nil {
				return err
			}
			length, err := sizeArg(args[1], "length")
			if err != nil {
				return err
			}

			data, err := newTasks(f).Read(offset, int(length))
			if err != nil {
				return err
			}

			if out == "" {
				fmt.Print(hex.Dump(data))
				return nil
			}
			return os.WriteFile(out, data, 0644)
		}),
	}
	readCmd.Flags().StringVarP(&out, "out", "o", "", "Output file")
	root.AddCommand(readCmd)

	var verify bool
	writeCmd := &cobra.Command{
		Use:   "write <offset> <file>",
		Short: "Erase the covered sectors and program a file",
		Args:  cobra.ExactArgs(2),
		RunE: withFlash(o, func(ctx context.Context, f *spiflash.Flash, args []string) error {
			offset, err := sizeArg(args[0], "offset")
			if err != nil {
				return err
			}

			img, err := image.Load(args[1], offset)
			if err != nil {
				return err
			}

			if err := newTasks(f).WriteImage(ctx, img, verify); err != nil {
				return err
			}
			log.Infof("wrote %d bytes at 0x%x, crc %08x", len(img.Data), img.Offset, img.Checksum())
			return nil
		}),
	}
	writeCmd.Flags().BoolVar(&verify, "verify", true, "Read back and compare checksums")
	root.AddCommand(writeCmd)

	var chip bool
	eraseCmd := &cobra.Command{
		Use:   "erase [<offset> <length>]",
		Short: "Erase a sector aligned region or the whole chip",
		Args:  cobra.RangeArgs(0, 2),
		RunE: withFlash(o, func(ctx context.Context, f *spiflash.Flash, args []string) error {
			if chip {
				return f.EraseChip(ctx)
			}
			if len(args) != 2 {
				return errors.New("offset and length are required unless --chip is given")
			}

			offset, err := sizeArg(args[0], "offset")
			if err != nil {
				return err
			}
			length, err := sizeArg(args[1], "length")
			if err != nil {
				return err
			}
			return newTasks(f).EraseRange(ctx, offset, length)
		}),
	}
	eraseCmd.Flags().BoolVar(&chip, "chip", false, "Erase the whole chip")
	root.AddCommand(eraseCmd)

	root.AddCommand(&cobra.Command{
		Use:   "crc [<offset> <length>]",
		Short: "CRC-32 of a region, the whole chip by default",
		Args:  cobra.RangeArgs(0, 2),
		RunE: withFlash(o, func(ctx context.Context, f *spiflash.Flash, args []string) error {
			offset, length := int64(0), f.Capacity()
			if len(args) == 2 {
				var err error
				if offset, err = sizeArg(args[0], "offset"); err != nil {
					return err
				}
				if length, err = sizeArg(args[1], "length"); err != nil {
					return err
				}
			}

			sum, err := newTasks(f).Checksum(offset, length)
			if err != nil {
				return err
			}
			fmt.Printf("%08x\n", sum)
			return nil
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Software reset the chip",
		Args:  cobra.NoArgs,
		RunE: withFlash(o, func(ctx context.Context, f *spiflash.Flash, args []string) error {
			return f.Reset()
		}),
	})

	return root
}

func main() {
	log.Formatter = new(logrus.TextFormatter)
	log.Level = logrus.InfoLevel

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatalln(err)
	}
}
