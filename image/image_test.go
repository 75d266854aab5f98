package image

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCRC(t *testing.T) {
	/* CRC-32 check value */
	result := Checksum([]byte("123456789"))
	correct := uint32(0xcbf43926)

	if result != correct {
		t.Errorf("CRC Error: %08x!=%08x", result, correct)
	}
}

func TestHashMatchesChecksum(t *testing.T) {
	buf := getRandomBuf(10000)

	h := NewHash()
	for i := 0; i < len(buf); i += 999 {
		end := i + 999
		if end > len(buf) {
			end = len(buf)
		}
		h.Write(buf[i:end])
	}

	if h.Sum32() != Checksum(buf) {
		t.Error("streamed CRC differs")
	}
}

func getRandomBuf(length int) []byte {
	out := make([]byte, length)
	rand.Read(out)
	return out
}

func TestPadded(t *testing.T) {
	img := &Image{Offset: 0x1100, Data: getRandomBuf(0x200)}

	start, end := img.Span(0x1000)
	if start != 0x1000 || end != 0x2000 {
		t.Errorf("span %x-%x", start, end)
	}

	p := img.Padded(0x1000)
	if p.Offset != 0x1000 || len(p.Data) != 0x1000 {
		t.Fatalf("padded image at %x, %d bytes", p.Offset, len(p.Data))
	}
	if !bytes.Equal(p.Data[0x100:0x300], img.Data) {
		t.Error("data moved while padding")
	}
	if p.Data[0] != 0xFF || p.Data[0xFFF] != 0xFF {
		t.Error("padding is not erased")
	}
}

func TestValidate(t *testing.T) {
	img := &Image{Offset: 0x1000, Data: getRandomBuf(0x1000)}

	if err := img.Validate(0x2000); err != nil {
		t.Error("Valid image rejected:", err)
	}
	if err := img.Validate(0x1fff); !errors.Is(err, ErrorOutOfRange) {
		t.Error("Image past the end:", err)
	}
	if err := (&Image{}).Validate(0x2000); err != ErrorInvalidLength {
		t.Error("Empty image:", err)
	}
}

func TestVerify(t *testing.T) {
	img := &Image{Data: getRandomBuf(512)}

	c := make([]byte, len(img.Data))
	copy(c, img.Data)
	if err := img.Verify(c); err != nil {
		t.Error("Identical readback rejected:", err)
	}

	c[100]++
	if err := img.Verify(c); !errors.Is(err, ErrorCRCMismatch) {
		t.Error("Corrupt readback:", err)
	}

	if err := img.Verify(c[:10]); err != ErrorInvalidLength {
		t.Error("Short readback:", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.bin")
	data := getRandomBuf(300)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	img, err := Load(path, 0x100)
	if err != nil {
		t.Fatal(err)
	}
	if img.Offset != 0x100 || !bytes.Equal(img.Data, data) {
		t.Error("loaded image differs")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing"), 0); err == nil {
		t.Error("missing file accepted")
	}
}
