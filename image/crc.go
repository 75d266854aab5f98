package image

import (
	"github.com/snksoft/crc"
)

var crcTable *crc.Table

func init() {
	crcTable = crc.NewTable(crc.CRC32)
}

// Checksum is the CRC-32 (IEEE) of data.
func Checksum(data []byte) uint32 {
	return uint32(crcTable.CalculateCRC(data))
}

// Hash accumulates a CRC-32 over data handed over in pieces, so a flash
// region can be checked without holding it in memory.
type Hash struct {
	h *crc.Hash
}

func NewHash() *Hash {
	return &Hash{h: crc.NewHashWithTable(crcTable)}
}

func (h *Hash) Write(p []byte) (int, error) {
	h.h.Update(p)
	return len(p), nil
}

func (h *Hash) Sum32() uint32 {
	return h.h.CRC32()
}
