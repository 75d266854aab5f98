package spiflash

type chunk struct {
	offset int64
	length int
}

// pageCrossLength is the number of bytes left in the page holding offset.
func pageCrossLength(offset int64, pageSize int64) int {
	mask := pageSize - 1
	return int(pageSize - offset&mask)
}

// splitPages cuts [offset, offset+length) into pieces that never cross a
// page boundary.
func splitPages(offset int64, length int, pageSize int64) []chunk {
	var chunks []chunk

	for length > 0 {
		n := pageCrossLength(offset, pageSize)
		if n > length {
			n = length
		}

		chunks = append(chunks, chunk{offset: offset, length: n})
		offset += int64(n)
		length -= n
	}

	return chunks
}
