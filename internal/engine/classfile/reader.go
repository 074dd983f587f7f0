package classfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// BinaryReader reads big-endian class-file primitives and tracks the offset.
type BinaryReader struct {
	reader    *bufio.Reader
	bytesRead int64
}

func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{reader: bufio.NewReader(r)}
}

func newSliceReader(b []byte) *BinaryReader {
	return NewBinaryReader(bytes.NewReader(b))
}

func (br *BinaryReader) BytesRead() int64 {
	return br.bytesRead
}

// ReadNBytes reads exactly n bytes.
func (br *BinaryReader) ReadNBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid length: %d", n)
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(br.reader, buf)
	br.bytesRead += int64(read)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (br *BinaryReader) ReadU1() (uint8, error) {
	b, err := br.reader.ReadByte()
	if err != nil {
		return 0, err
	}
	br.bytesRead++
	return b, nil
}

func (br *BinaryReader) ReadU2() (uint16, error) {
	buf, err := br.ReadNBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (br *BinaryReader) ReadU4() (uint32, error) {
	buf, err := br.ReadNBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (br *BinaryReader) Skip(n int) error {
	if _, err := io.CopyN(io.Discard, br.reader, int64(n)); err != nil {
		return fmt.Errorf("failed to skip %d bytes: %w", n, err)
	}
	br.bytesRead += int64(n)
	return nil
}

// ReadU2List reads a u2 count followed by that many u2 values.
func (br *BinaryReader) ReadU2List() ([]uint16, error) {
	count, err := br.ReadU2()
	if err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	for i := range out {
		if out[i], err = br.ReadU2(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
