package asm

import (
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/keystone/api"
)

// Buffer accumulates machine code. Writes beyond the limit are dropped and recorded as an api.ErrNoMem error, which
// the driver checks after each statement, so encoders never need to check write errors.
//
// The zero value is an empty buffer without a limit.
type Buffer struct {
	code  []byte
	limit int
	order binary.ByteOrder
	err   error
}

// NewBuffer returns a buffer which fails once more than limit bytes are written. A limit <= 0 means no limit.
func NewBuffer(limit int, order binary.ByteOrder) *Buffer {
	return &Buffer{limit: limit, order: order}
}

// Len returns the number of bytes written.
func (buf *Buffer) Len() int {
	return len(buf.code)
}

// Bytes returns the bytes written so far. The slice is only valid until the next write.
func (buf *Buffer) Bytes() []byte {
	return buf.code
}

// Err returns the first write error.
func (buf *Buffer) Err() error {
	return buf.err
}

// Reset clears the buffer, keeping its capacity.
func (buf *Buffer) Reset() {
	buf.code = buf.code[:0]
	buf.err = nil
}

// Truncate discards all but the first n bytes.
func (buf *Buffer) Truncate(n int) {
	buf.code = buf.code[:n]
}

// Grow ensures there is room for n more bytes without reallocation.
func (buf *Buffer) Grow(n int) {
	if cap(buf.code)-len(buf.code) < n {
		b := make([]byte, len(buf.code), 2*cap(buf.code)+n)
		copy(b, buf.code)
		buf.code = b
	}
}

// Append extends the buffer by n bytes and returns them for the caller to fill. When the limit is exceeded, a
// scratch slice is returned instead.
func (buf *Buffer) Append(n int) []byte {
	if buf.err != nil {
		return make([]byte, n)
	}
	if buf.limit > 0 && len(buf.code)+n > buf.limit {
		buf.err = &api.AssembleError{Code: api.ErrNoMem,
			Err: fmt.Errorf("output exceeds %d bytes", buf.limit)}
		return make([]byte, n)
	}
	i := len(buf.code)
	buf.Grow(n)
	buf.code = buf.code[:i+n]
	return buf.code[i : i+n : i+n]
}

// WriteByte implements io.ByteWriter. It never fails immediately, see Err.
func (buf *Buffer) WriteByte(b byte) error {
	buf.Append(1)[0] = b
	return nil
}

// Write implements io.Writer. It never fails immediately, see Err.
func (buf *Buffer) Write(b []byte) (int, error) {
	copy(buf.Append(len(b)), b)
	return len(b), nil
}

// WriteBytes writes the given bytes.
func (buf *Buffer) WriteBytes(b ...byte) {
	copy(buf.Append(len(b)), b)
}

func (buf *Buffer) byteOrder() binary.ByteOrder {
	if buf.order == nil {
		return binary.LittleEndian
	}
	return buf.order
}

// WriteUint16 writes v in the buffer's byte order.
func (buf *Buffer) WriteUint16(v uint16) {
	buf.byteOrder().PutUint16(buf.Append(2), v)
}

// WriteUint32 writes v in the buffer's byte order.
func (buf *Buffer) WriteUint32(v uint32) {
	buf.byteOrder().PutUint32(buf.Append(4), v)
}

// WriteUint64 writes v in the buffer's byte order.
func (buf *Buffer) WriteUint64(v uint64) {
	buf.byteOrder().PutUint64(buf.Append(8), v)
}

// WriteUint32LE writes v in little-endian order regardless of the buffer's byte order.
func (buf *Buffer) WriteUint32LE(v uint32) {
	binary.LittleEndian.PutUint32(buf.Append(4), v)
}

// WriteValue writes the low width bytes of v in the buffer's byte order.
func (buf *Buffer) WriteValue(v uint64, width int) {
	switch width {
	case 1:
		buf.Append(1)[0] = byte(v)
	case 2:
		buf.WriteUint16(uint16(v))
	case 4:
		buf.WriteUint32(uint32(v))
	case 8:
		buf.WriteUint64(v)
	default:
		panic(fmt.Sprintf("BUG: invalid width %d", width))
	}
}
