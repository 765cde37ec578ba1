// Package op defines the replicated operation type shared by the cache and
// the write-ahead log. An Op is treated as an opaque payload with a log
// position attached; nothing in this module interprets Data.
package op

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// headerBytes is the fixed per-op overhead accounted by ByteSize and
// written in front of Data by MarshalBinary: index, term, payload length.
const headerBytes = 8 + 8 + 4

// ErrShortBuffer is returned by UnmarshalBinary for truncated input.
var ErrShortBuffer = errors.New("op: short buffer")

// ID identifies a log position by index and term.
type ID struct {
	Index uint64
	Term  uint64
}

// String renders the id as "term.index", the conventional consensus form.
func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.Term, id.Index)
}

// Op is a single replicated operation. Once handed to the cache it must be
// treated as immutable: the cache shares it with concurrent readers.
type Op struct {
	Index uint64
	Term  uint64
	Data  []byte
}

// New builds an Op. The data slice is retained, not copied.
func New(index, term uint64, data []byte) *Op {
	return &Op{Index: index, Term: term, Data: data}
}

// ID returns the position of this op.
func (o *Op) ID() ID {
	return ID{Index: o.Index, Term: o.Term}
}

// ByteSize is the memory-accounting size of the op: the fixed header plus
// the payload. It matches the encoded size produced by MarshalBinary.
func (o *Op) ByteSize() int64 {
	return headerBytes + int64(len(o.Data))
}

// MarshalBinary encodes the op as a self-delimiting little-endian record.
func (o *Op) MarshalBinary() ([]byte, error) {
	buf := make([]byte, o.ByteSize())
	binary.LittleEndian.PutUint64(buf[0:8], o.Index)
	binary.LittleEndian.PutUint64(buf[8:16], o.Term)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(o.Data)))
	copy(buf[headerBytes:], o.Data)
	return buf, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
// The payload is copied out of b.
func (o *Op) UnmarshalBinary(b []byte) error {
	if len(b) < headerBytes {
		return ErrShortBuffer
	}
	n := binary.LittleEndian.Uint32(b[16:20])
	if len(b) < headerBytes+int(n) {
		return ErrShortBuffer
	}
	o.Index = binary.LittleEndian.Uint64(b[0:8])
	o.Term = binary.LittleEndian.Uint64(b[8:16])
	o.Data = append([]byte(nil), b[headerBytes:headerBytes+int(n)]...)
	return nil
}
