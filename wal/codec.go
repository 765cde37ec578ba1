package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/s2"

	"github.com/IvanBrykalov/logcache/op"
)

// Record framing, little-endian:
//
//	u32 length of the compressed block
//	u32 CRC-32 (IEEE) of the compressed block
//	s2-compressed op encoding (see op.MarshalBinary)
//
// The checksum covers the compressed bytes so corruption is caught before
// decompression runs on garbage.
const recordHeaderBytes = 8

// maxRecordBytes caps a single record's compressed size. Anything larger
// is treated as corruption: it exceeds what AppendAsync can produce.
const maxRecordBytes = 256 << 20

func encodeRecord(o *op.Op) ([]byte, error) {
	plain, err := o.MarshalBinary()
	if err != nil {
		return nil, err
	}
	comp := s2.Encode(nil, plain)
	rec := make([]byte, recordHeaderBytes+len(comp))
	binary.LittleEndian.PutUint32(rec[0:4], uint32(len(comp)))
	binary.LittleEndian.PutUint32(rec[4:8], crc32.ChecksumIEEE(comp))
	copy(rec[recordHeaderBytes:], comp)
	return rec, nil
}

// decodeRecord reads one record from r. A clean end of input yields
// io.EOF; a partial or mangled record yields ErrCorrupt.
func decodeRecord(r io.Reader) (*op.Op, error) {
	var hdr [recordHeaderBytes]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	n := binary.LittleEndian.Uint32(hdr[0:4])
	sum := binary.LittleEndian.Uint32(hdr[4:8])
	if n == 0 || n > maxRecordBytes {
		return nil, fmt.Errorf("%w: implausible record length %d", ErrCorrupt, n)
	}
	comp := make([]byte, n)
	if _, err := io.ReadFull(r, comp); err != nil {
		return nil, fmt.Errorf("%w: truncated body", ErrCorrupt)
	}
	if crc32.ChecksumIEEE(comp) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	plain, err := s2.Decode(nil, comp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var o op.Op
	if err := o.UnmarshalBinary(plain); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &o, nil
}
