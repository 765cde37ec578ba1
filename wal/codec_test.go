package wal

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/logcache/op"
)

func TestRecord_Roundtrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	want := []*op.Op{
		op.New(1, 1, []byte("first")),
		op.New(2, 1, nil),
		op.New(3, 2, bytes.Repeat([]byte("abc"), 1<<10)),
	}
	for _, o := range want {
		rec, err := encodeRecord(o)
		require.NoError(t, err)
		buf.Write(rec)
	}

	r := bytes.NewReader(buf.Bytes())
	for _, o := range want {
		got, err := decodeRecord(r)
		require.NoError(t, err)
		require.Equal(t, o, got)
	}
	_, err := decodeRecord(r)
	require.Equal(t, io.EOF, err)
}

func TestRecord_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	rec, err := encodeRecord(op.New(5, 1, []byte("payload")))
	require.NoError(t, err)
	rec[len(rec)-1] ^= 0xff

	_, err = decodeRecord(bytes.NewReader(rec))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestRecord_TruncatedTail(t *testing.T) {
	t.Parallel()

	rec, err := encodeRecord(op.New(5, 1, []byte("payload")))
	require.NoError(t, err)

	_, err = decodeRecord(bytes.NewReader(rec[:len(rec)-3]))
	require.ErrorIs(t, err, ErrCorrupt)

	// Header alone, no body.
	_, err = decodeRecord(bytes.NewReader(rec[:4]))
	require.ErrorIs(t, err, ErrCorrupt)
}
