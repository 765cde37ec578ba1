package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOp_ByteSizeMatchesEncoding(t *testing.T) {
	t.Parallel()

	o := New(42, 7, []byte("payload"))
	b, err := o.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, o.ByteSize(), int64(len(b)))

	var back Op
	require.NoError(t, back.UnmarshalBinary(b))
	require.Equal(t, *o, back)
}

func TestOp_UnmarshalShortBuffer(t *testing.T) {
	t.Parallel()

	var o Op
	require.ErrorIs(t, o.UnmarshalBinary(nil), ErrShortBuffer)

	b, err := New(1, 1, []byte("xyz")).MarshalBinary()
	require.NoError(t, err)
	require.ErrorIs(t, o.UnmarshalBinary(b[:len(b)-1]), ErrShortBuffer)
}

func TestID_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "3.15", ID{Index: 15, Term: 3}.String())
}
