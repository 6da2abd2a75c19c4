package keycache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetMissNeverErrors(t *testing.T) {
	c := New(50 * time.Millisecond)
	defer c.Close()
	_, found := c.Get(1, 0)
	require.False(t, found)
}

func TestSetThenGet(t *testing.T) {
	c := New(time.Second)
	defer c.Close()
	c.Set(1, 0, []KeyBundle{[]byte("a"), []byte("bb")})
	bundles, found := c.Get(1, 0)
	require.True(t, found)
	require.Equal(t, []KeyBundle{[]byte("a"), []byte("bb")}, bundles)
}

func TestFramedRoundTrip(t *testing.T) {
	in := []KeyBundle{[]byte("hello"), []byte(""), []byte("world!")}
	framed := EncodeFramed(in)
	out, err := DecodeFramed(framed)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeFramedTruncated(t *testing.T) {
	_, err := DecodeFramed([]byte{1, 2, 3})
	require.Error(t, err)
}
