package candidate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func onlineSet(n int) []Address {
	out := make([]Address, n)
	for i := range out {
		out[i] = Address{UID: string(rune('a' + i)), Master: true}
	}
	return out
}

func TestSelectReturnsAllWhenBelowCount(t *testing.T) {
	s := New()
	out := s.Select(onlineSet(3), 42, 5)
	require.Len(t, out, 3)
}

func TestSelectIsDeterministicForSameSeed(t *testing.T) {
	s := New()
	online := onlineSet(20)
	a := s.Select(online, 7, 5)
	b := s.Select(online, 7, 5)
	require.Equal(t, a, b)
}

func TestSelectSkipsNonMasterEntries(t *testing.T) {
	s := New()
	online := append(onlineSet(3), Address{UID: "nonmaster", Master: false})
	out := s.Select(online, 1, 10)
	require.Len(t, out, 3)
	for _, a := range out {
		require.True(t, a.Master)
	}
}

func TestSelectDifferentSeedsCanDiffer(t *testing.T) {
	s := New()
	online := onlineSet(50)
	a := s.Select(online, 1, 5)
	b := s.Select(online, 2, 5)
	require.NotEqual(t, a, b)
}
