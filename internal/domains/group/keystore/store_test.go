package keystore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"glkdc.dev/glkdcd/internal/domains/group/model"
)

func TestInsertIsIdempotentOnlyWhenByteEqual(t *testing.T) {
	s := New()
	rec := model.KeyRecord{GID: 1, Version: 5, Mode: model.KeyModeAllTheSame, Payload: []byte(`{"a":1}`)}
	require.NoError(t, s.Insert(rec))

	// Same bytes again: OK (idempotent retry).
	require.NoError(t, s.Insert(rec))

	// Different payload at the same (gid,version): CAS_FAIL.
	conflicting := rec
	conflicting.Payload = []byte(`{"a":2}`)
	err := s.Insert(conflicting)
	require.ErrorIs(t, err, ErrCASFail)
}

func TestVersionsStrictlyIncreasing(t *testing.T) {
	s := New()
	require.NoError(t, s.Insert(model.KeyRecord{GID: 1, Version: 0, Mode: model.KeyModeOneForEach}))
	require.NoError(t, s.Insert(model.KeyRecord{GID: 1, Version: 1, Mode: model.KeyModeOneForEach}))

	latest, ok := s.GetLatest(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), latest.Version)
}

func TestGetLatestMissingGroup(t *testing.T) {
	s := New()
	_, ok := s.GetLatest(42)
	require.False(t, ok)
}

func TestGCKeepsMostRecentVersions(t *testing.T) {
	s := New()
	for v := uint64(0); v < 5; v++ {
		require.NoError(t, s.Insert(model.KeyRecord{GID: 1, Version: v}))
	}
	removed, err := s.GC(1, 2)
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	recs, err := s.Get(1, []uint64{0, 1, 2, 3, 4})
	require.NoError(t, err)
	require.Len(t, recs, 2)
}
