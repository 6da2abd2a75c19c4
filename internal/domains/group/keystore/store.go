// Package keystore implements KeyVersionStore (spec §4.2): an append-only,
// per-group versioned key record store. Insert is CAS on (gid,version),
// idempotent only when the conflicting record is byte-equal — the exact
// rule the teacher's internal/storage/message_store.go applies to message
// IDs (ErrMessageIDConflict), generalized to a two-part key.
package keystore

import (
	"sort"
	"sync"
	"time"

	"glkdc.dev/glkdcd/internal/domains/group/model"
)

type versionKey struct {
	gid     uint64
	version uint64
}

// SnapshotPersist mirrors membership.SnapshotPersist; wired to the same
// securestore-backed encrypted file, under a distinct path.
type SnapshotPersist func([]model.KeyRecord) error

type Store struct {
	mu      sync.RWMutex
	records map[versionKey]model.KeyRecord

	Persist SnapshotPersist
	Now     func() time.Time
}

func New() *Store {
	return &Store{records: make(map[versionKey]model.KeyRecord)}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Store) persistLocked() error {
	if s.Persist == nil {
		return nil
	}
	out := make([]model.KeyRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GID != out[j].GID {
			return out[i].GID < out[j].GID
		}
		return out[i].Version < out[j].Version
	})
	if err := s.Persist(out); err != nil {
		return ErrInternal
	}
	return nil
}

func (s *Store) Restore(records []model.KeyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[versionKey]model.KeyRecord, len(records))
	for _, r := range records {
		s.records[versionKey{r.GID, r.Version}] = r
	}
}

// Insert is the CAS insert from spec §4.2 and the idempotence rule from
// spec §8: byte-equal re-insert returns nil (OK); any other conflict
// returns ErrCASFail.
func (s *Store) Insert(rec model.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := versionKey{rec.GID, rec.Version}
	if existing, ok := s.records[key]; ok {
		if existing.Equal(rec) {
			return nil
		}
		return ErrCASFail
	}
	if rec.CreateTime.IsZero() {
		rec.CreateTime = s.now()
	}
	s.records[key] = rec.Clone()
	return s.persistLocked()
}

func (s *Store) Get(gid uint64, versions []uint64) ([]model.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.KeyRecord, 0, len(versions))
	for _, v := range versions {
		if rec, ok := s.records[versionKey{gid, v}]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// GetLatest may return the zero value with ok=false: spec §4.2's "new
// group, brief window after creation" case.
func (s *Store) GetLatest(gid uint64) (model.KeyRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest model.KeyRecord
	found := false
	for k, r := range s.records {
		if k.gid != gid {
			continue
		}
		if !found || r.Version > latest.Version {
			latest = r
			found = true
		}
	}
	if !found {
		return model.KeyRecord{}, false
	}
	return latest.Clone(), true
}

type ModeAndVersion struct {
	Mode    model.KeyMode
	Version uint64
	Found   bool
}

func (s *Store) GetLatestModeAndVersion(gid uint64) (ModeAndVersion, error) {
	rec, ok := s.GetLatest(gid)
	if !ok {
		return ModeAndVersion{}, nil
	}
	return ModeAndVersion{Mode: rec.Mode, Version: rec.Version, Found: true}, nil
}

func (s *Store) GetLatestMode(gid uint64) (model.KeyMode, bool) {
	rec, ok := s.GetLatest(gid)
	if !ok {
		return model.KeyModeUnknown, false
	}
	return rec.Mode, true
}

func (s *Store) Clear(gid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.records {
		if k.gid == gid {
			delete(s.records, k)
		}
	}
	return s.persistLocked()
}

// GC drops every record for gid older than the keep-window, i.e. all but
// the `keep` most recent versions. Spec §3: "optionally garbage-collected
// when older than the keep-window" — wired as an operator-triggered
// maintenance call, not run automatically.
func (s *Store) GC(gid uint64, keep int) (removed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if keep < 0 {
		keep = 0
	}
	var versions []uint64
	for k := range s.records {
		if k.gid == gid {
			versions = append(versions, k.version)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if len(versions) <= keep {
		return 0, nil
	}
	for _, v := range versions[keep:] {
		delete(s.records, versionKey{gid, v})
		removed++
	}
	if persistErr := s.persistLocked(); persistErr != nil {
		return removed, persistErr
	}
	return removed, nil
}
