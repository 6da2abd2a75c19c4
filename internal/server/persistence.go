package server

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/securestore"
)

// snapshotFile is the single encrypted-at-rest document backing both
// MembershipStore and KeyVersionStore, per spec §9's "Persisted layout"
// note that the two stores share one durable file rather than each owning
// its own. A single mutex serializes writes from either store's
// SnapshotPersist hook, since securestore.WriteEncryptedJSON rewrites the
// whole file on every call.
type snapshotFile struct {
	Membership membership.Snapshot
	Keys       []model.KeyRecord
}

// snapshotWriter fan-ins both stores' SnapshotPersist callbacks into one
// encrypted file, re-reading its own in-memory copy of the other store's
// half on every write so neither store's persist call clobbers the other's
// data.
type snapshotWriter struct {
	mu     sync.Mutex
	path   string
	secret string
	latest snapshotFile
}

func newSnapshotWriter(path, secret string) *snapshotWriter {
	return &snapshotWriter{path: path, secret: secret}
}

func (w *snapshotWriter) persistMembership(snap membership.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latest.Membership = snap
	return securestore.WriteEncryptedJSON(w.path, w.secret, w.latest)
}

func (w *snapshotWriter) persistKeys(records []model.KeyRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latest.Keys = records
	return securestore.WriteEncryptedJSON(w.path, w.secret, w.latest)
}

// LoadAndWire reads path's encrypted snapshot (if present), restores it
// into members and keys, and wires both stores' Persist hooks to write
// future mutations back to the same file. A missing file is not an error:
// it means this is the first run.
func LoadAndWire(path, secret string, members *membership.Store, keys *keystore.Store) error {
	w := newSnapshotWriter(path, secret)

	data, err := securestore.ReadDecryptedFile(path, secret)
	switch {
	case err == nil:
		var snap snapshotFile
		if jsonErr := json.Unmarshal(data, &snap); jsonErr != nil {
			return fmt.Errorf("server: corrupt snapshot at %s: %w", path, jsonErr)
		}
		w.latest = snap
		members.Restore(snap.Membership)
		keys.Restore(snap.Keys)
	case os.IsNotExist(err):
		// first run: nothing to restore
	default:
		return fmt.Errorf("server: failed to read snapshot at %s: %w", path, err)
	}

	members.Persist = w.persistMembership
	keys.Persist = w.persistKeys
	return nil
}
