package keystore

import "errors"

// Outcomes per spec §4.2: "insert(KeyRecord) — OK, CAS_FAIL (a record
// already exists at (gid,version)), or INTERNAL". ErrCASFail is returned
// when a different record already exists at (gid,version); a re-insert of a
// byte-equal record is not a conflict, and Insert returns nil for it.
var (
	ErrCASFail  = errors.New("keystore: version already written")
	ErrNotFound = errors.New("keystore: no record at requested version")
	ErrInternal = errors.New("keystore: internal store failure")
)
