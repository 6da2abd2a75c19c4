package keyepoch

import (
	"encoding/json"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/model"
)

// oneForEachPayload and allTheSamePayload are the two shapes a KeyRecord's
// opaque Payload JSON may hold, per spec §9 DESIGN NOTES: "the server never
// parses it except when projecting ONE_FOR_EACH entries for the caller, at
// which point it deserializes into the minimal {keys_v0: [{uid,device_id,
// key}], keys_v1:{key}, encrypt_version} shape."
type oneForEachEntry struct {
	UID      string `json:"uid"`
	DeviceID string `json:"device_id"`
	Key      string `json:"key"`
}

type oneForEachPayload struct {
	KeysV0         []oneForEachEntry `json:"keys_v0"`
	EncryptVersion int               `json:"encrypt_version"`
}

type allTheSamePayload struct {
	KeysV1         struct {
		Key string `json:"key"`
	} `json:"keys_v1"`
	EncryptVersion int `json:"encrypt_version"`
}

// FetchedKey is the caller-projected view of one KeyRecord: for
// ONE_FOR_EACH, the caller's own entry; for ALL_THE_SAME, the single shared
// ciphertext.
type FetchedKey struct {
	GID            uint64
	Version        uint64
	Mode           model.KeyMode
	EncryptVersion int
	Key            string
	Found          bool
}

// projectForCaller deserializes rec's opaque payload and extracts the slice
// relevant to (uid, deviceID), per spec §4.7's fetch paragraph. A record
// whose payload doesn't parse, or that has no entry for this caller,
// degrades to Found=false rather than propagating a parse error — the
// payload is trusted to have been validated at upload time.
func projectForCaller(rec model.KeyRecord, uid, deviceID string) FetchedKey {
	out := FetchedKey{GID: rec.GID, Version: rec.Version, Mode: rec.Mode}
	switch rec.Mode {
	case model.KeyModeOneForEach:
		var payload oneForEachPayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return out
		}
		out.EncryptVersion = payload.EncryptVersion
		for _, e := range payload.KeysV0 {
			if e.UID == uid && (deviceID == "" || e.DeviceID == deviceID) {
				out.Key = e.Key
				out.Found = true
				return out
			}
		}
		return out
	case model.KeyModeAllTheSame:
		var payload allTheSamePayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return out
		}
		out.EncryptVersion = payload.EncryptVersion
		out.Key = payload.KeysV1.Key
		out.Found = out.Key != ""
		return out
	default:
		return out
	}
}

// FetchByVersionsInput carries fetchByVersions(gid, {versions})'s fields.
type FetchByVersionsInput struct {
	GID      uint64
	Caller   string
	DeviceID string
	Versions []uint64
}

// FetchByVersions implements spec §4.7's fetch paragraph, first sentence.
// Non-members get FORBIDDEN; a version with no matching record is simply
// absent from the result, not an error.
func (c *Coordinator) FetchByVersions(in FetchByVersionsInput) ([]FetchedKey, error) {
	if _, err := c.Members.GetMember(in.GID, in.Caller); err != nil {
		return nil, apierr.Authorization("FORBIDDEN", "caller is not a member of this group")
	}
	recs, err := c.Keys.Get(in.GID, in.Versions)
	if err != nil {
		return nil, apierr.Internal("INTERNAL", err.Error())
	}
	out := make([]FetchedKey, 0, len(recs))
	for _, rec := range recs {
		out = append(out, projectForCaller(rec, in.Caller, in.DeviceID))
	}
	return out, nil
}

// FetchLatestInput carries fetchLatest({gids})'s fields.
type FetchLatestInput struct {
	Caller   string
	DeviceID string
	GIDs     []uint64
}

// FetchLatest implements spec §4.7's fetch paragraph, second sentence.
// Groups the caller isn't a member of are silently skipped (batch
// semantics: spec says "for each gid for which the caller is a member");
// groups with no records yet return an empty, Found=false entry rather than
// an error, per spec §4.2's "new group, brief window after creation" case.
func (c *Coordinator) FetchLatest(in FetchLatestInput) []FetchedKey {
	out := make([]FetchedKey, 0, len(in.GIDs))
	for _, gid := range in.GIDs {
		if _, err := c.Members.GetMember(gid, in.Caller); err != nil {
			continue
		}
		rec, found := c.Keys.GetLatest(gid)
		if !found {
			out = append(out, FetchedKey{GID: gid})
			continue
		}
		out = append(out, projectForCaller(rec, in.Caller, in.DeviceID))
	}
	return out
}
