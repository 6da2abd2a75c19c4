package keyepoch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glkdc.dev/glkdcd/internal/domains/group/candidate"
	"glkdc.dev/glkdcd/internal/domains/group/keycache"
	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/pubsub"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *membership.Store, *keystore.Store) {
	t.Helper()
	members := membership.New()
	keys := keystore.New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Coordinator{
		Members:  members,
		Keys:     keys,
		Cache:    keycache.New(time.Minute),
		Selector: candidate.New(),
		Bus:      pubsub.NewMock(),
		Policy:   DefaultPolicy(),
		Now:      func() time.Time { return clock },
	}
	return c, members, keys
}

func TestPolicyDecideMatchesThresholdTable(t *testing.T) {
	p := Policy{PowerMin: 200, PowerMax: 220, NormalGroupRefreshMax: 240, KeySwitchCandidateCount: 5}

	d := p.Decide(210, model.KeyModeAllTheSame)
	require.True(t, d.Rotate)
	require.Equal(t, model.KeyModeAllTheSame, d.Mode)

	d = p.Decide(210, model.KeyModeOneForEach)
	require.True(t, d.Rotate)
	require.Equal(t, model.KeyModeOneForEach, d.Mode)

	d = p.Decide(250, model.KeyModeAllTheSame)
	require.False(t, d.Rotate)

	d = p.Decide(250, model.KeyModeOneForEach)
	require.True(t, d.Rotate)
	require.Equal(t, model.KeyModeAllTheSame, d.Mode)

	d = p.Decide(100, model.KeyModeUnknown)
	require.True(t, d.Rotate)
	require.Equal(t, model.KeyModeOneForEach, d.Mode)
}

func TestPrepareRejectsStaleVersion(t *testing.T) {
	c, _, keys := newTestCoordinator(t)
	require.NoError(t, keys.Insert(model.KeyRecord{GID: 1, Version: 3, Mode: model.KeyModeAllTheSame}))

	_, err := c.Prepare(context.Background(), PrepareInput{GID: 1, Caller: "u1", NextVersion: 2, Mode: model.KeyModeAllTheSame})
	require.Error(t, err)
}

func TestPrepareOutOfQuorumReturnsEmptyNotError(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	// No online masters registered: Select returns nil, so no caller is ever in quorum.
	res, err := c.Prepare(context.Background(), PrepareInput{GID: 1, Caller: "u1", NextVersion: 1, Mode: model.KeyModeAllTheSame})
	require.NoError(t, err)
	require.False(t, res.InQuorum)
}

func TestUploadCASFailOnConflictingVersion(t *testing.T) {
	c, members, _ := newTestCoordinator(t)
	require.NoError(t, members.CreateGroup(model.Group{GID: 1, Version: model.GroupVersionV3}))
	require.NoError(t, members.InsertMember(model.GroupMember{GID: 1, UID: "u1", Role: model.MemberRoleOwner}))

	require.NoError(t, c.Upload(context.Background(), UploadInput{GID: 1, Caller: "u1", Version: 1, Mode: model.KeyModeAllTheSame, Payload: []byte(`{"keys_v1":{"key":"a"}}`)}))

	err := c.Upload(context.Background(), UploadInput{GID: 1, Caller: "u1", Version: 1, Mode: model.KeyModeAllTheSame, Payload: []byte(`{"keys_v1":{"key":"different"}}`)})
	require.Error(t, err)
}

func TestUploadRejectsNonMember(t *testing.T) {
	c, members, _ := newTestCoordinator(t)
	require.NoError(t, members.CreateGroup(model.Group{GID: 1, Version: model.GroupVersionV3}))

	err := c.Upload(context.Background(), UploadInput{GID: 1, Caller: "stranger", Version: 1, Mode: model.KeyModeAllTheSame})
	require.Error(t, err)
}

func TestFetchLatestProjectsOneForEachEntry(t *testing.T) {
	c, members, keys := newTestCoordinator(t)
	require.NoError(t, members.CreateGroup(model.Group{GID: 1, Version: model.GroupVersionV3}))
	require.NoError(t, members.InsertMember(model.GroupMember{GID: 1, UID: "u1", Role: model.MemberRoleMember}))

	payload, err := json.Marshal(map[string]any{
		"keys_v0": []map[string]string{
			{"uid": "u1", "device_id": "d1", "key": "secret-for-u1"},
			{"uid": "u2", "device_id": "d1", "key": "secret-for-u2"},
		},
		"encrypt_version": 1,
	})
	require.NoError(t, err)
	require.NoError(t, keys.Insert(model.KeyRecord{GID: 1, Version: 0, Mode: model.KeyModeOneForEach, Payload: payload}))

	out := c.FetchLatest(FetchLatestInput{Caller: "u1", DeviceID: "d1", GIDs: []uint64{1}})
	require.Len(t, out, 1)
	require.True(t, out[0].Found)
	require.Equal(t, "secret-for-u1", out[0].Key)
}

func TestFetchByVersionsForbidsNonMember(t *testing.T) {
	c, members, _ := newTestCoordinator(t)
	require.NoError(t, members.CreateGroup(model.Group{GID: 1, Version: model.GroupVersionV3}))

	_, err := c.FetchByVersions(FetchByVersionsInput{GID: 1, Caller: "stranger", Versions: []uint64{0}})
	require.Error(t, err)
}

func TestFireSkipsGroupsCallerIsNotMemberOf(t *testing.T) {
	c, members, _ := newTestCoordinator(t)
	require.NoError(t, members.CreateGroup(model.Group{GID: 1, Version: model.GroupVersionV3}))
	require.NoError(t, members.InsertMember(model.GroupMember{GID: 1, UID: "u1", Role: model.MemberRoleOwner}))
	require.NoError(t, members.CreateGroup(model.Group{GID: 2, Version: model.GroupVersionV3}))

	results, err := c.Fire(context.Background(), FireInput{Actor: "u1", GIDs: []uint64{1, 2}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(1), results[0].GID)
}
