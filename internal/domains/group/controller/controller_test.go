package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glkdc.dev/glkdcd/internal/domains/group/candidate"
	"glkdc.dev/glkdcd/internal/domains/group/keycache"
	"glkdc.dev/glkdcd/internal/domains/group/keyepoch"
	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
)

type fakePeerKeys struct {
	keys map[string][]byte
	err  error
}

func (f *fakePeerKeys) DHKeys(ctx context.Context, uids []string) (map[string][]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]byte, len(uids))
	for _, u := range uids {
		if k, ok := f.keys[u]; ok {
			out[u] = k
		}
	}
	return out, nil
}

func newTestController(t *testing.T) (*Controller, *membership.Store, *keystore.Store) {
	t.Helper()
	members := membership.New()
	keys := keystore.New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	epoch := &keyepoch.Coordinator{
		Members:  members,
		Keys:      keys,
		Cache:    keycache.New(time.Minute),
		Selector: candidate.New(),
		Bus:      pubsub.NewMock(),
		Policy:   keyepoch.DefaultPolicy(),
		Now:      func() time.Time { return clock },
	}
	c := &Controller{
		KeyEpoch: epoch,
		Members:  members,
		Limiters: ratelimiter.NewDefault(),
		PeerKeys: &fakePeerKeys{keys: map[string][]byte{"u2": []byte("dh-key-u2")}},
		Now:      func() time.Time { return clock },
	}
	return c, members, keys
}

func TestAfterMembershipChangeSkipsWhenDeltaZero(t *testing.T) {
	c, members, _ := newTestController(t)
	require.NoError(t, members.CreateGroup(model.Group{GID: 1, Version: model.GroupVersionV3}))

	// Should not panic and should not attempt rotation when delta is zero,
	// even though KeyEpoch is wired.
	c.afterMembershipChange(context.Background(), model.MembershipChange{GID: 1, Actor: "u1", MemberCountDelta: 0})
}

func TestAfterMembershipChangeNoopWhenCoordinatorUnwired(t *testing.T) {
	c, _, _ := newTestController(t)
	c.KeyEpoch = nil
	c.afterMembershipChange(context.Background(), model.MembershipChange{GID: 1, Actor: "u1", MemberCountDelta: 1})
}

func TestLogChangeNoopWithoutLogger(t *testing.T) {
	c, _, _ := newTestController(t)
	require.Nil(t, c.Log)
	c.logChange(model.MembershipChange{GID: 1, Kind: model.ChangeCreateGroup})
}

func TestGetMembersReturnsStoredMembers(t *testing.T) {
	c, members, _ := newTestController(t)
	require.NoError(t, members.CreateGroup(model.Group{GID: 1, Version: model.GroupVersionV3}))
	require.NoError(t, members.InsertMember(model.GroupMember{GID: 1, UID: "u1", Role: model.MemberRoleOwner}))

	out, err := c.GetMembers(context.Background(), GetMembersInput{GID: 1, UIDs: []string{"u1"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "u1", out[0].UID)
}

func TestDHKeysDelegatesToPeerKeyDirectory(t *testing.T) {
	c, _, _ := newTestController(t)
	out, err := c.DHKeys(context.Background(), DHKeysInput{Caller: "u1", UIDs: []string{"u2", "u3"}})
	require.NoError(t, err)
	require.Equal(t, []byte("dh-key-u2"), out["u2"])
	require.NotContains(t, out, "u3")
}

func TestDHKeysRejectedWhenLimiterExhausted(t *testing.T) {
	c, _, _ := newTestController(t)
	dh := c.Limiters.DhKeysLimiter()
	now := c.now()
	for dh.Allow("u1", now) {
	}
	_, err := c.DHKeys(context.Background(), DHKeysInput{Caller: "u1", UIDs: []string{"u2"}})
	require.Error(t, err)
}

func TestUpdateGroupKeysAndFetchRoundtrip(t *testing.T) {
	c, members, _ := newTestController(t)
	require.NoError(t, members.CreateGroup(model.Group{GID: 1, Version: model.GroupVersionV3}))
	require.NoError(t, members.InsertMember(model.GroupMember{GID: 1, UID: "u1", Role: model.MemberRoleOwner}))

	err := c.UpdateGroupKeys(context.Background(), keyepoch.UploadInput{
		GID: 1, Caller: "u1", Version: 1, Mode: model.KeyModeAllTheSame,
		Payload: []byte(`{"keys_v1":{"key":"shared-secret"}}`),
	})
	require.NoError(t, err)

	out, err := c.GroupKeys(context.Background(), keyepoch.FetchByVersionsInput{GID: 1, Caller: "u1", Versions: []uint64{1}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "shared-secret", out[0].Key)
}

func TestPrepareGroupKeysUpdateReturnsErrorWhenUnwired(t *testing.T) {
	c, _, _ := newTestController(t)
	c.KeyEpoch = nil
	_, err := c.PrepareGroupKeysUpdate(context.Background(), keyepoch.PrepareInput{GID: 1, Caller: "u1", NextVersion: 1})
	require.Error(t, err)
}
