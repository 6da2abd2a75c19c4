package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glkdc.dev/glkdcd/internal/domains/group/model"
)

func TestCreateGroupRejectsDuplicateGID(t *testing.T) {
	s := New()
	g := model.Group{GID: 1, Version: model.GroupVersionV3}
	require.NoError(t, s.CreateGroup(g))
	err := s.CreateGroup(g)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInsertMembersAtomicPerGroup(t *testing.T) {
	s := New()
	require.NoError(t, s.InsertMember(model.GroupMember{GID: 1, UID: "u1", Role: model.MemberRoleOwner}))

	err := s.InsertMembers([]model.GroupMember{
		{GID: 1, UID: "u2", Role: model.MemberRoleMember},
		{GID: 1, UID: "u1", Role: model.MemberRoleMember}, // conflicts
	})
	require.ErrorIs(t, err, ErrAlreadyExists)

	// u2 must not have been inserted despite appearing first in the batch.
	_, err = s.GetMember(1, "u2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMemberIfEmptyIsCAS(t *testing.T) {
	s := New()
	require.NoError(t, s.InsertMember(model.GroupMember{GID: 1, UID: "u1"}))

	_, err := s.UpdateMemberIfEmpty(1, "u1", MemberPatch{EncryptedKey: []byte("k1")})
	require.NoError(t, err)

	_, err = s.UpdateMemberIfEmpty(1, "u1", MemberPatch{EncryptedKey: []byte("k2")})
	require.ErrorIs(t, err, ErrAlreadyExists)

	m, err := s.GetMember(1, "u1")
	require.NoError(t, err)
	require.Equal(t, []byte("k1"), m.EncryptedKey)
}

func TestGetMembersOrderedByCreateTimeCursor(t *testing.T) {
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, uid := range []string{"u3", "u1", "u2"} {
		require.NoError(t, s.InsertMember(model.GroupMember{
			GID: 1, UID: uid, Role: model.MemberRoleMember,
			CreateTime: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	page, err := s.GetMembersOrderedByCreateTime(1, nil, "", time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "u3", page[0].UID)
	require.Equal(t, "u1", page[1].UID)

	next, err := s.GetMembersOrderedByCreateTime(1, nil, page[1].UID, page[1].CreateTime, 2)
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, "u2", next[0].UID)
}

func TestCountMembersTracksOwnerAndSubscribers(t *testing.T) {
	s := New()
	require.NoError(t, s.InsertMembers([]model.GroupMember{
		{GID: 1, UID: "owner", Role: model.MemberRoleOwner},
		{GID: 1, UID: "m1", Role: model.MemberRoleMember},
		{GID: 1, UID: "sub1", Role: model.MemberRoleSubscriber},
	}))
	counts, err := s.CountMembers(1)
	require.NoError(t, err)
	require.Equal(t, 2, counts.MemberCount)
	require.Equal(t, 1, counts.SubscriberCount)
	require.Equal(t, "owner", counts.Owner)
}

func TestQrCodePendingExpiry(t *testing.T) {
	s := New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertQrPending(model.QrCodePendingMember{
		GID: 1, UID: "u1", ExpiresAt: now.Add(model.QrCodePendingTTL),
	}))

	_, err := s.GetQrPending(1, "u1", now.Add(30*time.Second))
	require.NoError(t, err)

	_, err = s.GetQrPending(1, "u1", now.Add(61*time.Second))
	require.ErrorIs(t, err, ErrNotFound)
}
