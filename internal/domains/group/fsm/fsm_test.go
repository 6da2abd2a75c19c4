package fsm

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
)

type fakeAccounts struct {
	keys map[string]ed25519.PublicKey
}

func (f *fakeAccounts) PublicKey(ctx context.Context, uid string) ([]byte, error) {
	return f.keys[uid], nil
}

type alwaysMutual struct{}

func (alwaysMutual) IsMutualContact(ctx context.Context, a, b string) (bool, error) { return true, nil }

func newTestFSM(t *testing.T, ownerPub ed25519.PublicKey) (*FSM, *membership.Store) {
	t.Helper()
	store := membership.New()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &FSM{
		Store:     store,
		Limiters:  ratelimiter.NewDefault(),
		Bus:       pubsub.NewMock(),
		Accounts:  &fakeAccounts{keys: map[string]ed25519.PublicKey{"owner": ownerPub}},
		Mutuality: alwaysMutual{},
		Now:       func() time.Time { return clock },
	}
	return f, store
}

func signedGroup(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey, []byte, []byte, []byte) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	qrSetting := []byte("qr-setting-blob")
	shareSig := ed25519.Sign(priv, qrSetting)
	combined := append(append([]byte{}, qrSetting...), byte(1))
	confirmSig := ed25519.Sign(priv, combined)
	return pub, priv, qrSetting, shareSig, confirmSig
}

func TestCreateGroupSeedsOwnerAndMembers(t *testing.T) {
	pub, _, qrSetting, shareSig, confirmSig := signedGroup(t)
	f, store := newTestFSM(t, pub)

	change, err := f.CreateGroup(context.Background(), CreateGroupInput{
		GID:                           1,
		Owner:                         "owner",
		OwnerPublicKey:                pub,
		Members:                       []string{"u1", "u2"},
		QrCodeSetting:                 qrSetting,
		ShareSignature:                shareSig,
		ShareAndOwnerConfirmSignature: confirmSig,
		OwnerConfirm:                  true,
		EncryptedGroupInfoSecret:      []byte("secret"),
		EncryptedEphemeralKey:         []byte("ephemeral"),
		GroupKeysMode:                 model.KeyModeOneForEach,
	})
	require.NoError(t, err)
	require.Equal(t, 3, change.MemberCountAfter)

	owner, err := store.GetOwner(1)
	require.NoError(t, err)
	require.Equal(t, "owner", owner)

	m, err := store.GetMember(1, "u1")
	require.NoError(t, err)
	require.Equal(t, model.MemberRoleMember, m.Role)
}

func TestCreateGroupRejectsBadSignature(t *testing.T) {
	pub, _, qrSetting, shareSig, _ := signedGroup(t)
	f, _ := newTestFSM(t, pub)

	_, err := f.CreateGroup(context.Background(), CreateGroupInput{
		GID:                           2,
		Owner:                         "owner",
		OwnerPublicKey:                pub,
		QrCodeSetting:                 qrSetting,
		ShareSignature:                shareSig,
		ShareAndOwnerConfirmSignature: []byte("garbage"),
		EncryptedGroupInfoSecret:      []byte("s"),
		EncryptedEphemeralKey:         []byte("e"),
	})
	require.Error(t, err)
}

func TestQrCodeJoinOwnerConfirmFalseThenAddMeIsIdempotent(t *testing.T) {
	pub, priv, qrSetting, shareSig, _ := signedGroup(t)
	f, store := newTestFSM(t, pub)
	// ownerConfirm=false: the confirm signature covers qrSetting||0.
	confirmSig := ed25519.Sign(priv, append(append([]byte{}, qrSetting...), byte(0)))

	require.NoError(t, store.CreateGroup(model.Group{
		GID: 5, Version: model.GroupVersionV3, OwnerConfirm: false,
		QrCodeSetting: qrSetting, ShareSignature: shareSig, ShareAndOwnerConfirmSignature: confirmSig,
		EncryptedGroupInfoSecret: []byte("gis"),
	}))
	require.NoError(t, store.InsertMember(model.GroupMember{GID: 5, UID: "owner", Role: model.MemberRoleOwner}))

	callerPub, callerPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	token := []byte("qr-token")
	sig := ed25519.Sign(callerPriv, token)

	res, err := f.JoinByQrCode(context.Background(), JoinByQrCodeInput{
		GID: 5, Caller: "u9", CallerPublicKey: callerPub, QrToken: token, Signature: sig,
	})
	require.NoError(t, err)
	require.Equal(t, []byte("gis"), res.EncryptedGroupInfoSecret)

	change, err := f.AddMe(context.Background(), AddMeInput{GID: 5, UID: "u9", GroupInfoSecret: []byte("x"), Proof: []byte("p")})
	require.NoError(t, err)
	require.Len(t, change.AffectedMembers, 1)
	require.Equal(t, 1, change.MemberCountDelta)

	again, err := f.AddMe(context.Background(), AddMeInput{GID: 5, UID: "u9"})
	require.NoError(t, err)
	require.Equal(t, 0, again.MemberCountDelta)

	_ = callerPriv
}

func TestReviewAcceptRemovesPendingAndInsertsMember(t *testing.T) {
	pub, _, qrSetting, shareSig, confirmSig := signedGroup(t)
	f, store := newTestFSM(t, pub)

	require.NoError(t, store.CreateGroup(model.Group{GID: 7, Version: model.GroupVersionV3, OwnerConfirm: true, QrCodeSetting: qrSetting, ShareSignature: shareSig, ShareAndOwnerConfirmSignature: confirmSig}))
	require.NoError(t, store.InsertMember(model.GroupMember{GID: 7, UID: "owner", Role: model.MemberRoleOwner}))
	require.NoError(t, store.InsertPending(model.PendingMember{GID: 7, UID: "u3"}))

	change, err := f.Review(context.Background(), ReviewInput{
		GID: 7, Actor: "owner",
		Items: []ReviewItem{{UID: "u3", Accepted: true}},
	})
	require.NoError(t, err)
	require.Len(t, change.AffectedMembers, 1)

	_, err = store.GetPending(7, "u3")
	require.ErrorIs(t, err, membership.ErrNotFound)

	m, err := store.GetMember(7, "u3")
	require.NoError(t, err)
	require.Equal(t, model.MemberRoleMember, m.Role)
}

func TestLeaveWithOwnerTransfer(t *testing.T) {
	pub, _, qrSetting, shareSig, confirmSig := signedGroup(t)
	f, store := newTestFSM(t, pub)

	require.NoError(t, store.CreateGroup(model.Group{GID: 9, Version: model.GroupVersionV3, QrCodeSetting: qrSetting, ShareSignature: shareSig, ShareAndOwnerConfirmSignature: confirmSig}))
	require.NoError(t, store.InsertMembers([]model.GroupMember{
		{GID: 9, UID: "owner", Role: model.MemberRoleOwner},
		{GID: 9, UID: "u1", Role: model.MemberRoleMember},
	}))

	change, err := f.Leave(context.Background(), LeaveInput{GID: 9, Actor: "owner", NextOwner: "u1"})
	require.NoError(t, err)
	require.Equal(t, "u1", change.NextOwner)

	next, err := store.GetMember(9, "u1")
	require.NoError(t, err)
	require.Equal(t, model.MemberRoleOwner, next.Role)

	_, err = store.GetMember(9, "owner")
	require.ErrorIs(t, err, membership.ErrNotFound)
}

func TestUpdateGroupRejectsBadSignature(t *testing.T) {
	pub, _, qrSetting, shareSig, confirmSig := signedGroup(t)
	f, store := newTestFSM(t, pub)

	require.NoError(t, store.CreateGroup(model.Group{
		GID: 13, Version: model.GroupVersionV3,
		QrCodeSetting: qrSetting, ShareSignature: shareSig, ShareAndOwnerConfirmSignature: confirmSig,
	}))
	require.NoError(t, store.InsertMember(model.GroupMember{GID: 13, UID: "owner", Role: model.MemberRoleOwner}))

	_, err := f.UpdateGroup(context.Background(), UpdateGroupInput{
		GID:                           13,
		Actor:                         "owner",
		QrCodeSetting:                 []byte("new-qr-setting"),
		ShareSignature:                shareSig,
		ShareAndOwnerConfirmSignature: []byte("garbage"),
	})
	require.Error(t, err)

	g, err := store.GetGroup(13)
	require.NoError(t, err)
	require.Equal(t, qrSetting, g.QrCodeSetting)
}

func TestKickIsIdempotent(t *testing.T) {
	pub, _, qrSetting, shareSig, confirmSig := signedGroup(t)
	f, store := newTestFSM(t, pub)

	require.NoError(t, store.CreateGroup(model.Group{GID: 11, Version: model.GroupVersionV3, QrCodeSetting: qrSetting, ShareSignature: shareSig, ShareAndOwnerConfirmSignature: confirmSig}))
	require.NoError(t, store.InsertMembers([]model.GroupMember{
		{GID: 11, UID: "owner", Role: model.MemberRoleOwner},
		{GID: 11, UID: "u1", Role: model.MemberRoleMember},
	}))

	first, err := f.Kick(context.Background(), KickInput{GID: 11, Actor: "owner", Members: []string{"u1"}})
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, first.RemovedUIDs)

	second, err := f.Kick(context.Background(), KickInput{GID: 11, Actor: "owner", Members: []string{"u1"}})
	require.NoError(t, err)
	require.Empty(t, second.RemovedUIDs)
}
