package fsm

import (
	"context"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/identity"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// JoinByQrCodeInput carries PUT /v3/group/join_group_by_code's fields.
type JoinByQrCodeInput struct {
	GID             uint64
	Caller          string
	CallerPublicKey []byte
	QrToken         []byte
	Signature       []byte
	Comment         string
}

// JoinByQrCodeResult is returned to the caller alongside the transition;
// EncryptedGroupInfoSecret is only populated on the ownerConfirm=0 path.
type JoinByQrCodeResult struct {
	Change                   model.MembershipChange
	EncryptedGroupInfoSecret []byte
}

// JoinByQrCode implements both None → Pending (ownerConfirm=1) and
// None → QrCodePending (ownerConfirm=0) from spec §4.6. Neither branch
// changes membership count, so neither emits a system message or pub/sub
// notification — only addMe (for the ephemeral path) or review (for the
// pending path) does.
func (f *FSM) JoinByQrCode(ctx context.Context, in JoinByQrCodeInput) (JoinByQrCodeResult, error) {
	g, err := f.Store.GetGroup(in.GID)
	if err != nil {
		return JoinByQrCodeResult{}, wrapNotFoundAsForbidden(err)
	}
	owner, err := f.Store.GetOwner(in.GID)
	if err != nil {
		return JoinByQrCodeResult{}, apierr.Internal("INTERNAL", err.Error())
	}
	ownerPub, err := f.Accounts.PublicKey(ctx, owner)
	if err != nil {
		return JoinByQrCodeResult{}, apierr.Internal("INTERNAL", err.Error())
	}
	if !identity.VerifyQrCodeSignatureChain(ownerPub, g.QrCodeSetting, g.ShareSignature, g.ShareAndOwnerConfirmSignature, g.OwnerConfirm) {
		return JoinByQrCodeResult{}, apierr.Validation("BAD_SIGNATURE", "qrCodeSetting signature chain does not verify")
	}
	if len(in.Signature) == 0 || !identity.VerifyJoinSignature(in.CallerPublicKey, in.QrToken, in.Signature) {
		return JoinByQrCodeResult{}, apierr.Validation("BAD_REQUEST", "invalid join-intent signature")
	}
	if _, err := f.Store.GetMember(in.GID, in.Caller); err == nil {
		return JoinByQrCodeResult{Change: model.MembershipChange{Kind: model.ChangeJoinByQr, GID: in.GID, Actor: in.Caller}}, nil
	}

	if g.OwnerConfirm {
		if err := f.Store.InsertPending(model.PendingMember{
			GID: in.GID, UID: in.Caller, Signature: in.Signature, Comment: in.Comment, CreateTime: f.now(),
		}); err != nil && err != membership.ErrAlreadyExists {
			return JoinByQrCodeResult{}, wrapStoreErr(err)
		}
		return JoinByQrCodeResult{Change: model.MembershipChange{Kind: model.ChangeJoinByQr, GID: in.GID, Actor: in.Caller}}, nil
	}

	if err := f.Store.InsertQrPending(model.QrCodePendingMember{
		GID:                      in.GID,
		UID:                      in.Caller,
		EncryptedGroupInfoSecret: g.EncryptedGroupInfoSecret,
		Signature:                in.Signature,
		Comment:                  in.Comment,
		ExpiresAt:                f.now().Add(model.QrCodePendingTTL),
	}); err != nil {
		return JoinByQrCodeResult{}, wrapStoreErr(err)
	}
	return JoinByQrCodeResult{
		Change:                   model.MembershipChange{Kind: model.ChangeJoinByQr, GID: in.GID, Actor: in.Caller},
		EncryptedGroupInfoSecret: g.EncryptedGroupInfoSecret,
	}, nil
}

// AddMeInput carries PUT /v3/group/add_me's fields.
type AddMeInput struct {
	GID             uint64
	UID             string
	GroupInfoSecret []byte
	Proof           []byte
}

// AddMe implements QrCodePending → Member(MEMBER) (spec §4.6). Idempotent
// per spec §8: a second call on an already-Member uid returns OK with the
// existing member and MemberCountDelta 0, so the controller's
// afterMembershipChange hand-off knows not to re-publish.
func (f *FSM) AddMe(ctx context.Context, in AddMeInput) (model.MembershipChange, error) {
	if existing, err := f.Store.GetMember(in.GID, in.UID); err == nil {
		return model.MembershipChange{Kind: model.ChangeAddMe, GID: in.GID, Actor: in.UID, AffectedMembers: []model.GroupMember{existing}}, nil
	}
	if _, err := f.Store.GetQrPending(in.GID, in.UID, f.now()); err != nil {
		return model.MembershipChange{}, apierr.Existence("NOT_FOUND", "no pending qr-code join for this uid")
	}

	member := model.GroupMember{
		GID:             in.GID,
		UID:             in.UID,
		Role:            model.MemberRoleMember,
		GroupInfoSecret: in.GroupInfoSecret,
		Proof:           in.Proof,
		CreateTime:      f.now(),
	}
	if err := f.Store.InsertMember(member); err != nil && err != membership.ErrAlreadyExists {
		return model.MembershipChange{}, wrapStoreErr(err)
	}
	_ = f.Store.DeleteQrPending(in.GID, in.UID)

	counts, err := f.Store.CountMembers(in.GID)
	if err != nil {
		return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
	}
	change := model.MembershipChange{
		Kind:             model.ChangeAddMe,
		GID:              in.GID,
		Actor:            in.UID,
		AffectedMembers:  []model.GroupMember{member},
		MemberCountDelta: 1,
		MemberCountAfter: counts.MemberCount,
		SystemMessage: model.SystemMessageBody{
			Kind:         model.MsgGroupMemberUpdate,
			GID:          in.GID,
			AffectedUIDs: []string{in.UID},
			RequestID:    f.msgID(),
			EmittedAt:    f.now(),
		},
	}
	f.notify(ctx, change, pubsub.KindUserEnterGroup, []string{in.UID})
	return change, nil
}
