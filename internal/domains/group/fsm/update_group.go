package fsm

import (
	"context"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/identity"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// UpdateGroupInput carries PUT /v3/group/update's fields.
type UpdateGroupInput struct {
	GID                           uint64
	Actor                         string
	Name, Icon, Intro             []byte
	Extension                     map[string][]byte
	Broadcast                     *bool
	QrCodeSetting                 []byte
	ShareSignature                []byte
	ShareAndOwnerConfirmSignature []byte
	OwnerConfirm                  *bool
	EncryptedGroupInfoSecret      []byte
	EncryptedEphemeralKey         []byte
}

// UpdateGroup is the owner-only group-info mutation named in spec §4.8's
// binding table; it is not itself a membership-state transition, but spec
// §9's open question #2 calls out the source's own
// onUpdateGroupNotice treating "role != OWNER" as INTERNAL_ERROR rather
// than FORBIDDEN. That behavior is preserved here unless corrected — see
// DESIGN.md.
func (f *FSM) UpdateGroup(ctx context.Context, in UpdateGroupInput) (model.MembershipChange, error) {
	owner, err := f.Store.GetOwner(in.GID)
	if err != nil {
		return model.MembershipChange{}, apierr.Internal("INTERNAL_ERROR", err.Error())
	}
	if in.Actor != owner && !f.isPrivileged(in.Actor) {
		return model.MembershipChange{}, apierr.Internal("INTERNAL_ERROR", "role != OWNER")
	}

	qrRotated := len(in.QrCodeSetting) > 0
	if qrRotated {
		g, err := f.Store.GetGroup(in.GID)
		if err != nil {
			return model.MembershipChange{}, wrapStoreErr(err)
		}
		ownerPub, err := f.Accounts.PublicKey(ctx, owner)
		if err != nil {
			return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
		}
		ownerConfirm := g.OwnerConfirm
		if in.OwnerConfirm != nil {
			ownerConfirm = *in.OwnerConfirm
		}
		if !identity.VerifyQrCodeSignatureChain(ownerPub, in.QrCodeSetting, in.ShareSignature, in.ShareAndOwnerConfirmSignature, ownerConfirm) {
			return model.MembershipChange{}, apierr.Validation("BAD_SIGNATURE", "qrCodeSetting signature chain does not verify")
		}
	}

	_, err = f.Store.UpdateGroup(in.GID, membership.GroupPatch{
		Name:                          in.Name,
		Icon:                          in.Icon,
		Intro:                         in.Intro,
		Extension:                     in.Extension,
		Broadcast:                     in.Broadcast,
		OwnerConfirm:                  in.OwnerConfirm,
		QrCodeSetting:                 in.QrCodeSetting,
		ShareSignature:                in.ShareSignature,
		ShareAndOwnerConfirmSignature: in.ShareAndOwnerConfirmSignature,
		EncryptedGroupInfoSecret:      in.EncryptedGroupInfoSecret,
		EncryptedEphemeralKey:         in.EncryptedEphemeralKey,
	})
	if err != nil {
		return model.MembershipChange{}, wrapStoreErr(err)
	}

	if qrRotated {
		// Best-effort per spec §4.6: "When qrCodeSetting updates, all
		// PendingMember rows for the group are cleared (best-effort;
		// failure is logged, not returned)."
		if err := f.Store.ClearPendingForGroup(in.GID); err != nil && f.Log != nil {
			f.Log.Warn("fsm: clearing pending members after qrCodeSetting rotation failed", "gid", in.GID, "err", err)
		}
	}

	change := model.MembershipChange{
		Kind:  model.ChangeUpdateGroup,
		GID:   in.GID,
		Actor: in.Actor,
		SystemMessage: model.SystemMessageBody{
			Kind:      model.MsgGroupInfoUpdate,
			GID:       in.GID,
			RequestID: f.msgID(),
			EmittedAt: f.now(),
		},
	}
	f.notify(ctx, change, pubsub.KindGroupInfoUpdate, nil)
	return change, nil
}
