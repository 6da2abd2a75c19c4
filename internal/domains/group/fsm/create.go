package fsm

import (
	"context"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/identity"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// CreateGroupInput carries every field PUT /v3/group/create accepts
// (spec §6).
type CreateGroupInput struct {
	GID                           uint64
	Owner                         string
	OwnerPublicKey                []byte
	Members                       []string
	MemberGroupInfoSecrets        map[string][]byte
	MemberProofs                  map[string][]byte
	Name, Icon, Intro             []byte
	Extension                     map[string][]byte
	QrCodeSetting                 []byte
	ShareSignature                []byte
	ShareAndOwnerConfirmSignature []byte
	OwnerConfirm                  bool
	EncryptedGroupInfoSecret      []byte
	EncryptedEphemeralKey         []byte
	GroupKeysMode                 model.KeyMode
	GroupKeysPayload              []byte
}

// CreateGroup implements the None → Member(OWNER) transition (spec §4.6,
// first bullet). It validates the signature chain, V3 field presence,
// mutual-contact against each invitee, and a GroupCreation rate-limit
// acquire, then writes Group, every member, and (when a KeyStore is
// injected) key version 0.
func (f *FSM) CreateGroup(ctx context.Context, in CreateGroupInput) (model.MembershipChange, error) {
	if in.GID == 0 || in.Owner == "" {
		return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "gid and owner are required")
	}
	if len(in.QrCodeSetting) == 0 {
		return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "qrCodeSetting must not be empty")
	}
	if len(in.ShareSignature) == 0 || len(in.ShareAndOwnerConfirmSignature) == 0 {
		return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "signature chain required")
	}
	if len(in.EncryptedGroupInfoSecret) == 0 || len(in.EncryptedEphemeralKey) == 0 {
		return model.MembershipChange{}, apierr.Version("UPGRADE_REQUIRED", "V3 groups require encrypted group info secret and ephemeral key")
	}
	if !identity.VerifyQrCodeSignatureChain(in.OwnerPublicKey, in.QrCodeSetting, in.ShareSignature, in.ShareAndOwnerConfirmSignature, in.OwnerConfirm) {
		return model.MembershipChange{}, apierr.Validation("BAD_SIGNATURE", "qrCodeSetting signature chain does not verify")
	}

	if f.Limiters != nil && !f.isPrivileged(in.Owner) {
		if !f.Limiters.Allow(ratelimiter.GroupCreation, subjectUID(in.Owner), f.now()) {
			return model.MembershipChange{}, apierr.Throttle("LIMITER_REJECTED", "group creation rate limit exceeded")
		}
	}

	for _, uid := range in.Members {
		mutual, err := f.checkMutuality(ctx, in.Owner, uid)
		if err != nil {
			return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
		}
		if !mutual {
			// Intentional disclosure-avoidance no-op per spec §4.6: contact
			// mutuality failure returns OK with no state change.
			return model.MembershipChange{Kind: model.ChangeCreateGroup, GID: in.GID, Actor: in.Owner}, nil
		}
	}

	now := f.now()
	g := model.Group{
		GID:                           in.GID,
		Name:                          in.Name,
		Icon:                          in.Icon,
		Intro:                         in.Intro,
		Version:                       model.GroupVersionV3,
		OwnerConfirm:                  in.OwnerConfirm,
		QrCodeSetting:                 in.QrCodeSetting,
		ShareSignature:                in.ShareSignature,
		ShareAndOwnerConfirmSignature: in.ShareAndOwnerConfirmSignature,
		EncryptedGroupInfoSecret:      in.EncryptedGroupInfoSecret,
		EncryptedEphemeralKey:         in.EncryptedEphemeralKey,
		Extension:                     in.Extension,
		CreateTime:                    now,
		UpdateTime:                    now,
	}
	if err := g.ValidateForCreate(); err != nil {
		return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", err.Error())
	}
	if err := f.Store.CreateGroup(g); err != nil {
		return model.MembershipChange{}, wrapStoreErr(err)
	}

	members := make([]model.GroupMember, 0, len(in.Members)+1)
	members = append(members, model.GroupMember{
		GID: in.GID, UID: in.Owner, Role: model.MemberRoleOwner, CreateTime: now,
	})
	for _, uid := range in.Members {
		members = append(members, model.GroupMember{
			GID:             in.GID,
			UID:             uid,
			Role:            model.MemberRoleMember,
			GroupInfoSecret: in.MemberGroupInfoSecrets[uid],
			Proof:           in.MemberProofs[uid],
			CreateTime:      now,
		})
	}
	if err := f.Store.InsertMembers(members); err != nil {
		return model.MembershipChange{}, wrapStoreErr(err)
	}

	if ks := f.Keys(); ks != nil {
		if err := ks.Insert(model.KeyRecord{
			GID:     in.GID,
			Version: 0,
			Mode:    in.GroupKeysMode,
			Creator: in.Owner,
			Payload: in.GroupKeysPayload,
		}); err != nil && err != keystore.ErrCASFail {
			return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
		}
	}

	change := model.MembershipChange{
		Kind:             model.ChangeCreateGroup,
		GID:              in.GID,
		Actor:            in.Owner,
		AffectedMembers:  members,
		MemberCountDelta: len(members),
		MemberCountAfter: len(members),
		SystemMessage: model.SystemMessageBody{
			Kind:         model.MsgGroupMemberUpdate,
			GID:          in.GID,
			AffectedUIDs: uidsOf(members),
			RequestID:    f.msgID(),
			EmittedAt:    now,
		},
	}
	f.notify(ctx, change, pubsub.KindUserEnterGroup, in.Members)
	return change, nil
}

func uidsOf(members []model.GroupMember) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.UID
	}
	return out
}
