package fsm

import (
	"context"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/identity"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// InviteInput carries PUT /v3/group/invite's fields (spec §6).
type InviteInput struct {
	GID                    uint64
	Actor                  string
	Members                []string
	MemberGroupInfoSecrets map[string][]byte
	MemberProofs           map[string][]byte
	// SignatureInfos carries the per-invitee signature block spec §4.6
	// requires for the ownerConfirm=1, non-owner-caller path.
	SignatureInfos map[string][]byte
	CallerPublicKeys map[string][]byte
}

// Invite implements both None → Member(MEMBER) (owner direct-add when
// ownerConfirm=0) and None → Pending (non-owner invite when ownerConfirm=1)
// from spec §4.6.
func (f *FSM) Invite(ctx context.Context, in InviteInput) (model.MembershipChange, error) {
	g, err := f.Store.GetGroup(in.GID)
	if err != nil {
		return model.MembershipChange{}, wrapNotFoundAsForbidden(err)
	}
	owner, err := f.Store.GetOwner(in.GID)
	if err != nil {
		return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
	}

	if !g.OwnerConfirm {
		if in.Actor != owner && !f.isPrivileged(in.Actor) {
			return model.MembershipChange{}, apierr.Authorization("FORBIDDEN", "only the owner may invite directly when ownerConfirm=0")
		}
		return f.inviteDirect(ctx, g, in)
	}

	if in.Actor == owner || f.isPrivileged(in.Actor) {
		return f.inviteDirect(ctx, g, in)
	}
	return f.invitePending(ctx, g, in)
}

func (f *FSM) inviteDirect(ctx context.Context, g model.Group, in InviteInput) (model.MembershipChange, error) {
	now := f.now()
	members := make([]model.GroupMember, 0, len(in.Members))
	added := 0
	for _, uid := range in.Members {
		if existing, err := f.Store.GetMember(in.GID, uid); err == nil {
			// Already a member: invite is a retain-role no-op per spec §8
			// ("retained prior role if ≥ ADMIN" implies idempotence here).
			members = append(members, existing)
			continue
		}

		if f.Limiters != nil && !f.isPrivileged(in.Actor) {
			if !f.Limiters.Allow(ratelimiter.GroupMemberJoin, subjectGIDUID(in.GID, uid), f.now()) {
				return model.MembershipChange{}, apierr.Throttle("LIMITER_REJECTED", "group member join rate limit exceeded")
			}
		}

		mutual, mErr := f.checkMutuality(ctx, in.Actor, uid)
		if mErr != nil {
			return model.MembershipChange{}, apierr.Internal("INTERNAL", mErr.Error())
		}
		if !mutual {
			continue
		}

		m := model.GroupMember{
			GID:             in.GID,
			UID:             uid,
			Role:            model.MemberRoleMember,
			GroupInfoSecret: in.MemberGroupInfoSecrets[uid],
			Proof:           in.MemberProofs[uid],
			CreateTime:      now,
		}
		if err := f.Store.InsertMember(m); err != nil && err != membership.ErrAlreadyExists {
			return model.MembershipChange{}, wrapStoreErr(err)
		}
		members = append(members, m)
		added++
	}

	counts, err := f.Store.CountMembers(in.GID)
	if err != nil {
		return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
	}
	change := model.MembershipChange{
		Kind:             model.ChangeInvite,
		GID:              in.GID,
		Actor:            in.Actor,
		AffectedMembers:  members,
		MemberCountDelta: added,
		MemberCountAfter: counts.MemberCount,
		SystemMessage: model.SystemMessageBody{
			Kind:         model.MsgGroupMemberUpdate,
			GID:          in.GID,
			AffectedUIDs: uidsOf(members),
			RequestID:    f.msgID(),
			EmittedAt:    f.now(),
		},
	}
	f.notify(ctx, change, pubsub.KindUserEnterGroup, in.Members)
	return change, nil
}

func (f *FSM) invitePending(ctx context.Context, g model.Group, in InviteInput) (model.MembershipChange, error) {
	now := f.now()
	var affected []string
	for _, uid := range in.Members {
		sig := in.SignatureInfos[uid]
		pub := in.CallerPublicKeys[uid]
		if len(sig) == 0 || !identity.VerifyJoinSignature(pub, g.QrCodeSetting, sig) {
			return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "missing or invalid per-invitee signature block")
		}
		if err := f.Store.InsertPending(model.PendingMember{
			GID: in.GID, UID: uid, Inviter: in.Actor, Signature: sig, CreateTime: now,
		}); err != nil && err != membership.ErrAlreadyExists {
			return model.MembershipChange{}, wrapStoreErr(err)
		}
		affected = append(affected, uid)
	}
	return model.MembershipChange{Kind: model.ChangeInvite, GID: in.GID, Actor: in.Actor, RemovedUIDs: nil, AffectedMembers: nil, MemberCountDelta: 0, NextOwner: "", SystemMessage: model.SystemMessageBody{Kind: model.MsgGroupJoinReview, GID: in.GID, AffectedUIDs: affected, EmittedAt: now}}, nil
}

func wrapNotFoundAsForbidden(err error) *apierr.Error {
	if err == membership.ErrNotFound {
		return apierr.Authorization("FORBIDDEN", "unknown group")
	}
	return apierr.Internal("INTERNAL", err.Error())
}
