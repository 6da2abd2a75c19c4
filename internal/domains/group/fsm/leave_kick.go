package fsm

import (
	"context"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// LeaveInput carries PUT /v3/group/leave's fields.
type LeaveInput struct {
	GID       uint64
	Actor     string
	NextOwner string
}

// Leave implements Member(*) → None for the self-removal case (spec §4.6).
// When the leaver is OWNER and memberCount>1, NextOwner must currently be
// Member(MEMBER|OWNER); the promotion applies atomically with the removal.
func (f *FSM) Leave(ctx context.Context, in LeaveInput) (model.MembershipChange, error) {
	m, err := f.Store.GetMember(in.GID, in.Actor)
	if err != nil {
		return model.MembershipChange{}, apierr.Authorization("FORBIDDEN", "not a member of this group")
	}

	counts, err := f.Store.CountMembers(in.GID)
	if err != nil {
		return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
	}

	if m.Role == model.MemberRoleOwner && counts.MemberCount > 1 {
		if in.NextOwner == "" {
			return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "owner leaving a non-empty group must name nextOwner")
		}
		next, err := f.Store.GetMember(in.GID, in.NextOwner)
		if err != nil || (next.Role != model.MemberRoleMember && next.Role != model.MemberRoleOwner) {
			return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "nextOwner must currently be a MEMBER or OWNER")
		}
		promoted := model.MemberRoleOwner
		if _, err := f.Store.UpdateMember(in.GID, in.NextOwner, membership.MemberPatch{Role: &promoted}); err != nil {
			return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
		}
		if err := f.Store.DeleteMember(in.GID, in.Actor); err != nil {
			return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
		}
		after, _ := f.Store.CountMembers(in.GID)
		change := model.MembershipChange{
			Kind:             model.ChangeLeave,
			GID:              in.GID,
			Actor:            in.Actor,
			RemovedUIDs:      []string{in.Actor},
			NextOwner:        in.NextOwner,
			MemberCountDelta: -1,
			MemberCountAfter: after.MemberCount,
			SystemMessage: model.SystemMessageBody{
				Kind:         model.MsgGroupMemberUpdate,
				GID:          in.GID,
				AffectedUIDs: []string{in.Actor, in.NextOwner},
				RequestID:    f.msgID(),
				EmittedAt:    f.now(),
			},
		}
		f.notify(ctx, change, pubsub.KindUserChangeRole, []string{in.NextOwner})
		f.notify(ctx, change, pubsub.KindUserQuitGroup, []string{in.Actor})
		return change, nil
	}

	if err := f.Store.DeleteMember(in.GID, in.Actor); err != nil {
		return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
	}
	after, _ := f.Store.CountMembers(in.GID)
	change := model.MembershipChange{
		Kind:             model.ChangeLeave,
		GID:              in.GID,
		Actor:            in.Actor,
		RemovedUIDs:      []string{in.Actor},
		MemberCountDelta: -1,
		MemberCountAfter: after.MemberCount,
		SystemMessage: model.SystemMessageBody{
			Kind:         model.MsgGroupMemberUpdate,
			GID:          in.GID,
			AffectedUIDs: []string{in.Actor},
			RequestID:    f.msgID(),
			EmittedAt:    f.now(),
		},
	}
	f.notify(ctx, change, pubsub.KindUserQuitGroup, []string{in.Actor})
	return change, nil
}

// KickInput carries PUT /v3/group/kick's fields.
type KickInput struct {
	GID     uint64
	Actor   string
	Members []string
}

// Kick implements Member(*) → None for the owner-initiated removal case.
// Repeated kick of an already-removed uid is a no-op per spec §8.
func (f *FSM) Kick(ctx context.Context, in KickInput) (model.MembershipChange, error) {
	owner, err := f.Store.GetOwner(in.GID)
	if err != nil {
		return model.MembershipChange{}, wrapNotFoundAsForbidden(err)
	}
	if in.Actor != owner && !f.isPrivileged(in.Actor) {
		return model.MembershipChange{}, apierr.Authorization("FORBIDDEN", "only the owner may kick members")
	}

	var removed []string
	for _, uid := range in.Members {
		if uid == owner {
			continue // cannot kick the owner; use leave with nextOwner instead
		}
		if _, err := f.Store.GetMember(in.GID, uid); err != nil {
			continue // already gone: idempotent no-op
		}
		if err := f.Store.DeleteMember(in.GID, uid); err != nil {
			return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
		}
		removed = append(removed, uid)
	}

	if len(removed) == 0 {
		return model.MembershipChange{Kind: model.ChangeKick, GID: in.GID, Actor: in.Actor}, nil
	}

	counts, err := f.Store.CountMembers(in.GID)
	if err != nil {
		return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
	}
	change := model.MembershipChange{
		Kind:             model.ChangeKick,
		GID:              in.GID,
		Actor:            in.Actor,
		RemovedUIDs:      removed,
		MemberCountDelta: -len(removed),
		MemberCountAfter: counts.MemberCount,
		SystemMessage: model.SystemMessageBody{
			Kind:         model.MsgGroupMemberUpdate,
			GID:          in.GID,
			AffectedUIDs: removed,
			RequestID:    f.msgID(),
			EmittedAt:    f.now(),
		},
	}
	f.notify(ctx, change, pubsub.KindUserQuitGroup, removed)
	return change, nil
}
