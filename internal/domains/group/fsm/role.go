package fsm

import (
	"context"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// ChangeRoleInput carries an admin role-change request; the wire surface
// doesn't give this its own endpoint in spec §6's table (role changes ride
// along PUT /v3/group/update in the source protocol) but the transition is
// named explicitly in spec §4.6 as Member(role) → Member(role').
type ChangeRoleInput struct {
	GID     uint64
	Actor   string
	Target  string
	NewRole model.MemberRole
}

// ChangeRole implements Member(role) → Member(role') (spec §4.6, final
// bullet). Only the owner (or a configured privileged principal) may
// change another member's role; the owner's own role cannot be changed
// here — leave-with-nextOwner is the only owner-transfer path.
func (f *FSM) ChangeRole(ctx context.Context, in ChangeRoleInput) (model.MembershipChange, error) {
	if !in.NewRole.Valid() {
		return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "invalid role")
	}
	owner, err := f.Store.GetOwner(in.GID)
	if err != nil {
		return model.MembershipChange{}, wrapNotFoundAsForbidden(err)
	}
	if in.Actor != owner && !f.isPrivileged(in.Actor) {
		return model.MembershipChange{}, apierr.Authorization("FORBIDDEN", "only the owner may change member roles")
	}
	if in.Target == owner {
		return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "cannot change the owner's role; use leave with nextOwner")
	}
	if in.NewRole == model.MemberRoleOwner {
		return model.MembershipChange{}, apierr.Validation("BAD_REQUEST", "cannot promote to owner via role change; use leave with nextOwner")
	}

	target, err := f.Store.GetMember(in.GID, in.Target)
	if err != nil {
		return model.MembershipChange{}, wrapStoreErr(err)
	}
	if target.Role == in.NewRole {
		return model.MembershipChange{Kind: model.ChangeRoleChange, GID: in.GID, Actor: in.Actor, AffectedMembers: []model.GroupMember{target}}, nil
	}

	updated, err := f.Store.UpdateMember(in.GID, in.Target, membership.MemberPatch{Role: &in.NewRole})
	if err != nil {
		return model.MembershipChange{}, wrapStoreErr(err)
	}

	change := model.MembershipChange{
		Kind:            model.ChangeRoleChange,
		GID:             in.GID,
		Actor:           in.Actor,
		AffectedMembers: []model.GroupMember{updated},
		SystemMessage: model.SystemMessageBody{
			Kind:         model.MsgUserChangeRole,
			GID:          in.GID,
			AffectedUIDs: []string{in.Target},
			Role:         in.NewRole.String(),
			RequestID:    f.msgID(),
			EmittedAt:    f.now(),
		},
	}
	f.notify(ctx, change, pubsub.KindUserChangeRole, []string{in.Target})
	return change, nil
}
