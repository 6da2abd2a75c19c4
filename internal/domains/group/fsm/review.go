package fsm

import (
	"context"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// ReviewItem is one {uid, accepted, groupInfoSecret, inviter, proof} entry
// from POST /v3/group/review_join_request's list field.
type ReviewItem struct {
	UID             string
	Accepted        bool
	GroupInfoSecret []byte
	Inviter         string
	Proof           []byte
}

// ReviewInput carries the owner's batched accept/reject decision.
type ReviewInput struct {
	GID   uint64
	Actor string
	Items []ReviewItem
}

// Review implements Pending → Member(MEMBER) (accept) and Pending → None
// (reject) from spec §4.6. Both outcomes remove the pending record; only
// accept notifies PubSubBus.
func (f *FSM) Review(ctx context.Context, in ReviewInput) (model.MembershipChange, error) {
	owner, err := f.Store.GetOwner(in.GID)
	if err != nil {
		return model.MembershipChange{}, wrapNotFoundAsForbidden(err)
	}
	if in.Actor != owner && !f.isPrivileged(in.Actor) {
		return model.MembershipChange{}, apierr.Authorization("FORBIDDEN", "only the owner may review join requests")
	}

	now := f.now()
	var accepted []model.GroupMember
	var acceptedUIDs []string
	for _, item := range in.Items {
		if _, err := f.Store.GetPending(in.GID, item.UID); err != nil {
			continue // already decided or never pending: idempotent no-op
		}
		_ = f.Store.DeletePending(in.GID, item.UID)
		if !item.Accepted {
			continue
		}
		m := model.GroupMember{
			GID:             in.GID,
			UID:             item.UID,
			Role:            model.MemberRoleMember,
			GroupInfoSecret: item.GroupInfoSecret,
			Proof:           item.Proof,
			CreateTime:      now,
		}
		if err := f.Store.InsertMember(m); err != nil && err != membership.ErrAlreadyExists {
			return model.MembershipChange{}, wrapStoreErr(err)
		}
		accepted = append(accepted, m)
		acceptedUIDs = append(acceptedUIDs, item.UID)
	}

	if len(accepted) == 0 {
		return model.MembershipChange{Kind: model.ChangeReviewReject, GID: in.GID, Actor: in.Actor}, nil
	}

	counts, err := f.Store.CountMembers(in.GID)
	if err != nil {
		return model.MembershipChange{}, apierr.Internal("INTERNAL", err.Error())
	}
	change := model.MembershipChange{
		Kind:             model.ChangeReviewAccept,
		GID:              in.GID,
		Actor:            in.Actor,
		AffectedMembers:  accepted,
		MemberCountDelta: len(accepted),
		MemberCountAfter: counts.MemberCount,
		SystemMessage: model.SystemMessageBody{
			Kind:         model.MsgGroupMemberUpdate,
			GID:          in.GID,
			AffectedUIDs: acceptedUIDs,
			RequestID:    f.msgID(),
			EmittedAt:    now,
		},
	}
	f.notify(ctx, change, pubsub.KindUserEnterGroup, acceptedUIDs)
	return change, nil
}
