package controller

import (
	"context"
	"errors"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/fsm"
	"glkdc.dev/glkdcd/internal/domains/group/model"
)

// observeTransition records kind's outcome to the metrics registry if one
// is wired, mapping err to "ok" or the apierr code it carries — or a bare
// "error" when it isn't one of ours. Centralized here rather than in fsm
// itself, mirroring afterMembershipChange: the controller is the layer
// that already knows about every cross-cutting collaborator.
func (c *Controller) observeTransition(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) {
			outcome = apiErr.Code
		}
	}
	c.Metrics.ObserveTransition(kind, outcome)
}

// CreateGroup wraps PUT /v3/group/create: drives fsm.FSM.CreateGroup and,
// since a freshly created group's member count is never zero, always
// triggers the deferred KeyEpochCoordinator hand-off.
func (c *Controller) CreateGroup(ctx context.Context, in fsm.CreateGroupInput) (model.MembershipChange, error) {
	change, err := c.FSM.CreateGroup(ctx, in)
	c.observeTransition("CREATE_GROUP", err)
	if err != nil {
		return change, err
	}
	c.logChange(change)
	c.afterMembershipChange(ctx, change)
	return change, nil
}

// Invite wraps PUT /v3/group/invite.
func (c *Controller) Invite(ctx context.Context, in fsm.InviteInput) (model.MembershipChange, error) {
	change, err := c.FSM.Invite(ctx, in)
	c.observeTransition("INVITE", err)
	if err != nil {
		return change, err
	}
	c.logChange(change)
	c.afterMembershipChange(ctx, change)
	return change, nil
}

// JoinByQrCode wraps PUT /v3/group/join_group_by_code. Neither the
// ownerConfirm=1 nor the ownerConfirm=0 branch changes membership count
// (spec §4.6), so this never consults KeyEpochCoordinator directly — addMe
// or review does, once the join actually lands a member.
func (c *Controller) JoinByQrCode(ctx context.Context, in fsm.JoinByQrCodeInput) (fsm.JoinByQrCodeResult, error) {
	res, err := c.FSM.JoinByQrCode(ctx, in)
	c.observeTransition("JOIN_BY_QR_CODE", err)
	if err != nil {
		return res, err
	}
	c.logChange(res.Change)
	return res, nil
}

// AddMe wraps PUT /v3/group/add_me.
func (c *Controller) AddMe(ctx context.Context, in fsm.AddMeInput) (model.MembershipChange, error) {
	change, err := c.FSM.AddMe(ctx, in)
	c.observeTransition("ADD_ME", err)
	if err != nil {
		return change, err
	}
	c.logChange(change)
	c.afterMembershipChange(ctx, change)
	return change, nil
}

// ReviewJoinRequest wraps POST /v3/group/review_join_request.
func (c *Controller) ReviewJoinRequest(ctx context.Context, in fsm.ReviewInput) (model.MembershipChange, error) {
	change, err := c.FSM.Review(ctx, in)
	c.observeTransition("REVIEW_JOIN_REQUEST", err)
	if err != nil {
		return change, err
	}
	c.logChange(change)
	c.afterMembershipChange(ctx, change)
	return change, nil
}

// Kick wraps PUT /v3/group/kick.
func (c *Controller) Kick(ctx context.Context, in fsm.KickInput) (model.MembershipChange, error) {
	change, err := c.FSM.Kick(ctx, in)
	c.observeTransition("KICK", err)
	if err != nil {
		return change, err
	}
	c.logChange(change)
	c.afterMembershipChange(ctx, change)
	return change, nil
}

// Leave wraps PUT /v3/group/leave.
func (c *Controller) Leave(ctx context.Context, in fsm.LeaveInput) (model.MembershipChange, error) {
	change, err := c.FSM.Leave(ctx, in)
	c.observeTransition("LEAVE", err)
	if err != nil {
		return change, err
	}
	c.logChange(change)
	c.afterMembershipChange(ctx, change)
	return change, nil
}

// ChangeRole wraps the Member(role) -> Member(role') transition (spec
// §4.6, final bullet). The wire surface rides it along PUT
// /v3/group/update in the source protocol (spec §6), but it is exposed
// here as its own controller method since it is a distinct FSM
// transition with its own input shape.
func (c *Controller) ChangeRole(ctx context.Context, in fsm.ChangeRoleInput) (model.MembershipChange, error) {
	change, err := c.FSM.ChangeRole(ctx, in)
	c.observeTransition("CHANGE_ROLE", err)
	if err != nil {
		return change, err
	}
	c.logChange(change)
	return change, nil
}

// UpdateGroup wraps PUT /v3/group/update. A group-info update never changes
// membership count, so it never consults KeyEpochCoordinator — unless the
// qrCodeSetting rotation path is later extended to also force a rotation,
// which spec §4.6/§4.7 do not ask for.
func (c *Controller) UpdateGroup(ctx context.Context, in fsm.UpdateGroupInput) (model.MembershipChange, error) {
	change, err := c.FSM.UpdateGroup(ctx, in)
	c.observeTransition("UPDATE_GROUP", err)
	if err != nil {
		return change, err
	}
	c.logChange(change)
	return change, nil
}
