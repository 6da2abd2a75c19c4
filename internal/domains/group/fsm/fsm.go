// Package fsm implements MembershipFSM (spec §4.6): the join/invite/
// review/kick/leave transition table over the None/Pending/QrCodePending/
// Member(role) states, with signature validation, contact-mutuality
// checks, and rate-limit acquisition folded into each transition. Grounded
// on internal/domains/group/usecase/membership_service.go's field-injected
// service-struct shape (CreateGroup/InviteToGroup/LeaveGroup/
// AcceptGroupInvite/RemoveGroupMember/ChangeGroupMemberRole), generalized
// from the teacher's single-device owner/member model to the spec's four
// membership states.
package fsm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// AccountDirectory resolves a uid's current signing public key. Account
// storage and authentication are out of scope per spec §1; this is the
// named external-collaborator interface the FSM programs against instead.
type AccountDirectory interface {
	PublicKey(ctx context.Context, uid string) ([]byte, error)
}

// MutualityChecker answers whether two uids are mutual contacts. Contact
// bloom filters are out of scope per spec §1; spec §4.6 requires the check
// but never defines the filter itself.
type MutualityChecker interface {
	IsMutualContact(ctx context.Context, a, b string) (bool, error)
}

// FSM binds MembershipStore, the rate limiter registry, the pub/sub bus,
// and the two out-of-scope collaborators above into the transition table.
// It owns no state of its own beyond the injected clock/id generator.
type FSM struct {
	Store      *membership.Store
	KeyStore   *keystore.Store
	Limiters   *ratelimiter.LimiterRegistry
	Bus        pubsub.Bus
	Accounts   AccountDirectory
	Mutuality  MutualityChecker
	Privileged map[string]struct{}
	Log        *slog.Logger

	Now      func() time.Time
	NewMsgID func() string
}

func (f *FSM) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().UTC()
}

func (f *FSM) msgID() string {
	if f.NewMsgID != nil {
		return f.NewMsgID()
	}
	return ""
}

func (f *FSM) isPrivileged(uid string) bool {
	if f.Privileged == nil {
		return false
	}
	_, ok := f.Privileged[uid]
	return ok
}

// Keys returns the injected KeyVersionStore, used by CreateGroup to seed
// version 0. It returns nil when no store is injected, and CreateGroup then
// skips the version-0 seed.
func (f *FSM) Keys() *keystore.Store { return f.KeyStore }

// checkMutuality consults the injected bloom-filter collaborator and treats
// every pair as mutual when none is injected. Every invitee is checked the
// same way; no invitee is exempted by role.
func (f *FSM) checkMutuality(ctx context.Context, a, b string) (bool, error) {
	if f.Mutuality == nil {
		return true, nil
	}
	return f.Mutuality.IsMutualContact(ctx, a, b)
}

// notify publishes the change's system message to the group channel and a
// per-recipient kind notification to each of recipients' user channels, per
// spec §4.6 (a)-(b). Publish failures are logged and swallowed — PubSubBus
// never fails the caller (spec §9's typed Sent/Failed result is consulted
// here, not propagated).
func (f *FSM) notify(ctx context.Context, change model.MembershipChange, kind pubsub.Kind, recipients []string) {
	if f.Bus == nil {
		return
	}
	if payload, err := json.Marshal(change.SystemMessage); err == nil {
		if res := f.Bus.Publish(ctx, pubsub.GroupEventChannel, payload); !res.OK() && f.Log != nil {
			f.Log.Warn("fsm: system message publish failed", "gid", change.GID, "err", res.Err())
		}
	}
	for _, uid := range recipients {
		envelope := userNotification{Kind: kind, GID: change.GID, Actor: change.Actor}
		payload, err := json.Marshal(envelope)
		if err != nil {
			continue
		}
		if res := f.Bus.Publish(ctx, pubsub.UserChannel(uid), payload); !res.OK() && f.Log != nil {
			f.Log.Warn("fsm: user notification publish failed", "uid", uid, "err", res.Err())
		}
	}
}

type userNotification struct {
	Kind  pubsub.Kind `json:"kind"`
	GID   uint64      `json:"gid"`
	Actor string      `json:"actor"`
}

// subjectUID/subjectUIDGID/subjectGIDUID build the RateLimiter subject keys
// named in spec §4.4.
func subjectUID(uid string) string { return uid }

func subjectUIDGID(uid string, gid uint64) string {
	return uid + "_" + formatGID(gid)
}

func subjectGIDUID(gid uint64, uid string) string {
	return formatGID(gid) + "_" + uid
}

func formatGID(gid uint64) string {
	return strconv.FormatUint(gid, 10)
}

// wrapStoreErr maps a sentinel store error to the logical kind the spec §7
// error-policy table assigns it. Operation-specific callers still override
// where the policy differs (e.g. NOT_FOUND collapsed to FORBIDDEN to avoid
// disclosure).
func wrapStoreErr(err error) *apierr.Error {
	switch err {
	case nil:
		return nil
	case membership.ErrNotFound:
		return apierr.Existence("NOT_FOUND", err.Error())
	case membership.ErrAlreadyExists:
		return apierr.Conflict("ALREADY_EXISTS", err.Error())
	default:
		return apierr.Internal("INTERNAL", err.Error())
	}
}
