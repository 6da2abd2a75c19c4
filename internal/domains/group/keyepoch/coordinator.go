package keyepoch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/candidate"
	"glkdc.dev/glkdcd/internal/domains/group/ids"
	"glkdc.dev/glkdcd/internal/domains/group/keycache"
	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// Coordinator binds MembershipStore, KeyVersionStore, KeyCache,
// CandidateSelector, PubSubBus, and the rate limiter registry into
// KeyEpochCoordinator's operations. Field-injected, no embedding — same
// shape as fsm.FSM.
type Coordinator struct {
	Members  *membership.Store
	Keys     *keystore.Store
	Cache    *keycache.Cache
	Selector *candidate.Selector
	Bus      pubsub.Bus
	Limiters *ratelimiter.LimiterRegistry
	Policy   Policy
	Faults   FaultInjector
	Log      *slog.Logger

	Now      func() time.Time
	NewMsgID func() string
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Coordinator) msgID() string {
	if c.NewMsgID != nil {
		return c.NewMsgID()
	}
	return ids.MessageID()
}

func (c *Coordinator) faults() FaultInjector {
	if c.Faults != nil {
		return c.Faults
	}
	return NoFaults{}
}

// keyUpdateRequest is the GROUP_UPDATE_KEYS_REQUEST system message body
// published to the group channel (spec §4.7, first paragraph).
type keyUpdateRequest struct {
	Kind        model.SystemMessageKind `json:"kind"`
	GID         uint64                  `json:"gid"`
	Mode        model.KeyMode           `json:"mode"`
	NextVersion uint64                  `json:"nextVersion"`
	RequestID   string                  `json:"requestId"`
	EmittedAt   time.Time               `json:"emittedAt"`
}

// requestRotate publishes GROUP_UPDATE_KEYS_REQUEST for gid/mode and, for
// ONE_FOR_EACH, pre-fills KeyCache with the full key bundle under
// (gid, nextVersion), the key prepare reads, so the quorum can fetch it in
// one hop during prepare (spec §4.7, second paragraph).
func (c *Coordinator) requestRotate(ctx context.Context, uid string, gid uint64, nextVersion uint64, mode model.KeyMode, bundle []keycache.KeyBundle) error {
	if err := c.faults().BeforeRequest(ctx, gid); err != nil {
		return err
	}
	msgID := c.msgID()
	req := keyUpdateRequest{
		Kind:        model.MsgGroupUpdateKeysReq,
		GID:         gid,
		Mode:        mode,
		NextVersion: nextVersion,
		RequestID:   msgID,
		EmittedAt:   c.now(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if c.Bus != nil {
		if res := c.Bus.Publish(ctx, pubsub.GroupEventChannel, payload); !res.OK() && c.Log != nil {
			c.Log.Warn("keyepoch: rotation request publish failed", "gid", gid, "err", res.Err())
		}
	}
	if mode == model.KeyModeOneForEach && c.Cache != nil && len(bundle) > 0 {
		c.Cache.Set(gid, nextVersion, bundle)
	}
	return nil
}

// RequestRotateIfDue evaluates the policy table for gid's current member
// count and previous key mode, and requests a rotation when due. This is
// the deferred step the MembershipFSM's (c) hand-off (spec §4.6) calls into
// after a membership-changing transition, and what fire (below) also calls
// for an on-demand re-evaluation.
func (c *Coordinator) RequestRotateIfDue(ctx context.Context, uid string, gid uint64, memberCount int) (Decision, error) {
	previous, _ := c.Keys.GetLatestMode(gid)
	decision := c.Policy.Decide(memberCount, previous)
	if !decision.Rotate {
		return decision, nil
	}
	latest, found := c.Keys.GetLatest(gid)
	nextVersion := uint64(0)
	if found {
		nextVersion = latest.Version + 1
	}
	var bundle []keycache.KeyBundle
	if decision.Mode == model.KeyModeOneForEach {
		bundle = c.loadBundleForCache(gid)
	}
	if err := c.requestRotate(ctx, uid, gid, nextVersion, decision.Mode, bundle); err != nil {
		return decision, apierr.Internal("INTERNAL", err.Error())
	}
	return decision, nil
}

// loadBundleForCache is a placeholder projection point: a real deployment
// assembles the ONE_FOR_EACH bundle from each member's current device keys
// (an AccountDirectory concern, out of scope per spec §1); here it returns
// nil so requestRotate simply skips the cache pre-fill, which KeyCache's
// contract allows (misses never fail the caller).
func (c *Coordinator) loadBundleForCache(gid uint64) []keycache.KeyBundle {
	return nil
}

// FireInput carries the fire endpoint's fields (spec §4.7's "fire"
// paragraph): a member asking the server to re-evaluate rotation for one or
// more groups without a membership change having occurred.
type FireInput struct {
	Actor string
	GIDs  []uint64
}

// FireResult reports, per gid, whether a rotation was requested and in
// which mode.
type FireResult struct {
	GID      uint64
	Decision Decision
}

// Fire implements spec §4.7's fire entry point: consults the DhKeys limiter
// (fire shares DhKeys' "depends on GroupCreation" quota per spec §4.4's
// grouping of ad-hoc key operations under that limiter) then re-evaluates
// the rotation policy for each named group the actor is a member of.
func (c *Coordinator) Fire(ctx context.Context, in FireInput) ([]FireResult, error) {
	if c.Limiters != nil {
		dh := c.Limiters.DhKeysLimiter()
		if !dh.Allow(in.Actor, c.now()) {
			return nil, apierr.Throttle("LIMITER_REJECTED", "key-refresh rate limit exceeded")
		}
	}
	results := make([]FireResult, 0, len(in.GIDs))
	for _, gid := range in.GIDs {
		if _, err := c.Members.GetMember(gid, in.Actor); err != nil {
			continue // not a member: silently skipped, not an error for the batch
		}
		counts, err := c.Members.CountMembers(gid)
		if err != nil {
			continue
		}
		decision, err := c.RequestRotateIfDue(ctx, in.Actor, gid, counts.MemberCount)
		if err != nil {
			return results, err
		}
		results = append(results, FireResult{GID: gid, Decision: decision})
	}
	return results, nil
}
