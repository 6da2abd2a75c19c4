package keyepoch

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/keycache"
	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/model"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
)

// uploadRetries/uploadRetryStep implement spec §4.7's "up to three retries
// spaced 200ms x attempt" for the post-CAS GROUP_SWITCH_KEYS publish: one
// first attempt plus up to uploadRetries more.
const (
	uploadRetries   = 3
	uploadRetryStep = 200 * time.Millisecond
)

// PrepareInput carries prepare(gid, nextVersion, mode)'s fields; Caller is
// the candidate uid proposing to drive the rotation.
type PrepareInput struct {
	GID         uint64
	Caller      string
	NextVersion uint64
	Mode        model.KeyMode
}

// PrepareResult reports whether the caller is part of the quorum and, for
// ONE_FOR_EACH, the key bundles the caller needs to compute the new epoch.
type PrepareResult struct {
	InQuorum bool
	Bundles  []keycache.KeyBundle
}

// Prepare implements spec §4.7 step 1. KeyCache is only ever read here, not
// written — the write happened earlier in requestRotate, when it was known
// which member would end up in the quorum was not yet decidable, so every
// caller consults the same cache entry (a miss simply yields an empty
// bundle list, per KeyCache's "misses never fail the caller" contract).
func (c *Coordinator) Prepare(ctx context.Context, in PrepareInput) (PrepareResult, error) {
	latest, err := c.Keys.GetLatestModeAndVersion(in.GID)
	if err != nil {
		return PrepareResult{}, apierr.Internal("INTERNAL", err.Error())
	}
	if latest.Found && in.NextVersion <= latest.Version {
		return PrepareResult{}, apierr.Conflict("CONFLICT", "a different client is ahead of this rotation")
	}

	quorum := c.quorumFor(in.GID, in.NextVersion)
	if !inQuorum(quorum, in.Caller) {
		return PrepareResult{InQuorum: false}, nil
	}

	if in.Mode != model.KeyModeOneForEach {
		return PrepareResult{InQuorum: true}, nil
	}

	bundles, found := c.fetchBundlesConcurrently(ctx, in.GID, in.NextVersion)
	if !found {
		bundles = nil
	}
	return PrepareResult{InQuorum: true, Bundles: bundles}, nil
}

func (c *Coordinator) quorumFor(gid uint64, seed uint64) []string {
	if c.Selector == nil || c.Bus == nil {
		return nil
	}
	online := c.Bus.OnlineMasters(gid)
	addrs := c.Selector.Select(online, int64(seed), c.candidateCount())
	uids := make([]string, len(addrs))
	for i, a := range addrs {
		uids[i] = a.UID
	}
	return uids
}

func (c *Coordinator) candidateCount() int {
	if c.Policy.KeySwitchCandidateCount > 0 {
		return c.Policy.KeySwitchCandidateCount
	}
	return DefaultPolicy().KeySwitchCandidateCount
}

func inQuorum(quorum []string, uid string) bool {
	for _, q := range quorum {
		if q == uid {
			return true
		}
	}
	return false
}

// fetchBundlesConcurrently looks the cache entry up and, on a miss, re-reads
// the same (gid, version) entry twice more, concurrently, through an
// errgroup before giving up. Grounded on spec §4.3's "performance hint"
// framing: a cache miss degrades to an empty bundle rather than blocking the
// quorum member.
func (c *Coordinator) fetchBundlesConcurrently(ctx context.Context, gid, version uint64) ([]keycache.KeyBundle, bool) {
	if c.Cache == nil {
		return nil, false
	}
	if bundles, found := c.Cache.Get(gid, version); found {
		return bundles, true
	}

	type attemptResult struct {
		bundles []keycache.KeyBundle
		found   bool
	}
	results := make([]attemptResult, 2)
	g, _ := errgroup.WithContext(ctx)
	for i := range results {
		i := i
		g.Go(func() error {
			bundles, found := c.Cache.Get(gid, version)
			results[i] = attemptResult{bundles: bundles, found: found}
			return nil
		})
	}
	_ = g.Wait()
	for _, r := range results {
		if r.found {
			return r.bundles, true
		}
	}
	return nil, false
}

// UploadInput carries upload(gid, version, mode, payload)'s fields.
type UploadInput struct {
	GID     uint64
	Caller  string
	Version uint64
	Mode    model.KeyMode
	Payload []byte
}

// Upload implements spec §4.7 step 3: validates caller membership and group
// version, CAS-inserts the new KeyRecord, and on success publishes
// GROUP_SWITCH_KEYS with up to three retries.
func (c *Coordinator) Upload(ctx context.Context, in UploadInput) error {
	if _, err := c.Members.GetMember(in.GID, in.Caller); err != nil {
		return apierr.Authorization("FORBIDDEN", "caller is not a member of this group")
	}
	g, err := c.Members.GetGroup(in.GID)
	if err != nil {
		return apierr.Existence("NOT_FOUND", "unknown group")
	}
	if g.Version != model.GroupVersionV3 {
		return apierr.Version("UPGRADE_REQUIRED", "key rotation requires a V3 group")
	}
	if !in.Mode.Valid() {
		return apierr.Validation("BAD_REQUEST", "mode must be ALL_THE_SAME or ONE_FOR_EACH")
	}
	if c.Limiters != nil {
		key := in.Caller + "_" + strconv.FormatUint(in.GID, 10)
		if !c.Limiters.Allow(ratelimiter.GroupKeysUpdate, key, c.now()) {
			return apierr.Throttle("LIMITER_REJECTED", "group keys update rate limit exceeded")
		}
	}

	if err := c.faults().BeforeUpload(ctx, in.GID, in.Version); err != nil {
		return apierr.Internal("INTERNAL", err.Error())
	}

	rec := model.KeyRecord{
		GID:        in.GID,
		Version:    in.Version,
		Mode:       in.Mode,
		Creator:    in.Caller,
		CreateTime: c.now(),
		Payload:    in.Payload,
	}
	if err := c.Keys.Insert(rec); err != nil {
		if err == keystore.ErrCASFail {
			return apierr.Conflict("CONFLICT", "a different client already wrote this version")
		}
		return apierr.Internal("INTERNAL", err.Error())
	}

	c.publishSwitchKeys(ctx, in.GID, in.Version)
	return nil
}

type switchKeysMessage struct {
	Kind      model.SystemMessageKind `json:"kind"`
	GID       uint64                  `json:"gid"`
	Version   uint64                  `json:"version"`
	EmittedAt time.Time               `json:"emittedAt"`
}

func (c *Coordinator) publishSwitchKeys(ctx context.Context, gid, version uint64) {
	if c.Bus == nil {
		return
	}
	payload, err := json.Marshal(switchKeysMessage{
		Kind: model.MsgGroupSwitchKeys, GID: gid, Version: version, EmittedAt: c.now(),
	})
	if err != nil {
		return
	}
	_ = retryLinear(ctx, uploadRetries+1, uploadRetryStep, func(attempt int) error {
		if err := c.faults().BeforeSwitch(ctx, gid, version, attempt); err != nil {
			return err
		}
		res := c.Bus.Publish(ctx, pubsub.GroupEventChannel, payload)
		if res.OK() {
			return nil
		}
		if c.Log != nil {
			c.Log.Warn("keyepoch: switch-keys publish attempt failed", "gid", gid, "version", version, "attempt", attempt, "err", res.Err())
		}
		return res.Err()
	})
}
