package controller

import (
	"context"

	"glkdc.dev/glkdcd/internal/apierr"
	"glkdc.dev/glkdcd/internal/domains/group/keyepoch"
)

// GroupKeys wraps POST /v3/group/group_keys: fetch specific key-record
// versions by (gid, versions), projected for the caller.
func (c *Controller) GroupKeys(ctx context.Context, in keyepoch.FetchByVersionsInput) ([]keyepoch.FetchedKey, error) {
	if c.KeyEpoch == nil {
		return nil, apierr.Internal("INTERNAL", "key epoch coordinator not wired")
	}
	return c.KeyEpoch.FetchByVersions(in)
}

// LatestGroupKeys wraps POST /v3/group/latest_group_keys: fetch the latest
// key record for a batch of groups, projected for the caller.
func (c *Controller) LatestGroupKeys(ctx context.Context, in keyepoch.FetchLatestInput) []keyepoch.FetchedKey {
	if c.KeyEpoch == nil {
		return nil
	}
	return c.KeyEpoch.FetchLatest(in)
}

// FireGroupKeysUpdate wraps POST /v3/group/fire_group_keys_update: an
// on-demand rotation check outside a membership transition, gated by the
// DhKeys limiter inside Coordinator.Fire.
func (c *Controller) FireGroupKeysUpdate(ctx context.Context, in keyepoch.FireInput) ([]keyepoch.FireResult, error) {
	if c.KeyEpoch == nil {
		return nil, apierr.Internal("INTERNAL", "key epoch coordinator not wired")
	}
	return c.KeyEpoch.Fire(ctx, in)
}

// PrepareGroupKeysUpdate wraps POST /v3/group/prepare_key_update: quorum
// check plus cached-bundle prefetch for a pending key upload.
func (c *Controller) PrepareGroupKeysUpdate(ctx context.Context, in keyepoch.PrepareInput) (keyepoch.PrepareResult, error) {
	if c.KeyEpoch == nil {
		return keyepoch.PrepareResult{}, apierr.Internal("INTERNAL", "key epoch coordinator not wired")
	}
	return c.KeyEpoch.Prepare(ctx, in)
}

// UpdateGroupKeys wraps PUT /v3/group/group_keys_update: CAS-insert the new
// key record and publish GROUP_SWITCH_KEYS to the group.
func (c *Controller) UpdateGroupKeys(ctx context.Context, in keyepoch.UploadInput) error {
	if c.KeyEpoch == nil {
		return apierr.Internal("INTERNAL", "key epoch coordinator not wired")
	}
	err := c.KeyEpoch.Upload(ctx, in)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Metrics.ObserveRotation(in.Mode.String(), outcome)
	return err
}
