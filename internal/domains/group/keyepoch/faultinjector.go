package keyepoch

import "context"

// FaultInjector replaces the source's conditional-compilation fault-
// injection hooks (random delays/failures compiled in around key-update and
// switch) with a first-class, constructor-injected strategy (spec §9 DESIGN
// NOTES). The zero value injects nothing; a Coordinator built with a custom
// FaultInjector gets deterministic failures before the upload, each
// switch-publish attempt, and the rotation request. There is no build tag:
// production wiring simply leaves the field nil.
type FaultInjector interface {
	// BeforeUpload runs immediately before the CAS insert in upload.
	BeforeUpload(ctx context.Context, gid, version uint64) error
	// BeforeSwitch runs immediately before each GROUP_SWITCH_KEYS publish
	// attempt; attempt is 1-based.
	BeforeSwitch(ctx context.Context, gid, version uint64, attempt int) error
	// BeforeRequest runs immediately before requestRotate publishes
	// GROUP_UPDATE_KEYS_REQUEST.
	BeforeRequest(ctx context.Context, gid uint64) error
}

// NoFaults is the default, no-op FaultInjector.
type NoFaults struct{}

func (NoFaults) BeforeUpload(context.Context, uint64, uint64) error         { return nil }
func (NoFaults) BeforeSwitch(context.Context, uint64, uint64, int) error    { return nil }
func (NoFaults) BeforeRequest(context.Context, uint64) error                { return nil }
