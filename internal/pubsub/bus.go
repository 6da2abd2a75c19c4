// Package pubsub implements PubSubBus (spec §2, §4.5, §6): a fire-and-forget
// notification channel to online members, plus the online-members
// membership-presence view CandidateSelector reads from. The backend
// interface and mock/real dual implementation mirror the teacher's
// internal/waku/node.go Node + goWakuBackend pattern, generalized from 1:1
// PrivateMessage delivery to named broadcast channels.
package pubsub

import (
	"context"
	"time"

	"glkdc.dev/glkdcd/internal/domains/group/candidate"
)

// Message is one published or received pub/sub message.
type Message struct {
	Channel   string
	Payload   []byte
	Timestamp time.Time
}

// PublishResult is the typed, non-error-returning publish outcome spec §9
// REDESIGN FLAGS calls for: "promote to a typed channel send that returns a
// Sent(subscribers:int) or Failed(err)".
type PublishResult struct {
	subscribers int
	err         error
}

func Sent(subscribers int) PublishResult  { return PublishResult{subscribers: subscribers} }
func Failed(err error) PublishResult      { return PublishResult{err: err} }
func (r PublishResult) OK() bool          { return r.err == nil }
func (r PublishResult) Subscribers() int  { return r.subscribers }
func (r PublishResult) Err() error        { return r.err }

// Bus is the transport-neutral contract every component above it (FSM,
// KeyEpochCoordinator, controller) programs against. PubSubBus never
// returns an error to its callers for a failed send — failures are
// reported in the PublishResult and retried by the caller (coordinator),
// per spec §9's "retries live in the coordinator, not in the transport".
type Bus interface {
	Start(ctx context.Context) error
	Stop()

	Publish(ctx context.Context, channel string, payload []byte) PublishResult
	Subscribe(channel string, handler func(Message)) (unsubscribe func(), err error)

	// OnlineMasters reports the currently-online master-device members of
	// gid, the membership view CandidateSelector.Select consumes.
	OnlineMasters(gid uint64) []candidate.Address

	// MarkOnline/MarkOffline let the server's own presence tracker (fed by
	// per-connection heartbeats, out of GLKDC's scope) update the view this
	// bus exposes to CandidateSelector.
	MarkOnline(gid uint64, addr candidate.Address)
	MarkOffline(gid uint64, uid, deviceID string)
}
