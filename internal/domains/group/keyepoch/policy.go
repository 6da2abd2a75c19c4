// Package keyepoch implements KeyEpochCoordinator (spec §4.7): the rotation
// policy table, the quorum prepare/upload protocol, and the fetch
// projections consumers call after a rotation completes. Grounded on the
// teacher's internal/domains/group/usecase/membership_service.go
// applyMembershipChangeWithKeyRotation (rotation fired alongside a
// membership change) and internal/domains/group/model/event.go's
// GroupEventTypeKeyRotate handling, generalized from "always bump by one"
// into the spec's bucketed memberCount × previousMode table.
package keyepoch

import "glkdc.dev/glkdcd/internal/domains/group/model"

// Policy carries the three thresholds named in spec §4.7 plus the quorum
// size, all hot-configurable from internal/config (spec §9's resolution of
// the source's hard-coded rotation constants).
type Policy struct {
	PowerMin                int
	PowerMax                int
	NormalGroupRefreshMax   int
	KeySwitchCandidateCount int
}

// DefaultPolicy holds the production defaults (powerMin=50, powerMax=200,
// refreshMax=500, five candidates). They differ from the thresholds spec §8
// scenario 4 exercises (powerMin=200, powerMax=220, refreshMax=240);
// operators override every field via config.
func DefaultPolicy() Policy {
	return Policy{
		PowerMin:                50,
		PowerMax:                200,
		NormalGroupRefreshMax:   500,
		KeySwitchCandidateCount: 5,
	}
}

// Decision is what the policy table decides for a given (memberCount,
// previousMode) pair: whether to rotate at all, and if so, which mode.
type Decision struct {
	Rotate bool
	Mode   model.KeyMode
}

// Decide implements spec §4.7's table verbatim:
//
//	memberCount <= P                          -> rotate, ONE_FOR_EACH
//	P < memberCount <= Q, prev ONE_FOR_EACH/UNKNOWN -> rotate, ONE_FOR_EACH
//	P < memberCount <= Q, prev ALL_THE_SAME   -> rotate, ALL_THE_SAME
//	Q < memberCount <= R                      -> rotate, ALL_THE_SAME
//	memberCount > R, prev ALL_THE_SAME        -> no rotation
//	memberCount > R, prev ONE_FOR_EACH/UNKNOWN -> rotate, ALL_THE_SAME
func (p Policy) Decide(memberCount int, previousMode model.KeyMode) Decision {
	switch {
	case memberCount <= p.PowerMin:
		return Decision{Rotate: true, Mode: model.KeyModeOneForEach}
	case memberCount <= p.PowerMax:
		if previousMode == model.KeyModeAllTheSame {
			return Decision{Rotate: true, Mode: model.KeyModeAllTheSame}
		}
		return Decision{Rotate: true, Mode: model.KeyModeOneForEach}
	case memberCount <= p.NormalGroupRefreshMax:
		return Decision{Rotate: true, Mode: model.KeyModeAllTheSame}
	default:
		if previousMode == model.KeyModeAllTheSame {
			return Decision{Rotate: false}
		}
		return Decision{Rotate: true, Mode: model.KeyModeAllTheSame}
	}
}
