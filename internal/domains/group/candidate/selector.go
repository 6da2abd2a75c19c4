// Package candidate implements CandidateSelector (spec §4.5): a
// deterministic subset of a group's online master-device members, used to
// pick the quorum that performs a key rotation.
package candidate

import "math/rand"

// Address identifies one online master-device member; Online is the
// membership-presence view the PubSubBus maintains (see internal/pubsub).
type Address struct {
	UID      string
	DeviceID string
	Master   bool
}

// Selector is stateless; Select is a pure function of its inputs so two
// callers with the same seed and the same online set pick identical
// quorums, per spec §4.5's determinism requirement.
type Selector struct{}

func New() *Selector { return &Selector{} }

// Select returns up to count distinct master-device addresses from online.
// If |online masters| <= count, all of them are returned. Otherwise a PRNG
// seeded with `seed` picks a uniform starting index and walks forward
// (wrapping), taking only master-device entries, until count are chosen.
func (Selector) Select(online []Address, seed int64, count int) []Address {
	masters := make([]Address, 0, len(online))
	for _, a := range online {
		if a.Master {
			masters = append(masters, a)
		}
	}
	if count <= 0 || len(masters) == 0 {
		return nil
	}
	if len(masters) <= count {
		out := make([]Address, len(masters))
		copy(out, masters)
		return out
	}

	rng := rand.New(rand.NewSource(seed))
	start := rng.Intn(len(masters))

	out := make([]Address, 0, count)
	for i := 0; i < len(masters) && len(out) < count; i++ {
		out = append(out, masters[(start+i)%len(masters)])
	}
	return out
}
