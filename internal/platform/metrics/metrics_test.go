package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveTransitionIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveTransition("CREATE_GROUP", "ok")
	r.ObserveTransition("CREATE_GROUP", "ok")
	r.ObserveTransition("CREATE_GROUP", "CONFLICT")

	require.Equal(t, float64(2), testutil.ToFloat64(r.MembershipTransitions.WithLabelValues("CREATE_GROUP", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.MembershipTransitions.WithLabelValues("CREATE_GROUP", "CONFLICT")))
}

func TestObserveRotationAndLimiterRejectionAreNilSafe(t *testing.T) {
	var r *Registry
	r.ObserveRotation("ALL_THE_SAME", "ok")
	r.ObserveLimiterRejection("DhKeys")
	r.ObserveTransition("KICK", "ok")
}

func TestObserveLimiterRejectionIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveLimiterRejection("GroupCreation")
	require.Equal(t, float64(1), testutil.ToFloat64(r.LimiterRejections.WithLabelValues("GroupCreation")))
}
