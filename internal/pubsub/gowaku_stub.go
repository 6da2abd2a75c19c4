//go:build !real_waku

package pubsub

import "log/slog"

// newRealBus is a no-op without the real_waku build tag; New() falls back
// to the mock backend. Mirrors the teacher's pattern of a always-compiled
// mock plus a tag-gated real backend (internal/waku/node.go vs
// gowaku_enabled.go).
func newRealBus(cfg Config) Bus {
	slog.Warn("pubsub: go-waku transport requested but binary built without the real_waku tag; falling back to mock bus")
	return nil
}
