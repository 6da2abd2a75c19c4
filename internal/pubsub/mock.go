package pubsub

import (
	"context"
	"sync"
	"time"

	"glkdc.dev/glkdcd/internal/domains/group/candidate"
)

// MockBus is an in-process pub/sub backend, grounded in the teacher's
// internal/waku/message_bus.go (subscriber map + per-channel delivery)
// generalized from 1:1 PrivateMessage mailboxes to many-subscriber named
// channels. It is the default backend; the real_waku build tag swaps in
// RealBus instead (see gowaku.go).
type MockBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[int]func(Message)
	nextSubID   int
	online      map[uint64]map[string]candidate.Address // gid -> "uid/deviceID" -> addr
}

func NewMock() *MockBus {
	return &MockBus{
		subscribers: make(map[string]map[int]func(Message)),
		online:      make(map[uint64]map[string]candidate.Address),
	}
}

func (b *MockBus) Start(ctx context.Context) error { return nil }
func (b *MockBus) Stop()                           {}

func (b *MockBus) Publish(ctx context.Context, channel string, payload []byte) PublishResult {
	b.mu.RLock()
	handlers := make([]func(Message), 0, len(b.subscribers[channel]))
	for _, h := range b.subscribers[channel] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	msg := Message{Channel: channel, Payload: payload, Timestamp: time.Now().UTC()}
	for _, h := range handlers {
		h(msg)
	}
	return Sent(len(handlers))
}

func (b *MockBus) Subscribe(channel string, handler func(Message)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[int]func(Message))
	}
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[channel][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[channel], id)
	}, nil
}

func presenceKey(uid, deviceID string) string { return uid + "/" + deviceID }

func (b *MockBus) MarkOnline(gid uint64, addr candidate.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.online[gid] == nil {
		b.online[gid] = make(map[string]candidate.Address)
	}
	b.online[gid][presenceKey(addr.UID, addr.DeviceID)] = addr
}

func (b *MockBus) MarkOffline(gid uint64, uid, deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.online[gid], presenceKey(uid, deviceID))
}

func (b *MockBus) OnlineMasters(gid uint64) []candidate.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]candidate.Address, 0, len(b.online[gid]))
	for _, a := range b.online[gid] {
		out = append(out, a)
	}
	return out
}

var _ Bus = (*MockBus)(nil)
