//go:build real_waku

package pubsub

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	wakuNode "github.com/waku-org/go-waku/waku/v2/node"
	"github.com/waku-org/go-waku/waku/v2/protocol"
	wpb "github.com/waku-org/go-waku/waku/v2/protocol/pb"
	"github.com/waku-org/go-waku/waku/v2/protocol/relay"

	"glkdc.dev/glkdcd/internal/domains/group/candidate"
)

// pubsubTopic is shared across every GLKDC channel; channel names become
// go-waku content topics, the same split the teacher's gowaku_enabled.go
// uses for its single private-message content topic, generalized to many
// named broadcast channels instead of one.
const glkdcPubsubTopic = "/waku/2/glkdc/proto"

func contentTopic(channel string) string {
	return "/glkdc/1/" + channel + "/proto"
}

// RealBus wires GLKDC's Bus interface onto a live go-waku relay node. It
// mirrors the teacher's goWakuNode: same WakuNodeOption construction, same
// Relay().Subscribe/Publish calls, narrowed to relay-only (no store/filter)
// since GLKDC only needs live fan-out, never history replay.
type RealBus struct {
	mu   sync.RWMutex
	node *wakuNode.WakuNode
	cfg  Config

	subMu       sync.Mutex
	subscribers map[string]map[int]func(Message)
	nextSubID   int

	onlineMu sync.RWMutex
	online   map[uint64]map[string]candidate.Address
}

func newRealBus(cfg Config) Bus {
	return &RealBus{
		cfg:         cfg,
		subscribers: make(map[string]map[int]func(Message)),
		online:      make(map[uint64]map[string]candidate.Address),
	}
}

func (b *RealBus) Start(ctx context.Context) error {
	hostAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(b.cfg.Port)))
	if err != nil {
		return err
	}
	opts := []wakuNode.WakuNodeOption{wakuNode.WithHostAddress(hostAddr)}
	if b.cfg.EnableRelay {
		opts = append(opts, wakuNode.WithWakuRelay())
	}
	node, err := wakuNode.New(opts...)
	if err != nil {
		return err
	}
	if err := node.Start(ctx); err != nil {
		return err
	}
	for _, addr := range b.cfg.BootstrapNodes {
		_ = node.DialPeer(ctx, addr)
	}

	b.mu.Lock()
	b.node = node
	b.mu.Unlock()
	return nil
}

func (b *RealBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.node != nil {
		b.node.Stop()
		b.node = nil
	}
}

func (b *RealBus) Publish(ctx context.Context, channel string, payload []byte) PublishResult {
	b.mu.RLock()
	node := b.node
	b.mu.RUnlock()
	if node == nil {
		return Failed(errors.New("pubsub: go-waku node not started"))
	}

	ts := time.Now().UnixNano()
	wm := &wpb.WakuMessage{
		Payload:      payload,
		ContentTopic: contentTopic(channel),
		Timestamp:    &ts,
	}
	if _, err := node.Relay().Publish(ctx, wm, relay.WithPubSubTopic(glkdcPubsubTopic)); err != nil {
		return Failed(err)
	}

	b.subMu.Lock()
	n := len(b.subscribers[channel])
	b.subMu.Unlock()
	return Sent(n)
}

func (b *RealBus) Subscribe(channel string, handler func(Message)) (func(), error) {
	b.mu.RLock()
	node := b.node
	b.mu.RUnlock()
	if node == nil {
		return nil, errors.New("pubsub: go-waku node not started")
	}

	filter := protocol.NewContentFilter(glkdcPubsubTopic, contentTopic(channel))
	subs, err := node.Relay().Subscribe(context.Background(), filter)
	if err != nil {
		return nil, err
	}

	b.subMu.Lock()
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[int]func(Message))
	}
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[channel][id] = handler
	b.subMu.Unlock()

	for _, sub := range subs {
		go func(subscription *relay.Subscription) {
			for env := range subscription.Ch {
				if env == nil || env.Message() == nil {
					continue
				}
				handler(Message{
					Channel:   channel,
					Payload:   env.Message().Payload,
					Timestamp: time.Now().UTC(),
				})
			}
		}(sub)
	}

	return func() {
		b.subMu.Lock()
		defer b.subMu.Unlock()
		delete(b.subscribers[channel], id)
	}, nil
}

func (b *RealBus) MarkOnline(gid uint64, addr candidate.Address) {
	b.onlineMu.Lock()
	defer b.onlineMu.Unlock()
	if b.online[gid] == nil {
		b.online[gid] = make(map[string]candidate.Address)
	}
	b.online[gid][addr.UID+"/"+addr.DeviceID] = addr
}

func (b *RealBus) MarkOffline(gid uint64, uid, deviceID string) {
	b.onlineMu.Lock()
	defer b.onlineMu.Unlock()
	delete(b.online[gid], uid+"/"+deviceID)
}

func (b *RealBus) OnlineMasters(gid uint64) []candidate.Address {
	b.onlineMu.RLock()
	defer b.onlineMu.RUnlock()
	out := make([]candidate.Address, 0, len(b.online[gid]))
	for _, a := range b.online[gid] {
		out = append(out, a)
	}
	return out
}

var _ Bus = (*RealBus)(nil)
