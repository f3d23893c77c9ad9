package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/eduxp/utils"
)

// DefaultChannel is the Redis Pub/Sub channel shared by every instance.
const DefaultChannel = "eduxp:discussions"

// Broker relays events through Redis so subscribers on other instances see
// them too. Without a Redis client it behaves like the local hub.
type Broker struct {
	hub     *Hub
	rdb     *redis.Client
	channel string

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewBroker wraps hub. rdb may be nil.
func NewBroker(hub *Hub, rdb *redis.Client, channel string) *Broker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broker{hub: hub, rdb: rdb, channel: channel}
}

// Hub returns the local hub.
func (b *Broker) Hub() *Hub { return b.hub }

// Publish sends e through Redis; the relay loop delivers it locally. When Redis
// is missing or the publish fails the event goes straight to the local hub.
func (b *Broker) Publish(ctx context.Context, e Event) {
	if b.rdb == nil {
		b.hub.Deliver(e)
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		utils.Sugar.Errorw("encode realtime event", "err", err)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(pctx, b.channel, payload).Err(); err != nil {
		utils.Sugar.Warnw("redis publish failed, delivering locally", "err", err)
		b.hub.Deliver(e)
	}
}

// Start subscribes to the channel and relays messages into the hub until Stop.
func (b *Broker) Start() error {
	if b.rdb == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := b.rdb.Subscribe(ctx, b.channel)
	// wait for the subscription so early publishes are not missed
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return err
	}
	b.cancel = cancel
	b.done = make(chan struct{})
	go b.relay(ctx, sub)
	utils.Sugar.Infow("realtime relay subscribed", "channel", b.channel)
	return nil
}

func (b *Broker) relay(ctx context.Context, sub *redis.PubSub) {
	defer close(b.done)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				utils.Sugar.Warnw("malformed realtime event", "payload", msg.Payload, "err", err)
				continue
			}
			b.hub.Deliver(e)
		}
	}
}

// Stop ends the relay and closes every local subscriber.
func (b *Broker) Stop() {
	b.once.Do(func() {
		if b.cancel != nil {
			b.cancel()
			<-b.done
		}
		b.hub.Close()
	})
}
