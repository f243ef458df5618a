// Package notify carries store change notifications and slot claims over
// redis, so several API instances share one view of the store.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/BruksfildServices01/barber-booking/internal/store"
)

const (
	channelPrefix = "docs:"

	DefaultPingInterval = 5 * time.Second
	// DefaultMaxMissedPings consecutive ping failures end the feed.
	DefaultMaxMissedPings = 3
)

func Channel(location string) string {
	return channelPrefix + location
}

// RedisFeed is a store.ChangeFeed over redis PUBLISH/SUBSCRIBE.
//
// go-redis resubscribes on its own after a dropped connection, and
// anything published meanwhile is lost. A resubscription is therefore
// forwarded as a change so listeners reload. When the connection stays
// down the listener channel is closed and store.Watch ends with
// store.ErrFeedClosed.
type RedisFeed struct {
	rdb *redis.Client
	log *slog.Logger

	pingInterval   time.Duration
	maxMissedPings int
}

func NewRedisFeed(rdb *redis.Client, logger *slog.Logger) *RedisFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFeed{
		rdb:            rdb,
		log:            logger,
		pingInterval:   DefaultPingInterval,
		maxMissedPings: DefaultMaxMissedPings,
	}
}

func (f *RedisFeed) Publish(ctx context.Context, location string) error {
	if err := f.rdb.Publish(ctx, Channel(location), "changed").Err(); err != nil {
		return store.Transient("publish", err)
	}
	return nil
}

func (f *RedisFeed) Listen(ctx context.Context, location string) (<-chan struct{}, func(), error) {
	ps := f.rdb.Subscribe(ctx, Channel(location))

	// wait for the subscription to be acknowledged so no publish is missed
	// between Listen returning and the first reload
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, store.Transient("subscribe", err)
	}

	out := make(chan struct{}, 1)
	msgs := ps.ChannelWithSubscriptions(ctx, 16)
	ping := func(ctx context.Context) error { return ps.Ping(ctx) }

	go f.forward(ctx, location, msgs, ping, out)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				f.log.Warn("redis unsubscribe failed", "location", location, "error", err)
			}
		})
	}
	return out, stop, nil
}

// forward turns pub/sub traffic into coalesced change signals on out and
// closes out when ctx ends, msgs closes, or pings keep failing.
func (f *RedisFeed) forward(
	ctx context.Context,
	location string,
	msgs <-chan interface{},
	ping func(ctx context.Context) error,
	out chan<- struct{},
) {
	defer close(out)

	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				return
			}
			switch m := msg.(type) {
			case *redis.Message:
				signal(out)
			case *redis.Subscription:
				if m.Kind == "subscribe" {
					f.log.Info("redis feed resubscribed", "location", location)
					signal(out)
				}
			}

		case <-ticker.C:
			if err := ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				missed++
				f.log.Warn("redis feed ping failed",
					"location", location, "missed", missed, "error", err)
				if missed >= f.maxMissedPings {
					f.log.Error("redis feed lost", "location", location)
					return
				}
				continue
			}
			missed = 0
		}
	}
}

func signal(out chan<- struct{}) {
	select {
	case out <- struct{}{}:
	default:
	}
}

var _ store.ChangeFeed = (*RedisFeed)(nil)
