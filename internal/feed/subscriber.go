package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResyncFunc fetches the full current claim set for the show and
// replaces the consumer's mirror with it. It runs once per
// (re)connect, before any incremental event is delivered, because
// events missed during a gap are otherwise unrecoverable.
type ResyncFunc func(ctx context.Context) error

// HandleFunc consumes one incremental event. Events arrive in channel
// order, which preserves per-seat order; duplicates are possible.
type HandleFunc func(ev Event)

// Subscriber follows one show's claim channel. It owns the reconnect
// loop: subscribe, resync, then deliver increments until the
// connection drops, backing off between attempts.
type Subscriber struct {
	rdb    *redis.Client
	showID uint64
	resync ResyncFunc
	handle HandleFunc
}

// NewSubscriber builds a subscriber for one show.
func NewSubscriber(rdb *redis.Client, showID uint64, resync ResyncFunc, handle HandleFunc) *Subscriber {
	return &Subscriber{rdb: rdb, showID: showID, resync: resync, handle: handle}
}

// Run blocks until ctx is cancelled, reconnecting with exponential
// backoff capped at 30s. Resync failures count as connection failures:
// incremental delivery never starts from an unknown baseline.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := s.follow(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("feed: show %d subscription ended: %v; reconnecting in %s", s.showID, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (s *Subscriber) follow(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, ChannelFor(s.showID))
	defer func() { _ = sub.Close() }()

	// Confirm the subscription is live before snapshotting, so any
	// event committed after the snapshot read is caught by the stream.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if err := s.resync(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("pubsub channel closed")
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("feed: show %d dropped malformed event: %v", s.showID, err)
				continue
			}
			s.handle(ev)
		}
	}
}
