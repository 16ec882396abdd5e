// Package notify fans bookmark-collection change signals out to realtime
// subscribers. With a redis client the signal also crosses instances via
// pub/sub; without one it stays in-process.
package notify

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const changesChannel = "linkbrief:changes"

type Hub struct {
	logger *zap.SugaredLogger
	rdb    *redis.Client

	mu     sync.Mutex
	subs   map[uint64]map[int]chan struct{}
	nextID int
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(rdb *redis.Client, logger *zap.SugaredLogger) *Hub {
	h := &Hub{
		logger: logger,
		rdb:    rdb,
		subs:   make(map[uint64]map[int]chan struct{}),
		done:   make(chan struct{}),
	}
	if rdb != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		go h.receive(ctx)
	} else {
		close(h.done)
	}
	return h
}

// Publish signals that userID's collection changed. Notifications may reach
// subscribers out of order relative to the writes that caused them; readers
// re-fetch the full collection on every signal, so late arrivals are safe.
func (h *Hub) Publish(ctx context.Context, userID uint64) {
	if h.rdb != nil {
		err := h.rdb.Publish(ctx, changesChannel, strconv.FormatUint(userID, 10)).Err()
		if err == nil {
			return
		}
		h.logger.Errorw("publish change to redis failed, notifying locally", "error", err)
	}
	h.broadcast(userID)
}

// Subscribe returns a signal channel for userID plus a cancel func. The
// channel is never closed while the cancel func has not run; a dropped
// signal is fine because a later one carries the same meaning.
func (h *Hub) Subscribe(userID uint64) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]chan struct{})
	}
	h.subs[userID][id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if chans, ok := h.subs[userID]; ok {
			delete(chans, id)
			if len(chans) == 0 {
				delete(h.subs, userID)
			}
		}
	}
	return ch, cancel
}

func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	<-h.done
}

func (h *Hub) broadcast(userID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[userID] {
		select {
		case ch <- struct{}{}:
		default: // subscriber already has a pending signal
		}
	}
}

func (h *Hub) receive(ctx context.Context) {
	defer close(h.done)

	sub := h.rdb.Subscribe(ctx, changesChannel)
	defer func() {
		if err := sub.Close(); err != nil {
			h.logger.Errorw("close redis subscription", "error", err)
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			userID, err := strconv.ParseUint(msg.Payload, 10, 64)
			if err != nil {
				h.logger.Errorw("ignoring malformed change payload", "payload", msg.Payload)
				continue
			}
			h.broadcast(userID)
		}
	}
}
