package sync

import (
	"context"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// UnreadCounter is the single shared source of the global unread badge
// value. Every UI surface reads the same cached entry: reads within the
// freshness window return the cache, concurrent refreshes collapse to one
// REST call, and any subscriber's invalidation updates the value observed by
// all subscribers.
type UnreadCounter struct {
	api API
	ttl time.Duration
	now func() time.Time

	group singleflight.Group

	mu        stdsync.Mutex
	value     int
	fetchedAt time.Time
	subs      map[int]func(int)
	nextSub   int
}

func NewUnreadCounter(api API, ttl time.Duration) *UnreadCounter {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &UnreadCounter{
		api:  api,
		ttl:  ttl,
		now:  time.Now,
		subs: make(map[int]func(int)),
	}
}

// Get returns the unread total, serving the cached value inside the
// freshness window. Fetch failures degrade to the last known value.
func (u *UnreadCounter) Get(ctx context.Context) (int, error) {
	u.mu.Lock()
	fresh := !u.fetchedAt.IsZero() && u.now().Sub(u.fetchedAt) < u.ttl
	value := u.value
	u.mu.Unlock()
	if fresh {
		return value, nil
	}
	return u.refresh(ctx)
}

// Refresh bypasses the freshness window and fetches a new server value,
// notifying subscribers on change. Used after mark-read transitions, on
// window refocus and by the periodic refresh loop.
func (u *UnreadCounter) Refresh(ctx context.Context) (int, error) {
	u.mu.Lock()
	u.fetchedAt = time.Time{}
	u.mu.Unlock()
	return u.refresh(ctx)
}

// Value returns the last known total without fetching.
func (u *UnreadCounter) Value() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.value
}

// Subscribe registers a badge callback invoked whenever the total changes.
func (u *UnreadCounter) Subscribe(fn func(count int)) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nextSub++
	u.subs[u.nextSub] = fn
	return u.nextSub
}

// Unsubscribe removes a badge callback.
func (u *UnreadCounter) Unsubscribe(id int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.subs, id)
}

// Run refreshes the counter on a fixed interval until ctx is done.
func (u *UnreadCounter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Refresh(ctx)
		}
	}
}

func (u *UnreadCounter) refresh(ctx context.Context) (int, error) {
	v, err, _ := u.group.Do("unread", func() (any, error) {
		count, err := u.api.UnreadCount(ctx)
		if err != nil {
			return 0, err
		}
		u.store(count)
		return count, nil
	})
	if err != nil {
		// Stale display beats a crashing badge.
		return u.Value(), err
	}
	return v.(int), nil
}

func (u *UnreadCounter) store(count int) {
	u.mu.Lock()
	changed := count != u.value || u.fetchedAt.IsZero()
	u.value = count
	u.fetchedAt = u.now()
	var notify []func(int)
	if changed {
		notify = make([]func(int), 0, len(u.subs))
		for _, fn := range u.subs {
			notify = append(notify, fn)
		}
	}
	u.mu.Unlock()
	for _, fn := range notify {
		fn(count)
	}
}
