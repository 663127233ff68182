// Package memory is an in-process LetterCache for single-process runs and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"
)

type subscriber struct {
	id      int
	handler func(message []byte)
}

type counter struct {
	count     int64
	expiresAt time.Time
}

type MemoryLetterCache struct {
	mu          sync.Mutex
	subscribers map[string][]subscriber
	nextSubId   int
	lastActive  map[string]time.Time
	counters    map[string]counter
	now         func() time.Time
}

func NewMemoryLetterCache() *MemoryLetterCache {
	return &MemoryLetterCache{
		subscribers: make(map[string][]subscriber),
		lastActive:  make(map[string]time.Time),
		counters:    make(map[string]counter),
		now:         time.Now,
	}
}

// Publish delivers synchronously to every handler subscribed to channel.
func (c *MemoryLetterCache) Publish(ctx context.Context, channel string, message []byte) error {
	c.mu.Lock()
	subs := slices.Clone(c.subscribers[channel])
	c.mu.Unlock()

	for _, sub := range subs {
		sub.handler(slices.Clone(message))
	}
	return nil
}

// Subscribe registers handler until ctx is done.
func (c *MemoryLetterCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	c.mu.Lock()
	c.nextSubId++
	id := c.nextSubId
	c.subscribers[channel] = append(c.subscribers[channel], subscriber{id: id, handler: handler})
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subscribers[channel] = slices.DeleteFunc(c.subscribers[channel], func(s subscriber) bool { return s.id == id })
		if len(c.subscribers[channel]) == 0 {
			delete(c.subscribers, channel)
		}
	}()
	return nil
}

func (c *MemoryLetterCache) SetLastActive(ctx context.Context, identityId string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if at.After(c.lastActive[identityId]) {
		c.lastActive[identityId] = at
	}
	return nil
}

func (c *MemoryLetterCache) GetLastActive(ctx context.Context, identityId string) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastActive[identityId], nil
}

func (c *MemoryLetterCache) IncrementActionCount(ctx context.Context, identityId string, action string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := identityId + ":" + action
	now := c.now()
	ctr, ok := c.counters[key]
	if !ok || !now.Before(ctr.expiresAt) {
		ctr = counter{expiresAt: now.Add(window)}
	}
	ctr.count++
	c.counters[key] = ctr
	return ctr.count, nil
}
