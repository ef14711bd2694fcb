package stats

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// pageSet is one rendered leaderboard and the page its message shows.
type pageSet struct {
	mu      sync.Mutex
	pages   []*discordgo.MessageEmbed
	current int
}

// step moves by delta, clamped to the available pages, and returns the
// new position.
func (p *pageSet) step(delta int) (*discordgo.MessageEmbed, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += delta
	if p.current < 0 {
		p.current = 0
	}
	if p.current > len(p.pages)-1 {
		p.current = len(p.pages) - 1
	}
	return p.pages[p.current], p.current, len(p.pages)
}

// pageCache keeps leaderboards navigable for a while after they are posted.
// Entries expire after ttl and the oldest are evicted beyond size.
type pageCache struct {
	lru *expirable.LRU[string, *pageSet]
}

func newPageCache(size int, ttl time.Duration) *pageCache {
	return &pageCache{lru: expirable.NewLRU[string, *pageSet](size, nil, ttl)}
}

func (c *pageCache) put(pages []*discordgo.MessageEmbed) string {
	id := uuid.NewString()
	c.lru.Add(id, &pageSet{pages: pages})
	return id
}

func (c *pageCache) get(id string) (*pageSet, bool) {
	return c.lru.Get(id)
}

func (c *pageCache) len() int { return c.lru.Len() }
