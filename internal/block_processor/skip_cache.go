package block_processor

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type skipKey struct {
	chainID uint64
	block   uint64
}

// SkipCache remembers that a (chain, block) pair contained no comment
// activity so repeat passes over unchanged history return immediately.
//
// It is strictly advisory: a miss or an evicted entry just means "re-scan",
// never anything correctness-affecting.
type SkipCache struct {
	lru *expirable.LRU[skipKey, struct{}]
}

func NewSkipCache(size int, ttl time.Duration) *SkipCache {
	return &SkipCache{lru: expirable.NewLRU[skipKey, struct{}](size, nil, ttl)}
}

func (c *SkipCache) Contains(chainID, block uint64) bool {
	return c.lru.Contains(skipKey{chainID: chainID, block: block})
}

func (c *SkipCache) Mark(chainID, block uint64) {
	c.lru.Add(skipKey{chainID: chainID, block: block}, struct{}{})
}
