package generate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"docweave/internal/model"
)

// WithCache memoizes generation results in an LRU keyed by a fingerprint of
// the request. Within one process, re-dispatching the same chapter (for
// example when assembling twice or re-running a partially failed job whose
// inputs did not change) does not hit the provider again.
func WithCache(size int) Middleware {
	if size <= 0 {
		size = 128
	}
	return func(next ChapterGenerator) ChapterGenerator {
		cache, err := lru.New[string, model.ChapterContent](size)
		if err != nil {
			// lru.New only fails on size <= 0, which is normalized above.
			panic(err)
		}
		return &caching{next: next, cache: cache}
	}
}

type caching struct {
	next  ChapterGenerator
	cache *lru.Cache[string, model.ChapterContent]
}

func (c *caching) Name() string { return c.next.Name() }
func (c *caching) Close() error { return c.next.Close() }

func (c *caching) Generate(ctx context.Context, req Request) (model.ChapterContent, error) {
	key := Fingerprint(req)
	if out, ok := c.cache.Get(key); ok {
		return out, nil
	}
	out, err := c.next.Generate(ctx, req)
	if err != nil {
		return out, err
	}
	c.cache.Add(key, out)
	return out, nil
}

// Fingerprint derives a stable key from everything that influences a
// chapter's content: the abstraction, its position, and the predecessor
// chapters it may reference.
func Fingerprint(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\x00%s\x00%s\x00%d/%d", req.Abstraction.ID, req.Abstraction.Title, req.Abstraction.Summary, req.Position.Order, req.Position.Total)
	for _, p := range req.Predecessors {
		fmt.Fprintf(&b, "\x00%d:%s:%s", p.Order, p.Abstraction.ID, p.Abstraction.Summary)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
