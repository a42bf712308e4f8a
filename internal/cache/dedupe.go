package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cache key prefixes
const (
	PrefixSentArticle = "sent_article"
)

// DefaultDedupeTTL bounds how long delivered article links are remembered
const DefaultDedupeTTL = 72 * time.Hour

// KV is the subset of Redis operations the deduper needs
type KV interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// Deduper prevents the same article from being delivered to the same
// chat more than once within the retention window. Claims are atomic:
// concurrent deliveries of the same link see exactly one winner.
type Deduper struct {
	kv  KV
	ttl time.Duration
}

// NewDeduper creates a deduper backed by the given key-value store
func NewDeduper(kv KV, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &Deduper{kv: kv, ttl: ttl}
}

// Claim marks an article link as sent to a chat and reports whether
// this call was the first to do so. A false result means the article
// was already delivered and should be skipped.
func (d *Deduper) Claim(ctx context.Context, chatID, link string) (bool, error) {
	return d.kv.SetNX(ctx, articleKey(chatID, link), time.Now().Unix(), d.ttl)
}

func articleKey(chatID, link string) string {
	sum := sha256.Sum256([]byte(link))
	return fmt.Sprintf("%s:%s:%s", PrefixSentArticle, chatID, hex.EncodeToString(sum[:16]))
}
