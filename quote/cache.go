package quote

import (
	"strings"
	"sync"
	"time"

	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/consenlabs/tokenlon-sdk-go/common/types"
)

// validityWindow is how long a cached quote stays tradeable. Entries strictly
// older than the window are expired.
const validityWindow = 10 * time.Second

// CachedQuote pairs a maker order with the intent that produced it.
type CachedQuote struct {
	Intent    types.TradeIntent
	Order     *types.MakerOrder
	CreatedAt time.Time
}

// Cache is a bounded-lifetime set of quotes keyed by quote id. Multiple
// intents may have live quotes simultaneously; at most one entry per id is
// retained. Eviction is lazy: expired entries are dropped when the cache is
// touched, never refreshed.
type Cache struct {
	mu      sync.Mutex
	entries []CachedQuote
	now     func() time.Time
}

// NewCache creates an empty quote cache.
func NewCache() *Cache {
	return &Cache{now: time.Now}
}

// Put stores a freshly accepted firm quote, evicting expired entries and any
// previous entry with the same quote id.
func (c *Cache) Put(intent types.TradeIntent, order *types.MakerOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if now.Sub(e.CreatedAt) > validityWindow {
			continue
		}
		if strings.EqualFold(e.Order.QuoteID, order.QuoteID) {
			continue
		}
		kept = append(kept, e)
	}
	c.entries = append(kept, CachedQuote{
		Intent:    intent,
		Order:     order,
		CreatedAt: now,
	})
}

// Get looks up a quote by id, case-insensitively.
//
// Returns:
// - *CachedQuote: the live entry, if any.
// - error: ErrInvalidQuoteID when no entry exists for the id,
//   ErrQuoteExpired when the entry's age exceeds the validity window
//   (the expired entry is evicted, never returned).
func (c *Cache) Get(quoteID string) (*CachedQuote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if !strings.EqualFold(e.Order.QuoteID, quoteID) {
			continue
		}
		if c.now().Sub(e.CreatedAt) > validityWindow {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return nil, commonerrors.ErrQuoteExpired
		}
		cq := e
		return &cq, nil
	}
	return nil, commonerrors.ErrInvalidQuoteID
}
