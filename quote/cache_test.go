package quote

import (
	"testing"
	"time"

	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func testIntent() types.TradeIntent {
	return types.TradeIntent{
		Base:   "KNC",
		Quote:  "ETH",
		Side:   types.SideBuy,
		Amount: decimal.RequireFromString("0.011"),
	}
}

func TestCacheGetLive(t *testing.T) {
	base := time.Now()
	cache := NewCache()
	cache.now = func() time.Time { return base }

	cache.Put(testIntent(), &types.MakerOrder{QuoteID: "Q-1"})

	// Still live right at the window boundary.
	cache.now = func() time.Time { return base.Add(10 * time.Second) }
	got, err := cache.Get("q-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Order.QuoteID != "Q-1" {
		t.Fatalf("quote id = %q, want Q-1", got.Order.QuoteID)
	}
	if got.Intent.Base != "KNC" {
		t.Fatalf("intent base = %q, want KNC", got.Intent.Base)
	}
}

func TestCacheExpiry(t *testing.T) {
	base := time.Now()
	cache := NewCache()
	cache.now = func() time.Time { return base }

	cache.Put(testIntent(), &types.MakerOrder{QuoteID: "q-1"})

	cache.now = func() time.Time { return base.Add(11 * time.Second) }
	if _, err := cache.Get("q-1"); !errors.Is(err, commonerrors.ErrQuoteExpired) {
		t.Fatalf("err = %v, want ErrQuoteExpired", err)
	}

	// The expired entry was evicted; a second lookup no longer knows the id.
	if _, err := cache.Get("q-1"); !errors.Is(err, commonerrors.ErrInvalidQuoteID) {
		t.Fatalf("err = %v, want ErrInvalidQuoteID", err)
	}
}

func TestCacheUnknownID(t *testing.T) {
	cache := NewCache()
	if _, err := cache.Get("never-seen"); !errors.Is(err, commonerrors.ErrInvalidQuoteID) {
		t.Fatalf("err = %v, want ErrInvalidQuoteID", err)
	}
}

func TestCachePutReplacesSameID(t *testing.T) {
	base := time.Now()
	cache := NewCache()
	cache.now = func() time.Time { return base }

	first := testIntent()
	cache.Put(first, &types.MakerOrder{QuoteID: "q-1", MakerAssetAmount: "1"})

	cache.now = func() time.Time { return base.Add(5 * time.Second) }
	second := testIntent()
	second.Amount = decimal.RequireFromString("0.02")
	cache.Put(second, &types.MakerOrder{QuoteID: "Q-1", MakerAssetAmount: "2"})

	got, err := cache.Get("q-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Order.MakerAssetAmount != "2" {
		t.Fatalf("maker amount = %q, want the replacement entry", got.Order.MakerAssetAmount)
	}
	if len(cache.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(cache.entries))
	}
}

func TestCacheMultipleLiveQuotes(t *testing.T) {
	base := time.Now()
	cache := NewCache()
	cache.now = func() time.Time { return base }

	cache.Put(testIntent(), &types.MakerOrder{QuoteID: "q-1"})

	other := testIntent()
	other.Base = "OMG"
	cache.now = func() time.Time { return base.Add(8 * time.Second) }
	cache.Put(other, &types.MakerOrder{QuoteID: "q-2"})

	if _, err := cache.Get("q-1"); err != nil {
		t.Fatalf("first quote: %v", err)
	}
	if _, err := cache.Get("q-2"); err != nil {
		t.Fatalf("second quote: %v", err)
	}

	// Writing once the first quote is stale prunes it.
	cache.now = func() time.Time { return base.Add(12 * time.Second) }
	cache.Put(testIntent(), &types.MakerOrder{QuoteID: "q-3"})
	if len(cache.entries) != 2 {
		t.Fatalf("entries = %d, want 2 after pruning", len(cache.entries))
	}
}
