package gasprice

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type fakeNode struct {
	price *big.Int
	err   error
}

func (n *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return n.price, n.err
}

type fakePrices struct {
	price decimal.Decimal
	err   error
}

func (p *fakePrices) MarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return p.price, p.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func stationServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func kncIntent(amount string) *types.TradeIntent {
	return &types.TradeIntent{
		Base:   "KNC",
		Quote:  "ETH",
		Side:   types.SideBuy,
		Amount: decimal.RequireFromString(amount),
	}
}

func TestGasPriceFromOracle(t *testing.T) {
	srv := stationServer(t, `{"fast": 200, "average": 100}`)
	defer srv.Close()

	// Worth 1 USD: well under the boost threshold.
	p := NewProvider(&fakeNode{}, &fakePrices{price: decimal.NewFromInt(1)}, quietLogger())
	p.stationURL = srv.URL

	price, err := p.GasPrice(context.Background(), kncIntent("1"))
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	// 200 tenth-gwei = 20 gwei.
	if want := big.NewInt(20000000000); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want %s", price, want)
	}
}

func TestGasPriceBoostsHighWorth(t *testing.T) {
	srv := stationServer(t, `{"fast": 100}`)
	defer srv.Close()

	p := NewProvider(&fakeNode{}, &fakePrices{price: decimal.NewFromInt(2000)}, quietLogger())
	p.stationURL = srv.URL

	price, err := p.GasPrice(context.Background(), kncIntent("1"))
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	// 10 gwei boosted by 1.2.
	if want := big.NewInt(12000000000); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want %s", price, want)
	}
}

func TestGasPriceBoostsUnknownWorth(t *testing.T) {
	srv := stationServer(t, `{"fast": 100}`)
	defer srv.Close()

	p := NewProvider(&fakeNode{}, &fakePrices{err: errors.New("market down")}, quietLogger())
	p.stationURL = srv.URL

	price, err := p.GasPrice(context.Background(), kncIntent("1"))
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	if want := big.NewInt(12000000000); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want the boosted price %s", price, want)
	}
}

func TestGasPriceUSDTPassthrough(t *testing.T) {
	srv := stationServer(t, `{"fast": 100}`)
	defer srv.Close()

	// No market lookup needed for a USDT base; 2000 USDT is worth 2000 USD.
	p := NewProvider(&fakeNode{}, &fakePrices{err: errors.New("must not be called")}, quietLogger())
	p.stationURL = srv.URL

	intent := kncIntent("2000")
	intent.Base = "USDT"
	price, err := p.GasPrice(context.Background(), intent)
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	if want := big.NewInt(12000000000); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want boosted %s", price, want)
	}

	intent.Amount = decimal.NewFromInt(5)
	price, err = p.GasPrice(context.Background(), intent)
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	if want := big.NewInt(10000000000); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want unboosted %s", price, want)
	}
}

func TestGasPriceNodeFallback(t *testing.T) {
	srv := stationServer(t, `not json`)
	defer srv.Close()

	p := NewProvider(&fakeNode{price: big.NewInt(100)}, nil, quietLogger())
	p.stationURL = srv.URL

	price, err := p.GasPrice(context.Background(), kncIntent("1"))
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	// Fallback price with the unknown-worth boost, truncated to wei.
	if want := big.NewInt(120); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want %s", price, want)
	}
}

func TestGasPriceZeroFastRejected(t *testing.T) {
	srv := stationServer(t, `{"fast": 0}`)
	defer srv.Close()

	p := NewProvider(&fakeNode{price: big.NewInt(100)}, nil, quietLogger())
	p.stationURL = srv.URL

	price, err := p.GasPrice(context.Background(), kncIntent("1"))
	if err != nil {
		t.Fatalf("gas price: %v", err)
	}
	if want := big.NewInt(120); price.Cmp(want) != 0 {
		t.Fatalf("price = %s, want the node fallback %s", price, want)
	}
}

func TestGasPriceNoFallback(t *testing.T) {
	srv := stationServer(t, `not json`)
	defer srv.Close()

	p := NewProvider(nil, nil, quietLogger())
	p.stationURL = srv.URL

	if _, err := p.GasPrice(context.Background(), kncIntent("1")); err == nil {
		t.Fatal("expected error with no oracle and no node")
	}
}
