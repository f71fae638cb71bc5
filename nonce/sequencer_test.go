package nonce

import (
	"context"
	"testing"
	"time"

	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type fakeCounter struct {
	nonce uint64
	err   error
	calls int
}

func (c *fakeCounter) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	c.calls++
	return c.nonce, c.err
}

func newTestSequencer(counter *fakeCounter) *Sequencer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewSequencer(counter, common.HexToAddress("0xabc"), logger)
}

func TestNextWithoutHistory(t *testing.T) {
	counter := &fakeCounter{nonce: 7}
	s := newTestSequencer(counter)

	n, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if n != 7 {
		t.Fatalf("nonce = %d, want 7", n)
	}
}

func TestNextConflictsUntilChainAdvances(t *testing.T) {
	counter := &fakeCounter{nonce: 7}
	s := newTestSequencer(counter)

	n, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	s.Commit(n)

	// The chain still reports 7: the committed transaction is unconfirmed.
	if _, err := s.Next(context.Background()); !errors.Is(err, commonerrors.ErrNonceConflict) {
		t.Fatalf("err = %v, want ErrNonceConflict", err)
	}

	// Once the count moves past the committed nonce, issuance resumes.
	counter.nonce = 8
	n, err = s.Next(context.Background())
	if err != nil {
		t.Fatalf("next after advance: %v", err)
	}
	if n != 8 {
		t.Fatalf("nonce = %d, want 8", n)
	}
}

func TestNextStaleCommitExpires(t *testing.T) {
	counter := &fakeCounter{nonce: 7}
	s := newTestSequencer(counter)

	base := time.Now()
	s.now = func() time.Time { return base }

	n, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	s.Commit(n)

	// Within the staleness window the commit still blocks.
	s.now = func() time.Time { return base.Add(19 * time.Minute) }
	if _, err := s.Next(context.Background()); !errors.Is(err, commonerrors.ErrNonceConflict) {
		t.Fatalf("err = %v, want ErrNonceConflict", err)
	}

	// Past the window the stale commit is discarded.
	s.now = func() time.Time { return base.Add(21 * time.Minute) }
	n, err = s.Next(context.Background())
	if err != nil {
		t.Fatalf("next after staleness: %v", err)
	}
	if n != 7 {
		t.Fatalf("nonce = %d, want the on-chain count", n)
	}

	// The discarded commit stays gone.
	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("next after clearing: %v", err)
	}
}

func TestNextCounterError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("node down")}
	s := newTestSequencer(counter)
	if _, err := s.Next(context.Background()); err == nil {
		t.Fatal("expected error from counter")
	}
}
