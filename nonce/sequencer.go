// Package nonce serializes nonce issuance for a single signing address
// across potentially overlapping trade settlements. Correctness is achieved
// by conflict detection, not mutual exclusion: a second Next call before the
// first settlement's Commit fails with ErrNonceConflict instead of blocking.
package nonce

import (
	"context"
	"time"

	commonerrors "github.com/consenlabs/tokenlon-sdk-go/common/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// staleAfter is how long a committed nonce blocks new issuance when the
// on-chain count has not advanced past it.
const staleAfter = 20 * time.Minute

// TransactionCounter reads the pending transaction count for an address.
type TransactionCounter interface {
	PendingNonceAt(ctx context.Context, address common.Address) (uint64, error)
}

// Sequencer tracks the last nonce consumed by this client for one address.
type Sequencer struct {
	counter TransactionCounter
	address common.Address
	logger  *logrus.Logger
	now     func() time.Time

	cached   *uint64
	cachedAt time.Time
}

// NewSequencer creates a sequencer for the given signing address.
func NewSequencer(counter TransactionCounter, address common.Address, logger *logrus.Logger) *Sequencer {
	return &Sequencer{
		counter: counter,
		address: address,
		logger:  logger,
		now:     time.Now,
	}
}

// Next returns the nonce to use for the next transaction.
//
// If a previously committed nonce is cached, Next succeeds only when the
// on-chain count has advanced past it or the cache entry is older than the
// staleness window; otherwise it fails with ErrNonceConflict because the
// prior transaction may still be unconfirmed.
func (s *Sequencer) Next(ctx context.Context) (uint64, error) {
	onchain, err := s.counter.PendingNonceAt(ctx, s.address)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction count")
	}

	if s.cached == nil {
		return onchain, nil
	}

	if onchain > *s.cached || s.now().Sub(s.cachedAt) > staleAfter {
		s.logger.WithFields(logrus.Fields{
			"cached":  *s.cached,
			"onchain": onchain,
		}).Debug("Clearing cached nonce")
		s.cached = nil
		return onchain, nil
	}

	return 0, commonerrors.ErrNonceConflict
}

// Commit records n as used. Call it only after the transaction carrying n
// has been accepted for broadcast, never for merely computed nonces.
func (s *Sequencer) Commit(n uint64) {
	s.cached = &n
	s.cachedAt = s.now()
}
