package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// Intent validation errors, raised before any network call.
	ErrUnsupportedPair     = errors.New("unsupported trade pair")
	ErrBelowMinTradeAmount = errors.New("amount is less than the system minimum trade amount")
	ErrAboveMaxTradeAmount = errors.New("amount is greater than the system maximum trade amount")
	ErrTokenNotFound       = errors.New("token not found")

	// Pricing channel errors.
	ErrAlreadyConnecting = errors.New("channel connect already in progress")
	ErrConnectFailed     = errors.New("channel connect failed after retry budget exhausted")
	ErrChannelClosed     = errors.New("channel is not connected")

	// Quote negotiation errors.
	ErrBelowMakerMinAmount = errors.New("amount is less than the market maker minimum trade amount")
	ErrAboveMakerMaxAmount = errors.New("amount is greater than the market maker maximum trade amount")
	ErrNoLiquidity         = errors.New("market maker can not resolve the exchange")
	ErrEmptyResponse       = errors.New("no order data in market maker response")
	ErrQuoteTimeout        = errors.New("quote request timed out after 5s")

	// Settlement errors.
	ErrInvalidQuoteID        = errors.New("invalid quote id")
	ErrQuoteExpired          = errors.New("quote expired")
	ErrNonceConflict         = errors.New("previous nonce may still be pending")
	ErrInvalidSignature      = errors.New("signature verifies under neither supported layout")
	ErrInsufficientBalance   = errors.New("balance is not enough")
	ErrInsufficientAllowance = errors.New("allowance is not enough")
)

// MakerDeclinedError carries a decline reason declared by the market maker
// in a quote response, surfaced verbatim.
type MakerDeclinedError struct {
	Reason string
}

func (e *MakerDeclinedError) Error() string {
	return fmt.Sprintf("market maker declined quote: %s", e.Reason)
}
