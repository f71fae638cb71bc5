package types

import "context"

// RawTransaction holds the fields of an unsigned transaction handed to a
// RawTransactionSigner. All quantity fields are 0x-prefixed hex strings.
type RawTransaction struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	From     string `json:"from"`
	Nonce    string `json:"nonce"`
	GasLimit string `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
	Value    string `json:"value"`
}

// PersonalSigner signs a text payload with the personal-message prefix.
// Implementations may be a local key, a hardware wallet, or a remote signer;
// the round-trip may suspend, hence the context.
type PersonalSigner interface {
	// SignPersonal signs the given 0x-prefixed hex payload and returns the
	// signature as a hex string.
	SignPersonal(ctx context.Context, message string) (string, error)
}

// RawTransactionSigner produces a serialized signed transaction from raw
// transaction fields.
type RawTransactionSigner interface {
	// SignRawTransaction signs tx and returns the RLP-serialized signed
	// transaction as a hex string.
	SignRawTransaction(ctx context.Context, tx *RawTransaction) (string, error)
}

// ApprovalTransaction is a signed token-approval transaction bundled with an
// order submission when the outgoing asset needs an approval step first.
type ApprovalTransaction struct {
	RawTx  string `json:"rawTx"`
	Refuel bool   `json:"refuel"`
}

// ApproveAndFillSigner is an optional capability producing a signed approval
// transaction to be submitted together with the order fill.
type ApproveAndFillSigner interface {
	// SignApproval signs an approval of the given token for the given spender.
	SignApproval(ctx context.Context, tx *RawTransaction) (*ApprovalTransaction, error)
}
