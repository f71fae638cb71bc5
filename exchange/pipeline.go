// Package exchange turns a cached maker order plus the local taker address
// into a submittable, counter-signed fill.
package exchange

import (
	"context"
	"math/big"

	"github.com/consenlabs/tokenlon-sdk-go/common/types"
	"github.com/consenlabs/tokenlon-sdk-go/nonce"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// fillOrderGas is the funding-transaction gas limit fallback when live
// estimation fails.
const fillOrderGas = 800000

// GasEstimator estimates gas for the funding transaction.
type GasEstimator interface {
	EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error)
}

// GasPricer supplies the funding-transaction gas price.
type GasPricer interface {
	GasPrice(ctx context.Context, intent *types.TradeIntent) (*big.Int, error)
}

// Pipeline drives order signing: typed-data hashing, taker signature via the
// injected signing capability, and — for native-currency trades — a signed
// funding transaction with a nonce from the sequencer.
type Pipeline struct {
	personal     types.PersonalSigner
	rawSigner    types.RawTransactionSigner
	sequencer    *nonce.Sequencer
	gasEstimator GasEstimator
	gasPricer    GasPricer
	logger       *logrus.Logger
}

// NewPipeline creates a signing pipeline.
func NewPipeline(
	personal types.PersonalSigner,
	rawSigner types.RawTransactionSigner,
	sequencer *nonce.Sequencer,
	gasEstimator GasEstimator,
	gasPricer GasPricer,
	logger *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		personal:     personal,
		rawSigner:    rawSigner,
		sequencer:    sequencer,
		gasEstimator: gasEstimator,
		gasPricer:    gasPricer,
		logger:       logger,
	}
}

// SignInput carries everything the pipeline needs for one settlement.
// PayWithETH selects the funding-transaction path for trades whose outgoing
// asset is the native currency.
type SignInput struct {
	Intent       *types.TradeIntent
	Order        *types.MakerOrder
	TakerAddress common.Address
	Config       *types.AppConfig
	PayWithETH   bool
}

// Sign produces the signed settlement for the given maker order. Any step
// failing aborts the pipeline; no partial signature is surfaced.
func (p *Pipeline) Sign(ctx context.Context, in *SignInput) (*types.SignedSettlement, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}

	fillData, err := PackFillOrKillOrder(in.Order)
	if err != nil {
		return nil, err
	}

	executeTxHash, err := TransactionHash(in.Config.ExchangeContractAddress, fillData, salt, in.Order.TakerAddress)
	if err != nil {
		return nil, err
	}

	// The local wallet address doubles as the receiver of the fill.
	receiver := in.TakerAddress
	payload := append(executeTxHash.Bytes(), receiver.Bytes()...)

	signatureHex, err := p.personal.SignPersonal(ctx, hexutil.Encode(payload))
	if err != nil {
		return nil, errors.Wrap(err, "personal sign failed")
	}

	sig, err := VerifyTakerSignature(payload, signatureHex, in.TakerAddress)
	if err != nil {
		return nil, err
	}

	takerWalletSignature := WalletSignature(sig, receiver)

	settlement := &types.SignedSettlement{
		Order: &types.SettlementOrder{
			MakerOrder:           *in.Order,
			SignedTxSalt:         salt.String(),
			ExecuteTxHash:        executeTxHash.Hex(),
			SignedTxData:         hexutil.Encode(fillData),
			TakerWalletSignature: takerWalletSignature,
		},
	}

	if !in.PayWithETH {
		// Settlement relies on a prior allowance; no funding transaction.
		return settlement, nil
	}

	if err := p.signFundingTransaction(ctx, in, settlement, salt, fillData, takerWalletSignature); err != nil {
		return nil, err
	}
	return settlement, nil
}

// signFundingTransaction builds and signs the native-currency transaction
// that carries the fill calldata and its value to the exchange contract.
func (p *Pipeline) signFundingTransaction(
	ctx context.Context,
	in *SignInput,
	settlement *types.SignedSettlement,
	salt *big.Int,
	fillData []byte,
	takerWalletSignature string,
) error {
	gasPrice, err := p.gasPricer.GasPrice(ctx, in.Intent)
	if err != nil {
		return errors.Wrap(err, "failed to get gas price")
	}

	n, err := p.sequencer.Next(ctx)
	if err != nil {
		return err
	}

	fundingData, err := PackFillOrderWithETH(salt, fillData, takerWalletSignature)
	if err != nil {
		return err
	}

	value, err := parseAmount(in.Order.TakerAssetAmount)
	if err != nil {
		return errors.Wrap(err, "invalid takerAssetAmount")
	}

	to := in.Config.TokenlonExchangeContractAddress
	gasLimit := p.fundingGasLimit(ctx, in.TakerAddress.Hex(), to, value, fundingData)

	rawTx := &types.RawTransaction{
		To:       to,
		Data:     hexutil.Encode(fundingData),
		From:     in.TakerAddress.Hex(),
		Nonce:    hexutil.EncodeUint64(n),
		GasLimit: hexutil.EncodeUint64(gasLimit),
		GasPrice: hexutil.EncodeBig(gasPrice),
		Value:    hexutil.EncodeBig(value),
	}

	signed, err := p.rawSigner.SignRawTransaction(ctx, rawTx)
	if err != nil {
		return errors.Wrap(err, "raw transaction sign failed")
	}

	rawBytes, err := decodeHex(signed)
	if err != nil {
		return errors.Wrap(err, "invalid signed transaction encoding")
	}

	settlement.RawTx = hexutil.Encode(rawBytes)
	settlement.TxHash = crypto.Keccak256Hash(rawBytes).Hex()
	settlement.Nonce = n
	settlement.HasFundingTx = true
	return nil
}

// fundingGasLimit prefers a live estimate and falls back to the fixed
// fill-order gas constant when estimation is unavailable.
func (p *Pipeline) fundingGasLimit(ctx context.Context, from, to string, value *big.Int, data []byte) uint64 {
	if p.gasEstimator == nil {
		return fillOrderGas
	}
	estimated, err := p.gasEstimator.EstimateGas(ctx, from, to, value, data)
	if err != nil {
		p.logger.WithError(err).Warn("Gas estimation failed, using fill-order gas constant")
		return fillOrderGas
	}
	return estimated
}
