// Package chain provides the Ethereum read/broadcast access consumed by the
// trading core: transaction count, broadcast, token balance and allowance
// reads, gas estimation and receipt lookup.
package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ZeroAddress marks the native currency in token fields.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ERC20ABI is the token fragment used for balance, allowance and approve
// calldata.
const ERC20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"remaining","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"success","type":"bool"}],"payable":false,"stateMutability":"nonpayable","type":"function"}]`

// Client wraps an Ethereum JSON-RPC client behind the narrow surface the
// trading core consumes.
type Client struct {
	logger *logrus.Logger

	clientMutex sync.RWMutex
	client      *ethclient.Client
}

// NewClient dials the given provider URL.
//
// Parameters:
// - providerURL: the Ethereum node RPC endpoint.
// - logger: the logger for logging events.
//
// Returns:
// - *Client: the connected client.
// - error: an error if dialing fails.
func NewClient(providerURL string, logger *logrus.Logger) (*Client, error) {
	client, err := ethclient.Dial(providerURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}
	return &Client{client: client, logger: logger}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.clientMutex.Lock()
	defer c.clientMutex.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *Client) getClient() (*ethclient.Client, error) {
	c.clientMutex.RLock()
	defer c.clientMutex.RUnlock()
	if c.client == nil {
		return nil, errors.New("client not initialized")
	}
	return c.client, nil
}

// PendingNonceAt returns the pending transaction count for the address.
func (c *Client) PendingNonceAt(ctx context.Context, address common.Address) (uint64, error) {
	client, err := c.getClient()
	if err != nil {
		return 0, err
	}
	n, err := client.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get nonce")
	}
	return n, nil
}

// SendRawTransaction broadcasts an RLP-serialized signed transaction.
//
// Returns:
// - string: the transaction hash.
// - error: an error if decoding or broadcast fails.
func (c *Client) SendRawTransaction(ctx context.Context, rawTx []byte) (string, error) {
	client, err := c.getClient()
	if err != nil {
		return "", err
	}

	tx := new(ethtypes.Transaction)
	if err := rlp.DecodeBytes(rawTx, tx); err != nil {
		return "", errors.Wrap(err, "failed to decode raw transaction")
	}

	if err := client.SendTransaction(ctx, tx); err != nil {
		c.logger.WithError(err).Error("Failed to send transaction")
		return "", errors.Wrap(err, "failed to send transaction")
	}
	return tx.Hash().Hex(), nil
}

// EstimateGas estimates the gas required for a transaction.
func (c *Client) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	client, err := c.getClient()
	if err != nil {
		return 0, err
	}

	toAddr := common.HexToAddress(to)
	msg := ethereum.CallMsg{
		From:  common.HexToAddress(from),
		To:    &toAddr,
		Value: value,
		Data:  data,
	}
	return client.EstimateGas(ctx, msg)
}

// SuggestGasPrice returns the node's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}
	return price, nil
}

// GetTokenBalance gets the balance of the given address. For the native
// currency pass tokenAddress as empty string or ZeroAddress.
func (c *Client) GetTokenBalance(ctx context.Context, address, tokenAddress string) (*big.Int, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}

	if tokenAddress == "" || strings.EqualFold(tokenAddress, ZeroAddress) {
		balance, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get native token balance")
		}
		return balance, nil
	}

	tokenAbi, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token ABI")
	}

	data, err := tokenAbi.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack balanceOf data")
	}

	result, err := c.callToken(ctx, client, tokenAddress, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call balanceOf")
	}
	return new(big.Int).SetBytes(result), nil
}

// GetAllowance reads the amount the spender may transfer on behalf of owner.
func (c *Client) GetAllowance(ctx context.Context, tokenAddress, owner, spender string) (*big.Int, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}

	tokenAbi, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token ABI")
	}

	data, err := tokenAbi.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack allowance data")
	}

	result, err := c.callToken(ctx, client, tokenAddress, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call allowance")
	}
	return new(big.Int).SetBytes(result), nil
}

// PackApprove builds ERC-20 approve calldata for the given spender.
func PackApprove(spender string, amount *big.Int) ([]byte, error) {
	tokenAbi, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token ABI")
	}
	data, err := tokenAbi.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack approve data")
	}
	return data, nil
}

// TransactionReceipt returns the receipt of a mined transaction.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}
	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction receipt")
	}
	return receipt, nil
}

func (c *Client) callToken(ctx context.Context, client *ethclient.Client, tokenAddress string, data []byte) ([]byte, error) {
	tokenAddr := common.HexToAddress(tokenAddress)
	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &tokenAddr,
		Data: data,
	}, nil)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, errors.New("empty result from token call")
	}
	return result, nil
}
