package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/clients/evm/parser"
)

var ErrTxReverted = errors.New("transaction reverted")

// QueueEntry is the router txqueue(bytes32) record of a pending transfer
type QueueEntry struct {
	Recipient common.Address
	Amount    *big.Int
	ERC20     common.Address
	Count     uint64
}

// TxParams carries the nonce and fee fields chosen by the caller.
// GasPrice selects a legacy transaction, GasTipCap/GasFeeCap a dynamic fee one.
type TxParams struct {
	Nonce     uint64
	GasPrice  *big.Int
	GasTipCap *big.Int
	GasFeeCap *big.Int
	GasLimit  uint64
}

type TransferArgs struct {
	TxID      [32]byte
	Recipient common.Address
	Amount    *big.Int
	ERC20     common.Address
}

func (c *EvmClient) call(ctx context.Context, method string, params ...any) ([]any, error) {
	var out []any
	if err := c.router.Call(c.CreateCallOpts(ctx), &out, method, params...); err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result for %s", method)
	}
	return out, nil
}

func (c *EvmClient) GetLockdown(ctx context.Context) (bool, error) {
	out, err := c.call(ctx, parser.MethodGetLockdown)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *EvmClient) GetThreshold(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, parser.MethodGetThreshold)
	if err != nil {
		return 0, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int).Uint64(), nil
}

func (c *EvmClient) TxVotes(ctx context.Context, txid [32]byte, account common.Address) (bool, error) {
	out, err := c.call(ctx, parser.MethodTxVotes, txid, account)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *EvmClient) TxQueue(ctx context.Context, txid [32]byte) (*QueueEntry, error) {
	out, err := c.call(ctx, parser.MethodTxQueue, txid)
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("unexpected txqueue result size %d", len(out))
	}
	return &QueueEntry{
		Recipient: *abi.ConvertType(out[0], new(common.Address)).(*common.Address),
		Amount:    abi.ConvertType(out[1], new(big.Int)).(*big.Int),
		ERC20:     *abi.ConvertType(out[2], new(common.Address)).(*common.Address),
		Count:     abi.ConvertType(out[3], new(big.Int)).(*big.Int).Uint64(),
	}, nil
}

func (c *EvmClient) addresses(ctx context.Context, method string) ([]common.Address, error) {
	out, err := c.call(ctx, method)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

func (c *EvmClient) GetKeepers(ctx context.Context) ([]common.Address, error) {
	return c.addresses(ctx, parser.MethodGetKeepers)
}

func (c *EvmClient) GetWatchdogs(ctx context.Context) ([]common.Address, error) {
	return c.addresses(ctx, parser.MethodGetWatchdogs)
}

func (c *EvmClient) GetWatchcats(ctx context.Context) ([]common.Address, error) {
	return c.addresses(ctx, parser.MethodGetWatchcats)
}

func (c *EvmClient) transactOpts(ctx context.Context, params TxParams) (*bind.TransactOpts, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("transact opts are not set")
	}
	opts := *c.auth
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(params.Nonce)
	opts.GasPrice = params.GasPrice
	opts.GasTipCap = params.GasTipCap
	opts.GasFeeCap = params.GasFeeCap
	if params.GasLimit > 0 {
		opts.GasLimit = params.GasLimit
	}
	return &opts, nil
}

// Transfer submits the keeper vote transfer(txid, recipient, amount, erc20).
// The returned transaction has been broadcast, any error means it has not.
func (c *EvmClient) Transfer(ctx context.Context, params TxParams, args TransferArgs) (*ethTypes.Transaction, error) {
	opts, err := c.transactOpts(ctx, params)
	if err != nil {
		return nil, err
	}
	tx, err := c.router.Transact(opts, parser.MethodTransfer, args.TxID, args.Recipient, args.Amount, args.ERC20)
	if err != nil {
		return nil, fmt.Errorf("failed to send transfer: %w", err)
	}
	log.Info().Str("txHash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).
		Str("recipient", args.Recipient.Hex()).Str("amount", args.Amount.String()).
		Msg("[EvmClient] [Transfer] transaction sent")
	return tx, nil
}

// SetLockdown submits setLockdown() on the router
func (c *EvmClient) SetLockdown(ctx context.Context, params TxParams) (*ethTypes.Transaction, error) {
	opts, err := c.transactOpts(ctx, params)
	if err != nil {
		return nil, err
	}
	tx, err := c.router.Transact(opts, parser.MethodSetLockdown)
	if err != nil {
		return nil, fmt.Errorf("failed to send setLockdown: %w", err)
	}
	log.Warn().Str("txHash", tx.Hash().Hex()).Uint64("nonce", tx.Nonce()).
		Msg("[EvmClient] [SetLockdown] transaction sent")
	return tx, nil
}

// WaitMined blocks until tx is mined and fails when it reverted
func (c *EvmClient) WaitMined(ctx context.Context, tx *ethTypes.Transaction) (*ethTypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.minedTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(ctx, c.Client, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != ethTypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrTxReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

func (c *EvmClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.Client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	return gasPrice, nil
}

func (c *EvmClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return c.Client.PendingNonceAt(ctx, account)
}

func (c *EvmClient) TransactionByHash(ctx context.Context, hash common.Hash) (*ethTypes.Transaction, error) {
	tx, _, err := c.Client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
	}
	return tx, nil
}

// DepositOf fetches a deposit transaction and decodes its bytes32 destination
func (c *EvmClient) DepositOf(ctx context.Context, hash common.Hash) (*ethTypes.Transaction, [32]byte, error) {
	tx, err := c.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, [32]byte{}, err
	}
	destination, err := parser.DecodeDepositDestination(tx.Data())
	if err != nil {
		return tx, [32]byte{}, err
	}
	return tx, destination, nil
}
