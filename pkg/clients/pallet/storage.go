package pallet

import (
	"context"
	"fmt"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/bitgreen/bridge-relayers/pkg/types"
)

const (
	StoragePrefix = "Bridge"

	StorageSettings               = "Settings"
	StorageMintConfirmation       = "MintConfirmation"
	StorageBurnConfirmation       = "BurnConfirmation"
	StorageMintCounter            = "MintCounter"
	StorageBurnCounter            = "BurnCounter"
	StorageTransactionMintTracker = "TransactionMintTracker"
	StorageTransactionBurnTracker = "TransactionBurnTracker"
	StorageLockdown               = "Lockdown"
)

// ConfirmationKey is the key the pallet stores counters and confirmations under:
// token '-' recipient '-' transaction_id
func ConfirmationKey(token string, recipient []byte, transactionID []byte) []byte {
	key := make([]byte, 0, len(token)+len(recipient)+len(transactionID)+2)
	key = append(key, token...)
	key = append(key, '-')
	key = append(key, recipient...)
	key = append(key, '-')
	key = append(key, transactionID...)
	return key
}

func encodeBytesKey(bz []byte) ([]byte, error) {
	encoded, err := codec.Encode(gsrpc.NewBytes(bz))
	if err != nil {
		return nil, fmt.Errorf("failed to encode storage key: %w", err)
	}
	return encoded, nil
}

// read fetches a storage item, ok is false when the item is empty
func (c *Client) read(ctx context.Context, method string, target any, args ...[]byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key, err := gsrpc.CreateStorageKey(c.meta, StoragePrefix, method, args...)
	if err != nil {
		return false, fmt.Errorf("failed to create storage key %s.%s: %w", StoragePrefix, method, err)
	}
	ok, err := c.api.RPC.State.GetStorageLatest(key, target)
	if err != nil {
		return false, fmt.Errorf("failed to read %s.%s: %w", StoragePrefix, method, err)
	}
	return ok, nil
}

func (c *Client) Settings(ctx context.Context, token string) (*types.BridgeSettings, error) {
	key, err := encodeBytesKey([]byte(token))
	if err != nil {
		return nil, err
	}
	var raw gsrpc.Bytes
	ok, err := c.read(ctx, StorageSettings, &raw, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("settings of token %s not found", token)
	}
	return types.ParseBridgeSettings(raw)
}

func (c *Client) readBool(ctx context.Context, method string, key []byte) (bool, error) {
	encoded, err := encodeBytesKey(key)
	if err != nil {
		return false, err
	}
	var value gsrpc.Bool
	if _, err := c.read(ctx, method, &value, encoded); err != nil {
		return false, err
	}
	return bool(value), nil
}

func (c *Client) readCounter(ctx context.Context, method string, key []byte) (uint64, error) {
	encoded, err := encodeBytesKey(key)
	if err != nil {
		return 0, err
	}
	var value gsrpc.U32
	if _, err := c.read(ctx, method, &value, encoded); err != nil {
		return 0, err
	}
	return uint64(value), nil
}

func (c *Client) MintConfirmation(ctx context.Context, key []byte) (bool, error) {
	return c.readBool(ctx, StorageMintConfirmation, key)
}

func (c *Client) BurnConfirmation(ctx context.Context, key []byte) (bool, error) {
	return c.readBool(ctx, StorageBurnConfirmation, key)
}

func (c *Client) MintCounter(ctx context.Context, key []byte) (uint64, error) {
	return c.readCounter(ctx, StorageMintCounter, key)
}

func (c *Client) BurnCounter(ctx context.Context, key []byte) (uint64, error) {
	return c.readCounter(ctx, StorageBurnCounter, key)
}

func (c *Client) readTracker(ctx context.Context, method string, transactionID []byte, account types.AccountID) (uint64, error) {
	txKey, err := encodeBytesKey(transactionID)
	if err != nil {
		return 0, err
	}
	var value gsrpc.U32
	if _, err := c.read(ctx, method, &value, txKey, account.Bytes()); err != nil {
		return 0, err
	}
	return uint64(value), nil
}

func (c *Client) TransactionMintTracker(ctx context.Context, transactionID []byte, account types.AccountID) (uint64, error) {
	return c.readTracker(ctx, StorageTransactionMintTracker, transactionID, account)
}

func (c *Client) TransactionBurnTracker(ctx context.Context, transactionID []byte, account types.AccountID) (uint64, error) {
	return c.readTracker(ctx, StorageTransactionBurnTracker, transactionID, account)
}

func (c *Client) Lockdown(ctx context.Context) (bool, error) {
	var value gsrpc.Bool
	if _, err := c.read(ctx, StorageLockdown, &value); err != nil {
		return false, err
	}
	return bool(value), nil
}
