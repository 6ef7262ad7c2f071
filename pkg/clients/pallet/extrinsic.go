package pallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/bitgreen/bridge-relayers/pkg/types"
)

const (
	CallMint        = "Bridge.mint"
	CallBurn        = "Bridge.burn"
	CallSetLockdown = "Bridge.set_lockdown"
	CallRequest     = "Bridge.request"
)

var (
	ErrExtrinsicRejected  = errors.New("extrinsic rejected by the pool")
	ErrSubscriptionClosed = errors.New("extrinsic status subscription closed")
)

// Outcome of a submitted extrinsic once it has been included in a block
type Outcome struct {
	Included      bool
	Success       bool
	BlockHash     gsrpc.Hash
	ExtrinsicHash gsrpc.Hash
	Err           *DispatchError
}

// TransferCall holds the arguments of the mint and burn calls
type TransferCall struct {
	Token         string
	Recipient     types.AccountID
	TransactionID []byte
	Amount        *big.Int
}

// RequestCall holds the arguments of a replayed bridge.request extrinsic
type RequestCall struct {
	Token       string
	Destination []byte
	Amount      *big.Int
}

type requestArgs struct {
	Token       gsrpc.Bytes
	Destination gsrpc.Bytes
	Amount      gsrpc.U128
}

func (c *Client) Mint(ctx context.Context, call TransferCall) (*Outcome, error) {
	return c.submit(ctx, CallMint, transferArgs(call)...)
}

func (c *Client) Burn(ctx context.Context, call TransferCall) (*Outcome, error) {
	return c.submit(ctx, CallBurn, transferArgs(call)...)
}

func (c *Client) SetLockdown(ctx context.Context, token string) (*Outcome, error) {
	return c.submit(ctx, CallSetLockdown, gsrpc.NewBytes([]byte(token)))
}

func transferArgs(call TransferCall) []any {
	amount := call.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return []any{
		gsrpc.NewBytes([]byte(call.Token)),
		gsrpc.AccountID(call.Recipient),
		gsrpc.NewBytes(call.TransactionID),
		gsrpc.NewU128(*amount),
	}
}

// nextIndex asks the node for the next account index, pending pool included
func (c *Client) nextIndex() (uint64, error) {
	var nonce uint64
	if err := c.api.Client.Call(&nonce, "system_accountNextIndex", c.keyring.Address); err != nil {
		return 0, fmt.Errorf("failed to get account next index: %w", err)
	}
	return nonce, nil
}

func (c *Client) sign(ext *gsrpc.Extrinsic) error {
	genesisHash, err := c.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return fmt.Errorf("failed to get genesis hash: %w", err)
	}
	runtimeVersion, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return fmt.Errorf("failed to get runtime version: %w", err)
	}
	nonce, err := c.nextIndex()
	if err != nil {
		return err
	}
	options := gsrpc.SignatureOptions{
		BlockHash:          genesisHash,
		Era:                gsrpc.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        genesisHash,
		Nonce:              gsrpc.NewUCompactFromUInt(nonce),
		SpecVersion:        runtimeVersion.SpecVersion,
		Tip:                gsrpc.NewUCompactFromUInt(0),
		TransactionVersion: runtimeVersion.TransactionVersion,
	}
	if err := ext.Sign(c.keyring, options); err != nil {
		return fmt.Errorf("failed to sign extrinsic: %w", err)
	}
	return nil
}

func extrinsicHash(ext gsrpc.Extrinsic) (gsrpc.Hash, error) {
	encoded, err := codec.Encode(ext)
	if err != nil {
		return gsrpc.Hash{}, fmt.Errorf("failed to encode extrinsic: %w", err)
	}
	return gsrpc.Hash(blake2b.Sum256(encoded)), nil
}

// submit signs and sends a call then waits until it is in a block
func (c *Client) submit(ctx context.Context, callName string, args ...any) (*Outcome, error) {
	call, err := gsrpc.NewCall(c.meta, callName, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create call %s: %w", callName, err)
	}
	ext := gsrpc.NewExtrinsic(call)

	c.submitMu.Lock()
	defer c.submitMu.Unlock()
	if err := c.sign(&ext); err != nil {
		return nil, err
	}
	hash, err := extrinsicHash(ext)
	if err != nil {
		return nil, err
	}
	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s: %w", callName, err)
	}
	defer sub.Unsubscribe()
	log.Info().Str("call", callName).Str("extrinsic", hash.Hex()).Msg("[PalletClient] [submit] extrinsic submitted")
	blockHash, err := AwaitInclusion(ctx, sub.Chan(), sub.Err())
	if errors.Is(err, ErrExtrinsicRejected) {
		return &Outcome{ExtrinsicHash: hash}, fmt.Errorf("%w: %s %s", ErrExtrinsicRejected, callName, hash.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("extrinsic %s: %w", hash.Hex(), err)
	}
	return c.outcomeIn(ctx, blockHash, hash)
}

// AwaitInclusion follows an extrinsic status stream until the extrinsic lands
// in a block and returns that block hash
func AwaitInclusion(ctx context.Context, statuses <-chan gsrpc.ExtrinsicStatus, errs <-chan error) (gsrpc.Hash, error) {
	for {
		select {
		case <-ctx.Done():
			return gsrpc.Hash{}, ctx.Err()
		case err, ok := <-errs:
			if !ok {
				return gsrpc.Hash{}, ErrSubscriptionClosed
			}
			return gsrpc.Hash{}, fmt.Errorf("subscription failed: %w", err)
		case status, ok := <-statuses:
			if !ok {
				return gsrpc.Hash{}, ErrSubscriptionClosed
			}
			switch {
			case status.IsInBlock:
				return status.AsInBlock, nil
			case status.IsFinalized:
				return status.AsFinalized, nil
			case status.IsDropped, status.IsInvalid, status.IsUsurped:
				return gsrpc.Hash{}, ErrExtrinsicRejected
			}
		}
	}
}

// outcomeIn locates the extrinsic inside blockHash and reads its phase events
func (c *Client) outcomeIn(ctx context.Context, blockHash gsrpc.Hash, hash gsrpc.Hash) (*Outcome, error) {
	outcome := &Outcome{Included: true, BlockHash: blockHash, ExtrinsicHash: hash}
	block, err := c.api.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return outcome, fmt.Errorf("failed to get block %s: %w", blockHash.Hex(), err)
	}
	index := -1
	for i, ext := range block.Block.Extrinsics {
		candidate, err := extrinsicHash(ext)
		if err == nil && bytes.Equal(candidate[:], hash[:]) {
			index = i
			break
		}
	}
	if index < 0 {
		return outcome, fmt.Errorf("extrinsic %s not found in block %s", hash.Hex(), blockHash.Hex())
	}
	records, err := c.EventsAtHash(ctx, blockHash)
	if err != nil {
		return outcome, err
	}
	for i := range records {
		record := &records[i]
		if !record.ApplyExtrinsic || record.Phase != uint32(index) {
			continue
		}
		switch {
		case record.Is(SectionSystem, MethodExtrinsicSuccess):
			outcome.Success = true
		case record.Is(SectionSystem, MethodExtrinsicFailed):
			value, _ := record.field(0)
			outcome.Err = DecodeDispatchError(c.meta, value)
		}
	}
	if outcome.Err != nil {
		log.Warn().Str("extrinsic", hash.Hex()).Str("error", outcome.Err.Error()).
			Msg("[PalletClient] [outcomeIn] extrinsic failed")
	}
	return outcome, nil
}

// RequestArgs replays the extrinsic at key and decodes its bridge.request arguments
func (c *Client) RequestArgs(ctx context.Context, key types.TransactionKey) (*RequestCall, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blockHash, err := c.api.RPC.Chain.GetBlockHash(key.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get block hash %d: %w", key.BlockNumber, err)
	}
	block, err := c.api.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", key.BlockNumber, err)
	}
	if int(key.Index) >= len(block.Block.Extrinsics) {
		return nil, fmt.Errorf("%w: block %d has no extrinsic %d", types.ErrNotRequest, key.BlockNumber, key.Index)
	}
	requestIndex, err := c.meta.FindCallIndex(CallRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to find call %s: %w", CallRequest, err)
	}
	return DecodeRequestCall(block.Block.Extrinsics[key.Index].Method, requestIndex)
}

// DecodeRequestCall decodes call when it is the bridge.request call at requestIndex
func DecodeRequestCall(call gsrpc.Call, requestIndex gsrpc.CallIndex) (*RequestCall, error) {
	if call.CallIndex != requestIndex {
		return nil, types.ErrNotRequest
	}
	var args requestArgs
	if err := codec.Decode(call.Args, &args); err != nil {
		return nil, fmt.Errorf("failed to decode request args: %w", err)
	}
	amount := new(big.Int)
	if args.Amount.Int != nil {
		amount.Set(args.Amount.Int)
	}
	return &RequestCall{
		Token:       string(args.Token),
		Destination: args.Destination,
		Amount:      amount,
	}, nil
}
