package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/metrics"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

type WatchdogPallet interface {
	RequestAt(ctx context.Context, key types.TransactionKey) (*types.RequestEvent, error)
}

type WatchdogEvm interface {
	GetLockdown(ctx context.Context) (bool, error)
	DepositOf(ctx context.Context, hash common.Hash) (*ethTypes.Transaction, [32]byte, error)
}

type Trigger interface {
	Trigger(ctx context.Context, token string, reason string) error
}

// Watchdog recomputes settled amounts from their origin and locks the bridge down on mismatch
type Watchdog struct {
	pallet   WatchdogPallet
	evm      WatchdogEvm
	lockdown Trigger
	assetID  uint32
	token    string
	metrics  *metrics.Metrics
}

func NewWatchdog(palletChain WatchdogPallet, evmChain WatchdogEvm, lockdown Trigger, assetID uint32, token string, m *metrics.Metrics) *Watchdog {
	return &Watchdog{
		pallet:   palletChain,
		evm:      evmChain,
		lockdown: lockdown,
		assetID:  assetID,
		token:    token,
		metrics:  m,
	}
}

func (w *Watchdog) HandleEvent(ctx context.Context, event types.BridgeEvent) error {
	switch e := event.(type) {
	case *types.MintedEvent:
		return w.checkMinted(ctx, e)
	case *types.TransferEvent:
		return w.checkTransfer(ctx, e)
	}
	return nil
}

// checkMinted compares a pallet mint with the value of the evm deposit it settles
func (w *Watchdog) checkMinted(ctx context.Context, event *types.MintedEvent) error {
	if event.AssetID != w.assetID {
		return nil
	}
	lockdown, err := w.evm.GetLockdown(ctx)
	if err != nil {
		return err
	}
	if lockdown {
		log.Debug().Msg("[Watchdog] [checkMinted] router in lockdown, skip")
		return nil
	}
	if len(event.TransactionID) != common.HashLength {
		log.Warn().Str("txid", common.Bytes2Hex(event.TransactionID)).
			Msg("[Watchdog] [checkMinted] transaction id is not an evm hash")
		return nil
	}
	hash := common.BytesToHash(event.TransactionID)
	tx, destination, err := w.evm.DepositOf(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to load deposit %s: %w", hash.Hex(), err)
	}
	if types.AccountID(destination) != event.Recipient {
		log.Warn().Str("txHash", hash.Hex()).Str("recipient", event.Recipient.Hex()).
			Msg("[Watchdog] [checkMinted] recipient not equal to destination")
		return nil
	}
	if event.Amount.Cmp(tx.Value()) != 0 {
		return w.violation(ctx, event.Token, fmt.Sprintf("minted %s for deposit %s of value %s", event.Amount, hash.Hex(), tx.Value()))
	}
	log.Info().Str("txHash", hash.Hex()).Str("amount", event.Amount.String()).Msg("[Watchdog] [checkMinted] mint matches deposit")
	return nil
}

// checkTransfer compares a router payout with the pallet request it settles
func (w *Watchdog) checkTransfer(ctx context.Context, event *types.TransferEvent) error {
	key, err := types.KeyFromBytes32(event.TxID)
	if err != nil {
		return err
	}
	request, err := w.pallet.RequestAt(ctx, key)
	if err != nil {
		if errors.Is(err, types.ErrNotRequest) {
			log.Warn().Str("txid", key.Hex()).Msg("[Watchdog] [checkTransfer] no succeeded request at transaction id")
			return nil
		}
		return fmt.Errorf("failed to load request %s: %w", key.Hex(), err)
	}
	destination := types.DestinationAddress(request.Destination)
	if !common.IsHexAddress(destination) || common.HexToAddress(destination) != event.Recipient {
		log.Warn().Str("txid", key.Hex()).Str("recipient", event.Recipient.Hex()).Str("destination", destination).
			Msg("[Watchdog] [checkTransfer] recipient not equal to destination")
		return nil
	}
	total := new(big.Int)
	if event.WithdrawalFee != nil {
		total.Add(total, event.WithdrawalFee)
	}
	if event.Amount != nil {
		total.Add(total, event.Amount)
	}
	if request.Amount.Cmp(total) != 0 {
		token := request.Token
		if token == "" {
			token = w.token
		}
		return w.violation(ctx, token, fmt.Sprintf("requested %s but transferred %s", request.Amount, total))
	}
	log.Info().Str("txid", key.Hex()).Str("amount", total.String()).Msg("[Watchdog] [checkTransfer] transfer matches request")
	return nil
}

func (w *Watchdog) violation(ctx context.Context, token string, detail string) error {
	w.metrics.Violation()
	log.Error().Str("token", token).Msgf("[Watchdog] [violation] %s", detail)
	violation := fmt.Errorf("%w: %s", types.ErrConsistency, detail)
	if err := w.lockdown.Trigger(ctx, token, detail); err != nil {
		return errors.Join(violation, err)
	}
	return violation
}
