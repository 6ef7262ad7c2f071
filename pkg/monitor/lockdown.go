package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/clients/evm"
	"github.com/bitgreen/bridge-relayers/pkg/clients/pallet"
	"github.com/bitgreen/bridge-relayers/pkg/metrics"
)

type State int

const (
	StateOK State = iota
	StateLockdownTriggered
)

func (s State) String() string {
	if s == StateLockdownTriggered {
		return "LOCKDOWN_TRIGGERED"
	}
	return "OK"
}

type PalletLockdown interface {
	SetLockdown(ctx context.Context, token string) (*pallet.Outcome, error)
	Lockdown(ctx context.Context) (bool, error)
}

type EvmLockdown interface {
	Account() common.Address
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SetLockdown(ctx context.Context, params evm.TxParams) (*ethTypes.Transaction, error)
	GetLockdown(ctx context.Context) (bool, error)
}

type Nonces interface {
	Next(ctx context.Context, account common.Address) (uint64, error)
	Reset(account common.Address)
}

// Lockdown halts the bridge on both chains. The state only moves forward:
// once triggered or observed it stays triggered for the life of the process.
type Lockdown struct {
	pallet  PalletLockdown
	evm     EvmLockdown
	nonces  Nonces
	metrics *metrics.Metrics

	mu     sync.RWMutex
	state  State
	reason string
}

func NewLockdown(palletChain PalletLockdown, evmChain EvmLockdown, nonces Nonces, m *metrics.Metrics) *Lockdown {
	return &Lockdown{
		pallet:  palletChain,
		evm:     evmChain,
		nonces:  nonces,
		metrics: m,
	}
}

func (l *Lockdown) Triggered() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateLockdownTriggered
}

func (l *Lockdown) State() (State, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state, l.reason
}

// enter returns false when the state was already triggered
func (l *Lockdown) enter(reason string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateLockdownTriggered {
		return false
	}
	l.state = StateLockdownTriggered
	l.reason = reason
	l.metrics.Lockdown()
	return true
}

// Trigger submits set_lockdown on the pallet and setLockdown on the router.
// Both submissions are attempted, their errors are joined. A second call is a no-op.
func (l *Lockdown) Trigger(ctx context.Context, token string, reason string) error {
	if !l.enter(reason) {
		log.Debug().Str("reason", reason).Msg("[Lockdown] [Trigger] already triggered")
		return nil
	}
	log.Error().Str("token", token).Str("reason", reason).Msg("[Lockdown] [Trigger] triggering lockdown on both chains")

	var errs []error
	if outcome, err := l.pallet.SetLockdown(ctx, token); err != nil {
		errs = append(errs, fmt.Errorf("pallet set_lockdown: %w", err))
	} else if !outcome.Success {
		var failure error = fmt.Errorf("extrinsic %s did not succeed", outcome.ExtrinsicHash.Hex())
		if outcome.Err != nil {
			failure = outcome.Err
		}
		errs = append(errs, fmt.Errorf("pallet set_lockdown: %w", failure))
	} else {
		log.Warn().Str("extrinsic", outcome.ExtrinsicHash.Hex()).Msg("[Lockdown] [Trigger] pallet set_lockdown included")
	}
	if err := l.sendEvm(ctx); err != nil {
		errs = append(errs, fmt.Errorf("evm setLockdown: %w", err))
	}
	return errors.Join(errs...)
}

func (l *Lockdown) sendEvm(ctx context.Context) error {
	account := l.evm.Account()
	nonce, err := l.nonces.Next(ctx, account)
	if err != nil {
		return err
	}
	gasPrice, err := l.evm.SuggestGasPrice(ctx)
	if err != nil {
		l.nonces.Reset(account)
		return err
	}
	tx, err := l.evm.SetLockdown(ctx, evm.TxParams{Nonce: nonce, GasPrice: gasPrice})
	if err != nil {
		l.nonces.Reset(account)
		return err
	}
	log.Warn().Str("txHash", tx.Hash().Hex()).Msg("[Lockdown] [sendEvm] setLockdown sent")
	return nil
}

// Sync reads the lockdown flag of both chains and enters the triggered state
// when either of them is set
func (l *Lockdown) Sync(ctx context.Context) error {
	if l.Triggered() {
		return nil
	}
	evmLockdown, err := l.evm.GetLockdown(ctx)
	if err != nil {
		return err
	}
	palletLockdown, err := l.pallet.Lockdown(ctx)
	if err != nil {
		return err
	}
	if evmLockdown || palletLockdown {
		if l.enter("observed on chain") {
			log.Warn().Bool("evm", evmLockdown).Bool("pallet", palletLockdown).
				Msg("[Lockdown] [Sync] lockdown observed, relaying stops")
		}
	}
	return nil
}
