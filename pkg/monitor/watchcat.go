package monitor

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/clients/evm"
	"github.com/bitgreen/bridge-relayers/pkg/clients/evm/parser"
)

type WatchcatChain interface {
	Account() common.Address
	GetLockdown(ctx context.Context) (bool, error)
	GetWatchdogs(ctx context.Context) ([]common.Address, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethTypes.Transaction, error)
	Sender(tx *ethTypes.Transaction) (common.Address, error)
	BlockNumber(ctx context.Context) (uint64, error)
	SetLockdown(ctx context.Context, params evm.TxParams) (*ethTypes.Transaction, error)
}

// Surveillance is the watchdog setLockdown transaction waiting in the mempool
type Surveillance struct {
	Hash      common.Hash
	Seen      uint64
	Gas       uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Watchcat follows the watchdogs setLockdown transactions and pushes its own
// with a higher priority fee when theirs stay pending
type Watchcat struct {
	chain          WatchcatChain
	nonces         Nonces
	router         common.Address
	blockThreshold uint64

	mu    sync.Mutex
	entry *Surveillance
}

func NewWatchcat(chain WatchcatChain, nonces Nonces, router common.Address, blockThreshold uint64) *Watchcat {
	if blockThreshold == 0 {
		blockThreshold = 1
	}
	return &Watchcat{
		chain:          chain,
		nonces:         nonces,
		router:         router,
		blockThreshold: blockThreshold,
	}
}

// Entry returns a copy of the tracked transaction, nil when nothing is tracked
func (w *Watchcat) Entry() *Surveillance {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entry == nil {
		return nil
	}
	entry := *w.entry
	return &entry
}

func (w *Watchcat) clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entry = nil
}

func (w *Watchcat) HandlePending(ctx context.Context, hash common.Hash) error {
	lockdown, err := w.chain.GetLockdown(ctx)
	if err != nil {
		return err
	}
	if lockdown {
		w.clear()
		return nil
	}
	tx, err := w.chain.TransactionByHash(ctx, hash)
	if err != nil {
		// already mined or dropped
		log.Debug().Err(err).Str("txHash", hash.Hex()).Msg("[Watchcat] [HandlePending] transaction not found")
		return nil
	}
	if tx.To() == nil || *tx.To() != w.router || !parser.IsSetLockdownCall(tx.Data()) {
		return nil
	}
	from, err := w.chain.Sender(tx)
	if err != nil {
		return fmt.Errorf("failed to recover sender of %s: %w", hash.Hex(), err)
	}
	watchdogs, err := w.chain.GetWatchdogs(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(watchdogs, from) {
		return nil
	}
	number, err := w.chain.BlockNumber(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entry != nil && w.entry.GasFeeCap.Cmp(tx.GasFeeCap()) >= 0 {
		return nil
	}
	w.entry = &Surveillance{
		Hash:      hash,
		Seen:      number,
		Gas:       tx.Gas(),
		GasFeeCap: new(big.Int).Set(tx.GasFeeCap()),
		GasTipCap: new(big.Int).Set(tx.GasTipCap()),
	}
	log.Warn().Str("txHash", hash.Hex()).Str("watchdog", from.Hex()).Uint64("seen", number).
		Msg("[Watchcat] [HandlePending] watchdog setLockdown under surveillance")
	return nil
}

// HandleHead sends the own setLockdown once the tracked one has been pending for blockThreshold blocks.
// The returned transaction is nil when nothing was sent.
func (w *Watchcat) HandleHead(ctx context.Context, number uint64) (*ethTypes.Transaction, error) {
	entry := w.Entry()
	if entry == nil {
		return nil, nil
	}
	lockdown, err := w.chain.GetLockdown(ctx)
	if err != nil {
		return nil, err
	}
	if lockdown {
		log.Info().Str("txHash", entry.Hash.Hex()).Msg("[Watchcat] [HandleHead] lockdown set, surveillance cleared")
		w.clear()
		return nil, nil
	}
	if number < entry.Seen || number-entry.Seen < w.blockThreshold {
		return nil, nil
	}
	tip := new(big.Int).Mul(entry.GasTipCap, big.NewInt(2))
	feeCap := new(big.Int).Add(entry.GasFeeCap, entry.GasTipCap)
	if feeCap.Cmp(tip) < 0 {
		feeCap.Set(tip)
	}
	account := w.chain.Account()
	nonce, err := w.nonces.Next(ctx, account)
	if err != nil {
		return nil, err
	}
	tx, err := w.chain.SetLockdown(ctx, evm.TxParams{
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		GasLimit:  entry.Gas,
	})
	if err != nil {
		w.nonces.Reset(account)
		return nil, err
	}
	w.clear()
	log.Warn().Str("txHash", tx.Hash().Hex()).Str("tracked", entry.Hash.Hex()).Str("tip", tip.String()).
		Msg("[Watchcat] [HandleHead] own setLockdown sent")
	return tx, nil
}
