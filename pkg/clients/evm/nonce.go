package evm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out consecutive nonces for the accounts signing on this process.
// The first nonce of an account comes from the node pending state.
type NonceManager struct {
	source NonceSource
	mu     sync.Mutex
	nonces map[common.Address]uint64
}

func NewNonceManager(source NonceSource) *NonceManager {
	return &NonceManager{
		source: source,
		nonces: make(map[common.Address]uint64),
	}
}

func (m *NonceManager) Next(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonce, ok := m.nonces[account]
	if !ok {
		pending, err := m.source.PendingNonceAt(ctx, account)
		if err != nil {
			return 0, fmt.Errorf("failed to get pending nonce of %s: %w", account.Hex(), err)
		}
		nonce = pending
		log.Debug().Str("account", account.Hex()).Uint64("nonce", nonce).Msg("[NonceManager] [Next] seeded from node")
	}
	m.nonces[account] = nonce + 1
	return nonce, nil
}

// Reset drops the cached nonce, the next call reads the node again.
// Used when a transaction failed before it was broadcast.
func (m *NonceManager) Reset(account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nonces, account)
}
