package monitor_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitgreen/bridge-relayers/pkg/clients/evm"
	"github.com/bitgreen/bridge-relayers/pkg/clients/evm/parser"
	"github.com/bitgreen/bridge-relayers/pkg/clients/pallet"
	"github.com/bitgreen/bridge-relayers/pkg/metrics"
	"github.com/bitgreen/bridge-relayers/pkg/monitor"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

var (
	router   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	watchdog = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	self     = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

type fakePallet struct {
	lockdowns []string
	setErr    error
	outcome   *pallet.Outcome
	lockdown  bool
	requests  map[types.TransactionKey]*types.RequestEvent
}

func (f *fakePallet) SetLockdown(ctx context.Context, token string) (*pallet.Outcome, error) {
	f.lockdowns = append(f.lockdowns, token)
	if f.setErr != nil {
		return nil, f.setErr
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &pallet.Outcome{Included: true, Success: true}, nil
}

func (f *fakePallet) Lockdown(ctx context.Context) (bool, error) {
	return f.lockdown, nil
}

func (f *fakePallet) RequestAt(ctx context.Context, key types.TransactionKey) (*types.RequestEvent, error) {
	request, ok := f.requests[key]
	if !ok {
		return nil, types.ErrNotRequest
	}
	return request, nil
}

type fakeEvm struct {
	lockdown  bool
	sent      []evm.TxParams
	sendErr   error
	deposits  map[common.Hash]*ethTypes.Transaction
	pending   map[common.Hash]*ethTypes.Transaction
	senders   map[common.Hash]common.Address
	watchdogs []common.Address
	block     uint64
}

func (f *fakeEvm) Account() common.Address { return self }

func (f *fakeEvm) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(20), nil
}

func (f *fakeEvm) SetLockdown(ctx context.Context, params evm.TxParams) (*ethTypes.Transaction, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, params)
	return ethTypes.NewTx(&ethTypes.DynamicFeeTx{Nonce: params.Nonce, To: &router}), nil
}

func (f *fakeEvm) GetLockdown(ctx context.Context) (bool, error) {
	return f.lockdown, nil
}

func (f *fakeEvm) DepositOf(ctx context.Context, hash common.Hash) (*ethTypes.Transaction, [32]byte, error) {
	tx, ok := f.deposits[hash]
	if !ok {
		return nil, [32]byte{}, errors.New("not found")
	}
	destination, err := parser.DecodeDepositDestination(tx.Data())
	return tx, destination, err
}

func (f *fakeEvm) GetWatchdogs(ctx context.Context) ([]common.Address, error) {
	return f.watchdogs, nil
}

func (f *fakeEvm) TransactionByHash(ctx context.Context, hash common.Hash) (*ethTypes.Transaction, error) {
	tx, ok := f.pending[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return tx, nil
}

func (f *fakeEvm) Sender(tx *ethTypes.Transaction) (common.Address, error) {
	return f.senders[tx.Hash()], nil
}

func (f *fakeEvm) BlockNumber(ctx context.Context) (uint64, error) {
	return f.block, nil
}

type fakeNonces struct {
	next   uint64
	resets int
}

func (f *fakeNonces) Next(ctx context.Context, account common.Address) (uint64, error) {
	nonce := f.next
	f.next++
	return nonce, nil
}

func (f *fakeNonces) Reset(account common.Address) {
	f.resets++
}

func TestLockdownTriggersBothChainsOnce(t *testing.T) {
	palletChain, evmChain, nonces := &fakePallet{}, &fakeEvm{}, &fakeNonces{next: 4}
	lockdown := monitor.NewLockdown(palletChain, evmChain, nonces, metrics.New("watchdog"))
	assert.False(t, lockdown.Triggered())

	require.NoError(t, lockdown.Trigger(context.Background(), "WETH", "mismatch"))
	require.NoError(t, lockdown.Trigger(context.Background(), "WETH", "again"))

	assert.True(t, lockdown.Triggered())
	assert.Equal(t, []string{"WETH"}, palletChain.lockdowns)
	require.Len(t, evmChain.sent, 1)
	assert.Equal(t, uint64(4), evmChain.sent[0].Nonce)
	assert.Equal(t, int64(20), evmChain.sent[0].GasPrice.Int64())
	state, reason := lockdown.State()
	assert.Equal(t, monitor.StateLockdownTriggered, state)
	assert.Equal(t, "mismatch", reason)
}

func TestLockdownIsBestEffort(t *testing.T) {
	palletChain := &fakePallet{setErr: errors.New("pool full")}
	evmChain := &fakeEvm{sendErr: errors.New("underpriced")}
	nonces := &fakeNonces{}
	lockdown := monitor.NewLockdown(palletChain, evmChain, nonces, nil)

	err := lockdown.Trigger(context.Background(), "BBB", "mismatch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool full")
	assert.Contains(t, err.Error(), "underpriced")
	assert.Equal(t, 1, nonces.resets)
	assert.True(t, lockdown.Triggered())
}

func TestLockdownReportsFailedPalletExtrinsic(t *testing.T) {
	palletChain := &fakePallet{outcome: &pallet.Outcome{Included: true, Success: false}}
	evmChain := &fakeEvm{}
	lockdown := monitor.NewLockdown(palletChain, evmChain, &fakeNonces{}, nil)

	err := lockdown.Trigger(context.Background(), "BBB", "mismatch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pallet set_lockdown")
	assert.Contains(t, err.Error(), "did not succeed")
	assert.Len(t, evmChain.sent, 1)
	assert.True(t, lockdown.Triggered())
}

func TestLockdownSyncObservesChain(t *testing.T) {
	evmChain := &fakeEvm{}
	lockdown := monitor.NewLockdown(&fakePallet{}, evmChain, &fakeNonces{}, nil)
	require.NoError(t, lockdown.Sync(context.Background()))
	assert.False(t, lockdown.Triggered())

	evmChain.lockdown = true
	require.NoError(t, lockdown.Sync(context.Background()))
	assert.True(t, lockdown.Triggered())

	evmChain.lockdown = false
	require.NoError(t, lockdown.Sync(context.Background()))
	assert.True(t, lockdown.Triggered())
}

func accountOf(b byte) types.AccountID {
	var id types.AccountID
	for i := range id {
		id[i] = b
	}
	return id
}

func depositTx(t *testing.T, recipient types.AccountID, value int64) *ethTypes.Transaction {
	data, err := parser.PackDeposit(recipient)
	require.NoError(t, err)
	return ethTypes.NewTx(&ethTypes.LegacyTx{To: &router, Value: big.NewInt(value), Data: data})
}

func minted(hash common.Hash, recipient types.AccountID, amount int64) *types.MintedEvent {
	return &types.MintedEvent{
		EventMeta: types.EventMeta{Chain: types.ChainPallet, Success: true},
		Transfer: types.Transfer{
			AssetID:       1,
			Recipient:     recipient,
			Amount:        big.NewInt(amount),
			TransactionID: hash.Bytes(),
			Token:         "WETH",
		},
	}
}

type watchdogFixture struct {
	pallet   *fakePallet
	evm      *fakeEvm
	lockdown *monitor.Lockdown
	watchdog *monitor.Watchdog
}

func newWatchdogFixture() *watchdogFixture {
	f := &watchdogFixture{
		pallet: &fakePallet{requests: map[types.TransactionKey]*types.RequestEvent{}},
		evm:    &fakeEvm{deposits: map[common.Hash]*ethTypes.Transaction{}},
	}
	f.lockdown = monitor.NewLockdown(f.pallet, f.evm, &fakeNonces{}, nil)
	f.watchdog = monitor.NewWatchdog(f.pallet, f.evm, f.lockdown, 1, "BBB", metrics.New("watchdog"))
	return f
}

func TestWatchdogLocksDownOnMintMismatch(t *testing.T) {
	f := newWatchdogFixture()
	tx := depositTx(t, accountOf(7), 68)
	f.evm.deposits[tx.Hash()] = tx

	err := f.watchdog.HandleEvent(context.Background(), minted(tx.Hash(), accountOf(7), 70))
	require.ErrorIs(t, err, types.ErrConsistency)
	assert.True(t, types.IsFatal(err))
	assert.True(t, f.lockdown.Triggered())
	assert.Equal(t, []string{"WETH"}, f.pallet.lockdowns)
	assert.Len(t, f.evm.sent, 1)
}

func TestWatchdogAcceptsMatchingMint(t *testing.T) {
	f := newWatchdogFixture()
	tx := depositTx(t, accountOf(7), 68)
	f.evm.deposits[tx.Hash()] = tx

	require.NoError(t, f.watchdog.HandleEvent(context.Background(), minted(tx.Hash(), accountOf(7), 68)))
	assert.False(t, f.lockdown.Triggered())
}

func TestWatchdogOnlyWarnsOnRecipientMismatch(t *testing.T) {
	f := newWatchdogFixture()
	tx := depositTx(t, accountOf(7), 68)
	f.evm.deposits[tx.Hash()] = tx

	require.NoError(t, f.watchdog.HandleEvent(context.Background(), minted(tx.Hash(), accountOf(8), 70)))
	assert.False(t, f.lockdown.Triggered())
}

func TestWatchdogSkipsMintDuringLockdown(t *testing.T) {
	f := newWatchdogFixture()
	f.evm.lockdown = true

	require.NoError(t, f.watchdog.HandleEvent(context.Background(), minted(common.HexToHash("0x01"), accountOf(7), 70)))
	assert.Empty(t, f.pallet.lockdowns)
}

func transferEvent(key types.TransactionKey, recipient common.Address, amount, fee int64) *types.TransferEvent {
	return &types.TransferEvent{
		EventMeta:     types.EventMeta{Chain: types.ChainEvm, Success: true},
		TxID:          key.Bytes32(),
		Recipient:     recipient,
		Amount:        big.NewInt(amount),
		WithdrawalFee: big.NewInt(fee),
	}
}

func TestWatchdogChecksTransferAgainstRequest(t *testing.T) {
	recipient := common.HexToAddress("0x0b6ac598cae6d1ef48ac79ff34975f890dc677d9")
	key := types.NewTransactionKey(types.ChainPallet, 100, 2)

	f := newWatchdogFixture()
	f.pallet.requests[key] = &types.RequestEvent{Token: "BBB", Destination: recipient.Bytes(), Amount: big.NewInt(70)}
	require.NoError(t, f.watchdog.HandleEvent(context.Background(), transferEvent(key, recipient, 68, 2)))
	assert.False(t, f.lockdown.Triggered())

	f = newWatchdogFixture()
	f.pallet.requests[key] = &types.RequestEvent{Token: "BBB", Destination: recipient.Bytes(), Amount: big.NewInt(70)}
	err := f.watchdog.HandleEvent(context.Background(), transferEvent(key, recipient, 70, 2))
	require.ErrorIs(t, err, types.ErrConsistency)
	assert.Equal(t, []string{"BBB"}, f.pallet.lockdowns)
}

func TestWatchdogIgnoresTransferWithoutRequest(t *testing.T) {
	f := newWatchdogFixture()
	key := types.NewTransactionKey(types.ChainPallet, 5, 1)

	require.NoError(t, f.watchdog.HandleEvent(context.Background(), transferEvent(key, watchdog, 1, 0)))
	assert.False(t, f.lockdown.Triggered())
}

func setLockdownTx(t *testing.T, nonce uint64, feeCap, tip int64) *ethTypes.Transaction {
	data, err := parser.GetRouterAbi().Pack(parser.MethodSetLockdown)
	require.NoError(t, err)
	return ethTypes.NewTx(&ethTypes.DynamicFeeTx{
		Nonce:     nonce,
		To:        &router,
		Gas:       60_000,
		GasFeeCap: big.NewInt(feeCap),
		GasTipCap: big.NewInt(tip),
		Data:      data,
	})
}

func newWatchcatChain(txs ...*ethTypes.Transaction) *fakeEvm {
	chain := &fakeEvm{
		pending:   map[common.Hash]*ethTypes.Transaction{},
		senders:   map[common.Hash]common.Address{},
		watchdogs: []common.Address{watchdog},
		block:     10,
	}
	for _, tx := range txs {
		chain.pending[tx.Hash()] = tx
		chain.senders[tx.Hash()] = watchdog
	}
	return chain
}

func TestWatchcatTracksHighestFeeCap(t *testing.T) {
	low, high := setLockdownTx(t, 1, 100, 5), setLockdownTx(t, 2, 200, 7)
	chain := newWatchcatChain(low, high)
	watchcat := monitor.NewWatchcat(chain, &fakeNonces{}, router, 1)
	ctx := context.Background()

	require.NoError(t, watchcat.HandlePending(ctx, low.Hash()))
	assert.Equal(t, low.Hash(), watchcat.Entry().Hash)

	require.NoError(t, watchcat.HandlePending(ctx, high.Hash()))
	assert.Equal(t, high.Hash(), watchcat.Entry().Hash)

	require.NoError(t, watchcat.HandlePending(ctx, low.Hash()))
	entry := watchcat.Entry()
	assert.Equal(t, high.Hash(), entry.Hash)
	assert.Equal(t, uint64(10), entry.Seen)
	assert.Equal(t, uint64(60_000), entry.Gas)
}

func TestWatchcatIgnoresOtherTransactions(t *testing.T) {
	stranger := setLockdownTx(t, 1, 100, 5)
	chain := newWatchcatChain(stranger)
	chain.senders[stranger.Hash()] = self
	transfer := ethTypes.NewTx(&ethTypes.DynamicFeeTx{Nonce: 3, To: &router, GasFeeCap: big.NewInt(1), GasTipCap: big.NewInt(1), Data: []byte{1, 2, 3, 4}})
	chain.pending[transfer.Hash()] = transfer
	chain.senders[transfer.Hash()] = watchdog
	watchcat := monitor.NewWatchcat(chain, &fakeNonces{}, router, 1)

	require.NoError(t, watchcat.HandlePending(context.Background(), stranger.Hash()))
	require.NoError(t, watchcat.HandlePending(context.Background(), transfer.Hash()))
	require.NoError(t, watchcat.HandlePending(context.Background(), common.HexToHash("0x99")))
	assert.Nil(t, watchcat.Entry())
}

func TestWatchcatOutbidsStuckLockdown(t *testing.T) {
	tracked := setLockdownTx(t, 1, 100, 5)
	chain := newWatchcatChain(tracked)
	nonces := &fakeNonces{next: 12}
	watchcat := monitor.NewWatchcat(chain, nonces, router, 2)
	ctx := context.Background()
	require.NoError(t, watchcat.HandlePending(ctx, tracked.Hash()))

	tx, err := watchcat.HandleHead(ctx, 11)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Empty(t, chain.sent)

	tx, err = watchcat.HandleHead(ctx, 12)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Len(t, chain.sent, 1)
	params := chain.sent[0]
	assert.Equal(t, uint64(12), params.Nonce)
	assert.Equal(t, int64(10), params.GasTipCap.Int64())
	assert.Equal(t, int64(105), params.GasFeeCap.Int64())
	assert.Equal(t, uint64(60_000), params.GasLimit)
	assert.Nil(t, params.GasPrice)
	assert.Nil(t, watchcat.Entry())
}

func TestWatchcatClearsOnLockdown(t *testing.T) {
	tracked := setLockdownTx(t, 1, 100, 5)
	chain := newWatchcatChain(tracked)
	watchcat := monitor.NewWatchcat(chain, &fakeNonces{}, router, 1)
	require.NoError(t, watchcat.HandlePending(context.Background(), tracked.Hash()))

	chain.lockdown = true
	tx, err := watchcat.HandleHead(context.Background(), 20)
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Empty(t, chain.sent)
	assert.Nil(t, watchcat.Entry())
}
