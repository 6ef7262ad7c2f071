package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/bitgreen/bridge-relayers/pkg/clients/evm"
	"github.com/bitgreen/bridge-relayers/pkg/clients/pallet"
	"github.com/bitgreen/bridge-relayers/pkg/db/models"
	"github.com/bitgreen/bridge-relayers/pkg/metrics"
	"github.com/bitgreen/bridge-relayers/pkg/threshold"
	"github.com/bitgreen/bridge-relayers/pkg/tracing"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

const (
	ActionPalletMint  = "pallet.mint"
	ActionPalletBurn  = "pallet.burn"
	ActionEvmTransfer = "evm.transfer"
)

type PalletChain interface {
	Account() types.AccountID
	Mint(ctx context.Context, call pallet.TransferCall) (*pallet.Outcome, error)
	Burn(ctx context.Context, call pallet.TransferCall) (*pallet.Outcome, error)
	RequestArgs(ctx context.Context, key types.TransactionKey) (*pallet.RequestCall, error)
}

type EvmChain interface {
	Account() common.Address
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Transfer(ctx context.Context, params evm.TxParams, args evm.TransferArgs) (*ethTypes.Transaction, error)
	WaitMined(ctx context.Context, tx *ethTypes.Transaction) (*ethTypes.Receipt, error)
}

type Nonces interface {
	Next(ctx context.Context, account common.Address) (uint64, error)
	Reset(account common.Address)
}

type LockdownState interface {
	Triggered() bool
}

type Recorder interface {
	RecordRelay(ctx context.Context, record *models.RelayRecord) error
}

type Ledgers struct {
	Mint threshold.Ledger
	Burn threshold.Ledger
	Evm  threshold.Ledger
}

type Options struct {
	Process   string
	MintToken string
	AssetID   uint32
	QueueMode bool
}

// Dispatcher turns bridge events into the mirrored action on the other chain
type Dispatcher struct {
	opts     Options
	pallet   PalletChain
	evm      EvmChain
	nonces   Nonces
	ledgers  Ledgers
	tracker  *threshold.Tracker
	lockdown LockdownState
	recorder Recorder
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Dispatcher)

func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) { d.recorder = recorder }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLockdown(lockdown LockdownState) Option {
	return func(d *Dispatcher) { d.lockdown = lockdown }
}

func New(opts Options, palletChain PalletChain, evmChain EvmChain, nonces Nonces, ledgers Ledgers, options ...Option) *Dispatcher {
	if opts.Process == "" {
		opts.Process = "keeper"
	}
	d := &Dispatcher{
		opts:    opts,
		pallet:  palletChain,
		evm:     evmChain,
		nonces:  nonces,
		ledgers: ledgers,
		tracker: threshold.NewTracker(),
		tracer:  tracing.Tracer("dispatcher"),
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// IsValidDestination accepts what web3 isAddress accepts: 40 hex chars,
// mixed case only with a valid checksum
func IsValidDestination(destination string) bool {
	if !common.IsHexAddress(destination) {
		return false
	}
	body := destination
	if len(body) >= 2 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		body = body[2:]
	}
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return ethav.Validate("0x"+body) == nil
}

// Handle dispatches one event. Errors are returned to the relay loop which logs
// them and drops the event, unless they are fatal.
func (d *Dispatcher) Handle(ctx context.Context, event types.BridgeEvent) error {
	meta := event.Meta()
	ctx, span := d.tracer.Start(ctx, "dispatch."+event.Kind().String(),
		trace.WithAttributes(tracing.EventAttributes(event.Kind().String(), string(meta.Chain), meta.Position.BlockNumber, meta.Position.Index)...))
	var err error
	switch e := event.(type) {
	case *types.MintQueuedEvent:
		err = d.handleQueued(ctx, e, e.Transfer, ActionPalletMint)
	case *types.BurnQueuedEvent:
		err = d.handleQueued(ctx, e, e.Transfer, ActionPalletBurn)
	case *types.RequestEvent:
		err = d.handleRequest(ctx, e)
	case *types.BurnedEvent:
		err = d.handleBurned(ctx, e)
	case *types.TransferQueuedEvent:
		if !d.opts.QueueMode {
			log.Debug().Str("txHash", e.TxHash.Hex()).Msg("[Dispatcher] [Handle] queue mode off, skip BridgeTransferQueued")
			break
		}
		err = d.handleDeposit(ctx, e, e.Deposit)
	case *types.DepositRequestEvent:
		err = d.handleDeposit(ctx, e, e.Deposit)
	default:
		log.Debug().Str("event", event.Kind().String()).Msg("[Dispatcher] [Handle] no action")
	}
	tracing.End(span, err)
	return err
}

func (d *Dispatcher) checkLockdown() error {
	if d.lockdown != nil && d.lockdown.Triggered() {
		return types.ErrLockdown
	}
	return nil
}

// handleQueued mirrors a queued pallet transfer with this keeper's own vote
func (d *Dispatcher) handleQueued(ctx context.Context, event types.BridgeEvent, transfer types.Transfer, action string) error {
	if transfer.Signer == d.pallet.Account() {
		log.Debug().Str("event", event.Kind().String()).Msg("[Dispatcher] [handleQueued] own vote, skip")
		return nil
	}
	call := pallet.TransferCall{
		Token:         transfer.Token,
		Recipient:     transfer.Recipient,
		TransactionID: transfer.TransactionID,
		Amount:        transfer.Amount,
	}
	return d.submitPallet(ctx, event, action, call)
}

func (d *Dispatcher) handleRequest(ctx context.Context, event *types.RequestEvent) error {
	destination := types.DestinationAddress(event.Destination)
	if !IsValidDestination(destination) {
		d.record(ctx, event, ActionPalletBurn, models.RelayStatusSkipped, "invalid_destination", "", event.Amount, nil)
		return fmt.Errorf("%w: %q", types.ErrInvalidDestination, destination)
	}
	key := event.TransactionKey()
	call := pallet.TransferCall{
		Token:         event.Token,
		Recipient:     event.Signer,
		TransactionID: key.Bytes(),
		Amount:        event.Amount,
	}
	return d.submitPallet(ctx, event, ActionPalletBurn, call)
}

func (d *Dispatcher) handleDeposit(ctx context.Context, event types.BridgeEvent, deposit types.Deposit) error {
	call := pallet.TransferCall{
		Token:         d.opts.MintToken,
		Recipient:     types.AccountID(deposit.Destination),
		TransactionID: event.Meta().TxHash.Bytes(),
		Amount:        deposit.Amount,
	}
	return d.submitPallet(ctx, event, ActionPalletMint, call)
}

func (d *Dispatcher) submitPallet(ctx context.Context, event types.BridgeEvent, action string, call pallet.TransferCall) error {
	ledger := d.ledgers.Mint
	submit := d.pallet.Mint
	if action == ActionPalletBurn {
		ledger = d.ledgers.Burn
		submit = d.pallet.Burn
	}
	self := d.pallet.Account()
	ballot := threshold.Ballot{
		Token:         call.Token,
		Recipient:     call.Recipient.Bytes(),
		TransactionID: call.TransactionID,
		Voter:         self.Bytes(),
	}
	decision, err := d.tracker.Decide(ctx, ledger, ballot)
	if err != nil {
		d.record(ctx, event, action, models.RelayStatusFailed, "", "", call.Amount, err)
		return fmt.Errorf("failed to decide %s: %w", action, err)
	}
	if !decision.Act {
		log.Info().Str("event", event.Kind().String()).Str("reason", string(decision.Reason)).
			Msgf("[Dispatcher] [submitPallet] skip %s", action)
		d.record(ctx, event, action, models.RelayStatusSkipped, string(decision.Reason), "", call.Amount, nil)
		return nil
	}
	if err := d.checkLockdown(); err != nil {
		return err
	}
	outcome, err := submit(ctx, call)
	if err == nil && !outcome.Success {
		if outcome.Err != nil {
			err = outcome.Err
		} else {
			err = fmt.Errorf("extrinsic %s did not succeed", outcome.ExtrinsicHash.Hex())
		}
	}
	txHash := ""
	if outcome != nil {
		txHash = outcome.ExtrinsicHash.Hex()
	}
	if err != nil {
		d.record(ctx, event, action, models.RelayStatusFailed, "", txHash, call.Amount, err)
		return fmt.Errorf("%s failed: %w", action, err)
	}
	log.Info().Str("event", event.Kind().String()).Str("extrinsic", txHash).
		Str("amount", call.Amount.String()).Msgf("[Dispatcher] [submitPallet] %s included", action)
	d.record(ctx, event, action, models.RelayStatusSubmitted, string(decision.Reason), txHash, call.Amount, nil)
	return nil
}

// handleBurned pays out a pallet burn on the evm router
func (d *Dispatcher) handleBurned(ctx context.Context, event *types.BurnedEvent) error {
	if event.AssetID != d.opts.AssetID {
		log.Debug().Uint32("assetId", event.AssetID).Msg("[Dispatcher] [handleBurned] other asset, skip")
		return nil
	}
	key, err := types.TransactionKeyFromBytes(event.TransactionID)
	if err != nil {
		d.record(ctx, event, ActionEvmTransfer, models.RelayStatusFailed, "", "", event.Amount, err)
		return fmt.Errorf("invalid burn transaction id: %w", err)
	}
	request, err := d.pallet.RequestArgs(ctx, key)
	if err != nil {
		d.record(ctx, event, ActionEvmTransfer, models.RelayStatusFailed, "", "", event.Amount, err)
		return fmt.Errorf("failed to replay request %s: %w", key, err)
	}
	destination := types.DestinationAddress(request.Destination)
	if !IsValidDestination(destination) {
		d.record(ctx, event, ActionEvmTransfer, models.RelayStatusSkipped, "invalid_destination", "", event.Amount, nil)
		return fmt.Errorf("%w: %q", types.ErrInvalidDestination, destination)
	}
	args := evm.TransferArgs{
		TxID:      key.Bytes32(),
		Recipient: common.HexToAddress(destination),
		Amount:    event.Amount,
	}
	account := d.evm.Account()
	ballot := threshold.Ballot{
		Token:         event.Token,
		Recipient:     args.Recipient.Bytes(),
		TransactionID: args.TxID[:],
		Voter:         account.Bytes(),
	}
	decision, err := d.tracker.Decide(ctx, d.ledgers.Evm, ballot)
	if err != nil {
		d.record(ctx, event, ActionEvmTransfer, models.RelayStatusFailed, "", "", event.Amount, err)
		return fmt.Errorf("failed to decide transfer: %w", err)
	}
	if !decision.Act {
		log.Info().Str("txid", key.Hex()).Str("reason", string(decision.Reason)).
			Msg("[Dispatcher] [handleBurned] skip transfer")
		d.record(ctx, event, ActionEvmTransfer, models.RelayStatusSkipped, string(decision.Reason), "", event.Amount, nil)
		return nil
	}
	if err := d.checkLockdown(); err != nil {
		return err
	}
	tx, err := d.sendTransfer(ctx, account, args)
	if err != nil {
		d.record(ctx, event, ActionEvmTransfer, models.RelayStatusFailed, "", "", event.Amount, err)
		return err
	}
	if _, err := d.evm.WaitMined(ctx, tx); err != nil {
		d.record(ctx, event, ActionEvmTransfer, models.RelayStatusFailed, "", tx.Hash().Hex(), event.Amount, err)
		return fmt.Errorf("transfer %s not mined: %w", tx.Hash().Hex(), err)
	}
	log.Info().Str("txid", key.Hex()).Str("txHash", tx.Hash().Hex()).Str("recipient", args.Recipient.Hex()).
		Msg("[Dispatcher] [handleBurned] transfer mined")
	d.record(ctx, event, ActionEvmTransfer, models.RelayStatusSubmitted, string(decision.Reason), tx.Hash().Hex(), event.Amount, nil)
	return nil
}

// sendTransfer takes the next nonce and a fresh gas price, the nonce is released
// when the transaction never left the process
func (d *Dispatcher) sendTransfer(ctx context.Context, account common.Address, args evm.TransferArgs) (*ethTypes.Transaction, error) {
	nonce, err := d.nonces.Next(ctx, account)
	if err != nil {
		return nil, err
	}
	gasPrice, err := d.evm.SuggestGasPrice(ctx)
	if err != nil {
		d.nonces.Reset(account)
		return nil, err
	}
	tx, err := d.evm.Transfer(ctx, evm.TxParams{Nonce: nonce, GasPrice: gasPrice}, args)
	if err != nil {
		d.nonces.Reset(account)
		return nil, err
	}
	return tx, nil
}

func (d *Dispatcher) record(ctx context.Context, event types.BridgeEvent, action string, status models.RelayStatus, reason string, txHash string, amount *big.Int, cause error) {
	d.metrics.Relay(event.Kind().String(), string(status))
	if d.recorder == nil {
		return
	}
	meta := event.Meta()
	record := &models.RelayRecord{
		Process:       d.opts.Process,
		SourceChain:   string(meta.Chain),
		EventKind:     event.Kind().String(),
		BlockNumber:   meta.Position.BlockNumber,
		Index:         meta.Position.Index,
		TransactionID: transactionIDOf(event),
		Action:        action,
		Status:        status,
		Reason:        reason,
		TxHash:        txHash,
	}
	if amount != nil {
		record.Amount = amount.String()
	}
	if cause != nil {
		record.Error = cause.Error()
	}
	if err := d.recorder.RecordRelay(ctx, record); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("[Dispatcher] [record] failed to save relay record")
	}
}

func transactionIDOf(event types.BridgeEvent) string {
	switch e := event.(type) {
	case *types.MintQueuedEvent:
		return hexutil.Encode(e.TransactionID)
	case *types.BurnQueuedEvent:
		return hexutil.Encode(e.TransactionID)
	case *types.BurnedEvent:
		return hexutil.Encode(e.TransactionID)
	case *types.MintedEvent:
		return hexutil.Encode(e.TransactionID)
	case *types.RequestEvent:
		return e.TransactionKey().Hex()
	}
	return event.Meta().TxHash.Hex()
}
