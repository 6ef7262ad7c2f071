package parser

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	eth_types "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/pkg/types"
)

var (
	ErrUnknownEvent = errors.New("unknown router event")
	ErrShortInput   = errors.New("transaction input too short")
)

var (
	routerAbi *abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(routerAbiJson))
	if err != nil {
		log.Fatal().Err(err).Msg("[Parser] failed to parse router abi")
	}
	routerAbi = &parsed
}

func GetRouterAbi() *abi.ABI {
	return routerAbi
}

// EventTopics lists the topic0 of every router event relayed by the bridge
func EventTopics() []common.Hash {
	return []common.Hash{
		routerAbi.Events[EventTransferQueued].ID,
		routerAbi.Events[EventDepositRequest].ID,
		routerAbi.Events[EventTransfer].ID,
	}
}

type RouterDeposit struct {
	Destination [32]byte
	Amount      *big.Int
	Sender      common.Address
}

type RouterTransfer struct {
	Txid      [32]byte
	Recipient common.Address
	Amount    *big.Int
	Erc20     common.Address
	Wdf       *big.Int
}

func getEventIndexedArguments(eventName string) abi.Arguments {
	var args abi.Arguments
	if event, ok := routerAbi.Events[eventName]; ok {
		for _, arg := range event.Inputs {
			if arg.Indexed {
				args = append(args, arg)
			}
		}
	}
	return args
}

func parseEventData(receiptLog *eth_types.Log, eventName string, eventData any) error {
	event, ok := routerAbi.Events[eventName]
	if !ok {
		return fmt.Errorf("event %s not found in router abi", eventName)
	}
	if len(receiptLog.Topics) == 0 || event.ID != receiptLog.Topics[0] {
		return fmt.Errorf("receipt log topic 0 does not match %s event id", eventName)
	}
	if err := routerAbi.UnpackIntoInterface(eventData, eventName, receiptLog.Data); err != nil {
		return fmt.Errorf("failed to unpack event %s: %w", eventName, err)
	}
	indexedArgs := getEventIndexedArguments(eventName)
	if len(indexedArgs) > 0 {
		if len(receiptLog.Topics)-1 != len(indexedArgs) {
			return fmt.Errorf("event %s expects %d indexed topics, got %d", eventName, len(indexedArgs), len(receiptLog.Topics)-1)
		}
		if err := abi.ParseTopics(eventData, indexedArgs, receiptLog.Topics[1:]); err != nil {
			return fmt.Errorf("failed to parse topics of %s: %w", eventName, err)
		}
	}
	return nil
}

func logMeta(receiptLog *eth_types.Log) types.EventMeta {
	return types.EventMeta{
		Chain: types.ChainEvm,
		Position: types.ChainPosition{
			BlockNumber: receiptLog.BlockNumber,
			Index:       uint16(receiptLog.TxIndex),
		},
		TxHash:  receiptLog.TxHash,
		Success: true,
	}
}

// ParseLog decodes a router log into a bridge event.
// Logs of other events return ErrUnknownEvent.
func ParseLog(receiptLog *eth_types.Log) (types.BridgeEvent, error) {
	if len(receiptLog.Topics) == 0 {
		return nil, ErrUnknownEvent
	}
	switch receiptLog.Topics[0] {
	case routerAbi.Events[EventTransferQueued].ID:
		var args RouterDeposit
		if err := parseEventData(receiptLog, EventTransferQueued, &args); err != nil {
			return nil, err
		}
		return &types.TransferQueuedEvent{EventMeta: logMeta(receiptLog), Deposit: args.toDeposit()}, nil
	case routerAbi.Events[EventDepositRequest].ID:
		var args RouterDeposit
		if err := parseEventData(receiptLog, EventDepositRequest, &args); err != nil {
			return nil, err
		}
		return &types.DepositRequestEvent{EventMeta: logMeta(receiptLog), Deposit: args.toDeposit()}, nil
	case routerAbi.Events[EventTransfer].ID:
		var args RouterTransfer
		if err := parseEventData(receiptLog, EventTransfer, &args); err != nil {
			return nil, err
		}
		log.Debug().Any("parsedEvent", args).Msg("[Parser] [ParseLog] BridgeTransfer")
		return &types.TransferEvent{
			EventMeta:     logMeta(receiptLog),
			TxID:          args.Txid,
			Recipient:     args.Recipient,
			Amount:        args.Amount,
			ERC20:         args.Erc20,
			WithdrawalFee: args.Wdf,
		}, nil
	}
	return nil, ErrUnknownEvent
}

func (d RouterDeposit) toDeposit() types.Deposit {
	return types.Deposit{Destination: d.Destination, Amount: d.Amount, Sender: d.Sender}
}

// MethodByInput resolves the router method called by a transaction input
func MethodByInput(input []byte) (*abi.Method, error) {
	if len(input) < 4 {
		return nil, ErrShortInput
	}
	return routerAbi.MethodById(input[:4])
}

// DecodeDepositDestination reads the bytes32 destination of a deposit(bytes32) call
func DecodeDepositDestination(input []byte) ([32]byte, error) {
	var destination [32]byte
	method, err := MethodByInput(input)
	if err != nil {
		return destination, err
	}
	if method.Name != MethodDeposit {
		return destination, fmt.Errorf("transaction calls %s, expected %s", method.Name, MethodDeposit)
	}
	values, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return destination, fmt.Errorf("failed to unpack deposit input: %w", err)
	}
	destination = *abi.ConvertType(values[0], new([32]byte)).(*[32]byte)
	return destination, nil
}

// IsSetLockdownCall reports whether input is a setLockdown() call
func IsSetLockdownCall(input []byte) bool {
	if len(input) < 4 {
		return false
	}
	return bytes.Equal(input[:4], routerAbi.Methods[MethodSetLockdown].ID)
}

// PackTransfer builds the calldata of transfer(txid, recipient, amount, erc20)
func PackTransfer(txid [32]byte, recipient common.Address, amount *big.Int, erc20 common.Address) ([]byte, error) {
	return routerAbi.Pack(MethodTransfer, txid, recipient, amount, erc20)
}

// PackDeposit builds the calldata of deposit(destination)
func PackDeposit(destination [32]byte) ([]byte, error) {
	return routerAbi.Pack(MethodDeposit, destination)
}
