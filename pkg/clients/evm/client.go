package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/config"
	"github.com/bitgreen/bridge-relayers/pkg/clients/evm/parser"
)

// Upper bound for waiting a receipt of our own transactions
const DEFAULT_MINED_TIMEOUT = 5 * time.Minute

type EvmClient struct {
	config        *config.EvmConfig
	rpcClient     *rpc.Client
	Client        *ethclient.Client
	gethClient    *gethclient.Client
	ChainID       *big.Int
	RouterAddress common.Address
	router        *bind.BoundContract
	auth          *bind.TransactOpts
	minedTimeout  time.Duration
}

func NewEvmClient(ctx context.Context, evmConfig *config.EvmConfig) (*EvmClient, error) {
	log.Info().Str("node", evmConfig.NodeAddress).Str("router", evmConfig.RouterAddress).
		Msg("[EvmClient] [NewEvmClient] connecting to EVM network")
	rpcClient, err := rpc.DialContext(ctx, evmConfig.NodeAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM node %s: %w", evmConfig.NodeAddress, err)
	}
	client := ethclient.NewClient(rpcClient)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	auth, err := CreateTransactOpts(evmConfig, chainID)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	evmClient := NewEvmClientWithBackend(client, common.HexToAddress(evmConfig.RouterAddress), auth)
	evmClient.config = evmConfig
	evmClient.rpcClient = rpcClient
	evmClient.gethClient = gethclient.New(rpcClient)
	evmClient.ChainID = chainID
	log.Info().Str("chainId", chainID.String()).Str("account", auth.From.Hex()).
		Msg("[EvmClient] [NewEvmClient] connected")
	return evmClient, nil
}

// NewEvmClientWithBackend binds the router on an existing ethclient
func NewEvmClientWithBackend(client *ethclient.Client, routerAddress common.Address, auth *bind.TransactOpts) *EvmClient {
	return &EvmClient{
		Client:        client,
		RouterAddress: routerAddress,
		router:        bind.NewBoundContract(routerAddress, *parser.GetRouterAbi(), client, client, client),
		auth:          auth,
		minedTimeout:  DEFAULT_MINED_TIMEOUT,
	}
}

func CreateTransactOpts(evmConfig *config.EvmConfig, chainID *big.Int) (*bind.TransactOpts, error) {
	if evmConfig.PrivateKey == "" {
		return nil, fmt.Errorf("private key is not set")
	}
	privateKey, err := crypto.HexToECDSA(evmConfig.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth for chain %s: %w", chainID, err)
	}
	auth.GasLimit = evmConfig.GasLimit
	return auth, nil
}

func (c *EvmClient) CreateCallOpts(ctx context.Context) *bind.CallOpts {
	callOpts := &bind.CallOpts{Context: ctx}
	if c.auth != nil {
		callOpts.From = c.auth.From
	}
	return callOpts
}

// Account is the address signing the relayer transactions
func (c *EvmClient) Account() common.Address {
	if c.auth == nil {
		return common.Address{}
	}
	return c.auth.From
}

func (c *EvmClient) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	} else if c.Client != nil {
		c.Client.Close()
	}
}
