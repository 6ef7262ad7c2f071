package pallet

import (
	"context"
	"fmt"
	"sync"

	gsrpcapi "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/rs/zerolog/log"

	"github.com/bitgreen/bridge-relayers/config"
	"github.com/bitgreen/bridge-relayers/pkg/types"
)

type Client struct {
	config    *config.PalletConfig
	api       *gsrpcapi.SubstrateAPI
	meta      *gsrpc.Metadata
	keyring   signature.KeyringPair
	retriever retriever.EventRetriever
	// one signed extrinsic in flight at a time
	submitMu sync.Mutex
}

func NewClient(ctx context.Context, palletConfig *config.PalletConfig) (*Client, error) {
	log.Info().Str("url", palletConfig.URL).Msg("[PalletClient] [NewClient] connecting to pallet chain")
	api, err := gsrpcapi.NewSubstrateAPI(palletConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pallet chain %s: %w", palletConfig.URL, err)
	}
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	keyring, err := signature.KeyringPairFromSecret(palletConfig.Mnemonic, palletConfig.SS58)
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("failed to create keyring pair: %w", err)
	}
	eventRetriever, err := retriever.NewDefaultEventRetriever(state.NewEventProvider(api.RPC.State), api.RPC.State)
	if err != nil {
		api.Client.Close()
		return nil, fmt.Errorf("failed to create event retriever: %w", err)
	}
	log.Info().Str("account", keyring.Address).Msg("[PalletClient] [NewClient] connected")
	return &Client{
		config:    palletConfig,
		api:       api,
		meta:      meta,
		keyring:   keyring,
		retriever: eventRetriever,
	}, nil
}

// Account is the pallet account signing this relayer extrinsics
func (c *Client) Account() types.AccountID {
	var account types.AccountID
	copy(account[:], c.keyring.PublicKey)
	return account
}

func (c *Client) Address() string {
	return c.keyring.Address
}

func (c *Client) Metadata() *gsrpc.Metadata {
	return c.meta
}

// SubscribeNewHeads calls callback with the number of every new head until ctx is done
// or the subscription fails. The subscription is not restarted.
func (c *Client) SubscribeNewHeads(ctx context.Context, callback func(number uint64)) error {
	sub, err := c.api.RPC.Chain.SubscribeNewHeads()
	if err != nil {
		return fmt.Errorf("failed to subscribe new heads: %w", err)
	}
	defer sub.Unsubscribe()
	log.Info().Msg("[PalletClient] [SubscribeNewHeads] subscribed")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("new heads subscription failed: %w", err)
		case head, ok := <-sub.Chan():
			if !ok {
				return fmt.Errorf("new heads subscription closed")
			}
			callback(uint64(head.Number))
		}
	}
}

func (c *Client) Close() {
	if c.api != nil && c.api.Client != nil {
		c.api.Client.Close()
	}
}
