package config_test

import (
	"testing"

	"github.com/bitgreen/bridge-relayers/config"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMnemonic   = "tag volcano eight thank tide danger coast health above argue embrace heavy"
	testPrivateKey = "0x6006595a717b2f0cc275f573ddbfad265b68c35fe52d875d31596d518fa2b2b5"
	testRouter     = "0x0b6Ac598caE6d1ef48AC79FF34975f890dC677D9"
)

func newViper(values map[string]any) *viper.Viper {
	v := viper.New()
	v.Set("block_threshold", 1)
	v.Set("pallet_url", "ws://127.0.0.1:9944")
	v.Set("pallet_mnemonic", "//Alice")
	v.Set("token", "BBB")
	v.Set("mint_token", "WETH")
	v.Set("asset_id", 1)
	v.Set("node_address", "ws://127.0.0.1:8546")
	v.Set("router_address", testRouter)
	v.Set("private_key", testPrivateKey)
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestFromViper(t *testing.T) {
	cfg, err := config.FromViper(newViper(map[string]any{"queue_mode": true}))
	require.NoError(t, err)
	assert.True(t, cfg.QueueMode)
	assert.Equal(t, "BBB", cfg.Pallet.Token)
	assert.Equal(t, "WETH", cfg.Pallet.MintToken)
	assert.Equal(t, uint32(1), cfg.Pallet.AssetID)
	assert.Equal(t, testRouter, cfg.Evm.RouterAddress)
	assert.Equal(t, testPrivateKey[2:], cfg.Evm.PrivateKey)
}

func TestFromViperRejectsInvalidRouter(t *testing.T) {
	_, err := config.FromViper(newViper(map[string]any{"router_address": "not-an-address"}))
	require.Error(t, err)
}

func TestFromViperRequiresKey(t *testing.T) {
	_, err := config.FromViper(newViper(map[string]any{"private_key": ""}))
	require.Error(t, err)
}

func TestResolvePrivateKeyFromMnemonic(t *testing.T) {
	evm := config.EvmConfig{Mnemonic: testMnemonic, WalletIndex: "0"}
	key, err := evm.ResolvePrivateKey()
	require.NoError(t, err)
	privateKey, err := crypto.HexToECDSA(key)
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	assert.Equal(t, "0xC49926C4124cEe1cbA0Ea94Ea31a6c12318df947", address.Hex())
}

func TestValidatePalletSecret(t *testing.T) {
	assert.NoError(t, config.ValidatePalletSecret("//Alice"))
	assert.NoError(t, config.ValidatePalletSecret("0xe5be9a5092b81bca64be81d212e7f2f9eba183bb7a90954f7b76361f6edb5c0a"))
	assert.NoError(t, config.ValidatePalletSecret(testMnemonic))
	assert.NoError(t, config.ValidatePalletSecret(testMnemonic+"//stash"))
	assert.Error(t, config.ValidatePalletSecret("not a valid phrase"))
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("ROUTER_ADDRESS", testRouter)
	t.Setenv("PRIVATE_KEY", testPrivateKey)
	t.Setenv("MINT_TOKEN", "WBTC")

	cfg, err := config.Load("test")
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "WBTC", cfg.Pallet.MintToken)
	assert.Equal(t, testRouter, cfg.Evm.RouterAddress)
}
