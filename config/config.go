package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cosmos/go-bip39"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const APP_NAME = "bridge-relayers"

type PalletConfig struct {
	URL       string `mapstructure:"pallet_url" validate:"required"`
	Mnemonic  string `mapstructure:"pallet_mnemonic" validate:"required"`
	SS58      uint16 `mapstructure:"pallet_ss58"`
	Token     string `mapstructure:"token" validate:"required"`
	MintToken string `mapstructure:"mint_token" validate:"required"`
	AssetID   uint32 `mapstructure:"asset_id" validate:"required"`
}

type EvmConfig struct {
	NodeAddress   string `mapstructure:"node_address" validate:"required"`
	RouterAddress string `mapstructure:"router_address" validate:"required,eth_addr"`
	PrivateKey    string `mapstructure:"private_key"`
	Mnemonic      string `mapstructure:"evm_mnemonic"`
	WalletIndex   string `mapstructure:"evm_wallet_index"`
	// 0 lets the binding estimate gas
	GasLimit uint64 `mapstructure:"gas_limit"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"database_url"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"http_addr"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"otel_endpoint"`
	ServiceName string `mapstructure:"otel_service_name"`
}

type Config struct {
	Environment    string         `mapstructure:"env"`
	LogLevel       string         `mapstructure:"log_level"`
	QueueMode      bool           `mapstructure:"queue_mode"`
	BlockThreshold uint64         `mapstructure:"block_threshold" validate:"min=1"`
	Pallet         PalletConfig   `mapstructure:",squash"`
	Evm            EvmConfig      `mapstructure:",squash"`
	Database       DatabaseConfig `mapstructure:",squash"`
	HTTP           HTTPConfig     `mapstructure:",squash"`
	Tracing        TracingConfig  `mapstructure:",squash"`
}

var defaults = map[string]any{
	"env":               "local",
	"log_level":         "info",
	"queue_mode":        false,
	"block_threshold":   1,
	"pallet_url":        "ws://127.0.0.1:9944",
	"pallet_mnemonic":   "//Alice",
	"pallet_ss58":       42,
	"token":             "BBB",
	"mint_token":        "WETH",
	"asset_id":          1,
	"node_address":      "ws://127.0.0.1:8546",
	"router_address":    "",
	"private_key":       "",
	"evm_mnemonic":      "",
	"evm_wallet_index":  "0",
	"gas_limit":         0,
	"database_url":      "",
	"http_addr":         "",
	"otel_endpoint":     "",
	"otel_service_name": APP_NAME,
}

// LoadEnv reads .env.<environment> then .env into the process environment.
// Missing files are ignored, variables already set win.
func LoadEnv(environment string) error {
	for _, file := range []string{".env." + environment, ".env"} {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

func Load(environment string) (*Config, error) {
	if err := LoadEnv(environment); err != nil {
		return nil, err
	}
	v := viper.GetViper()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	if environment != "" {
		v.Set("env", environment)
	}
	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	privateKey, err := cfg.Evm.ResolvePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg.Evm.PrivateKey = privateKey
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := ValidatePalletSecret(c.Pallet.Mnemonic); err != nil {
		return err
	}
	return nil
}

// ValidatePalletSecret accepts dev uris (//Alice), raw hex seeds and bip39 phrases
// optionally followed by a derivation path
func ValidatePalletSecret(secret string) error {
	if strings.HasPrefix(secret, "//") || strings.HasPrefix(secret, "0x") {
		return nil
	}
	phrase := strings.TrimSpace(strings.SplitN(secret, "//", 2)[0])
	if !bip39.IsMnemonicValid(phrase) {
		return fmt.Errorf("invalid pallet mnemonic")
	}
	return nil
}

// ResolvePrivateKey returns the hex private key without 0x prefix.
// PRIVATE_KEY wins over EVM_MNEMONIC.
func (c *EvmConfig) ResolvePrivateKey() (string, error) {
	if c.PrivateKey != "" {
		return strings.TrimPrefix(c.PrivateKey, "0x"), nil
	}
	if c.Mnemonic == "" {
		return "", fmt.Errorf("PRIVATE_KEY or EVM_MNEMONIC should be defined")
	}
	wallet, err := hdwallet.NewFromMnemonic(c.Mnemonic)
	if err != nil {
		return "", fmt.Errorf("failed to create wallet from mnemonic: %w", err)
	}
	index := c.WalletIndex
	if index == "" {
		index = "0"
	}
	path, err := hdwallet.ParseDerivationPath(fmt.Sprintf("m/44'/60'/0'/0/%s", index))
	if err != nil {
		return "", fmt.Errorf("failed to parse derivation path: %w", err)
	}
	account, err := wallet.Derive(path, false)
	if err != nil {
		return "", fmt.Errorf("failed to derive account: %w", err)
	}
	privateKeyECDSA, err := wallet.PrivateKey(account)
	if err != nil {
		return "", fmt.Errorf("failed to get private key: %w", err)
	}
	log.Debug().Str("address", account.Address.Hex()).Msg("[Config] [ResolvePrivateKey] derived evm account")
	return hex.EncodeToString(crypto.FromECDSA(privateKeyECDSA)), nil
}
