// Package config holds the node configuration. Values are read from the
// environment and can be overridden by command line flags.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the full node configuration.
type Config struct {
	Web3RPCs      []string `env:"VOTE_WEB3_RPCS" envDefault:"https://sepolia.base.org" envSeparator:","`
	BundlerURL    string   `env:"VOTE_BUNDLER_URL"`
	PaymasterURL  string   `env:"VOTE_PAYMASTER_URL"`
	ExplorerTxURL string   `env:"VOTE_EXPLORER_TX_URL" envDefault:"https://sepolia.basescan.org/tx/"`

	PaymasterContract  string `env:"NEXT_PUBLIC_PAYMASTER_CONTRACT"`
	GatekeeperContract string `env:"NEXT_PUBLIC_GATEKEEPER_CONTRACT"`
	VotingContract     string `env:"VOTE_VOTING_CONTRACT" envDefault:"0xB64ad1D84d59290d2C207bc4a66670CCA8431E43"`
	GroupID            string `env:"NEXT_PUBLIC_SEMAPHORE_GROUP_ID"`
	WhitelistURL       string `env:"NEXT_PUBLIC_SMART_ACCOUNT_WHITELIST_URL"`

	EntryPoint          string `env:"VOTE_ENTRYPOINT" envDefault:"0x0000000071727De22E5E9d8BAf0edAc6f37da032"`
	KernelFactory       string `env:"VOTE_KERNEL_FACTORY" envDefault:"0xaac5D4240AF87249B3f71BC8E4A2cae074A3E419"`
	KernelFactoryStaker string `env:"VOTE_KERNEL_FACTORY_STAKER" envDefault:"0xd703aaE79538628d27099B8c4f621bE4CCd142d5"`
	ECDSAValidator      string `env:"VOTE_ECDSA_VALIDATOR" envDefault:"0x845ADb2C711129d4f3966735eD98a9F09fC4cE57"`

	ReceiptTimeout  time.Duration `env:"VOTE_RECEIPT_TIMEOUT" envDefault:"60s"`
	MonitorInterval time.Duration `env:"VOTE_MONITOR_INTERVAL" envDefault:"10s"`

	API      APIConfig
	Passkey  PasskeyConfig
	Storage  StorageConfig
	Circuits CircuitsConfig
	Log      LogConfig
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host string `env:"VOTE_API_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"VOTE_API_PORT" envDefault:"8080"`
}

// PasskeyConfig configures the WebAuthn relying party and the session
// tokens issued after login.
type PasskeyConfig struct {
	RPDisplayName string        `env:"VOTE_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Semaphore Voting"`
	RPID          string        `env:"VOTE_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigins     []string      `env:"VOTE_WEBAUTHN_RP_ORIGINS"      envDefault:"http://localhost:3000" envSeparator:","`
	CeremonyTTL   time.Duration `env:"VOTE_WEBAUTHN_CEREMONY_TTL"    envDefault:"5m"`
	TokenTTL      time.Duration `env:"VOTE_SESSION_TOKEN_TTL"        envDefault:"12h"`
	// TokenSeed is a hex encoded 32 byte Ed25519 seed. A random one is used
	// when empty, which invalidates tokens on restart.
	TokenSeed string `env:"VOTE_SESSION_TOKEN_SEED"`
}

// StorageConfig configures the key-value database.
type StorageConfig struct {
	// Dir is the pebble data directory. Empty means in-memory storage.
	Dir string `env:"VOTE_DATA_DIR"`
}

// CircuitsConfig points to the Semaphore artifacts.
type CircuitsConfig struct {
	WasmURLTemplate string `env:"VOTE_SEMAPHORE_WASM_URL" envDefault:"https://snark-artifacts.pse.dev/semaphore/latest/semaphore-%d.wasm"`
	ZkeyURLTemplate string `env:"VOTE_SEMAPHORE_ZKEY_URL" envDefault:"https://snark-artifacts.pse.dev/semaphore/latest/semaphore-%d.zkey"`
	VkeyURLTemplate string `env:"VOTE_SEMAPHORE_VKEY_URL" envDefault:"https://snark-artifacts.pse.dev/semaphore/latest/semaphore-%d.json"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `env:"VOTE_LOG_LEVEL" envDefault:"info"`
	Output string `env:"VOTE_LOG_OUTPUT" envDefault:"stdout"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BundlerURL == "" {
		cfg.BundlerURL = DefaultBundlerURL
	}
	if cfg.PaymasterURL == "" {
		cfg.PaymasterURL = DefaultPaymasterURL
	}
	return cfg, nil
}

// Validate checks that every address and the group ID are set and well
// formed.
func (c *Config) Validate() error {
	var errs []error
	addresses := map[string]string{
		"paymaster contract":    c.PaymasterContract,
		"gatekeeper contract":   c.GatekeeperContract,
		"voting contract":       c.VotingContract,
		"entrypoint":            c.EntryPoint,
		"kernel factory":        c.KernelFactory,
		"kernel factory staker": c.KernelFactoryStaker,
		"ecdsa validator":       c.ECDSAValidator,
	}
	for name, addr := range addresses {
		if addr == "" {
			errs = append(errs, fmt.Errorf("missing %s address", name))
			continue
		}
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("invalid %s address %q", name, addr))
		}
	}
	if _, err := c.Group(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Web3RPCs) == 0 {
		errs = append(errs, errors.New("no web3 rpc endpoint configured"))
	}
	if c.BundlerURL == "" {
		errs = append(errs, errors.New("missing bundler url"))
	}
	if c.PaymasterURL == "" {
		errs = append(errs, errors.New("missing paymaster url"))
	}
	return errors.Join(errs...)
}

// Group returns the Semaphore group ID as a big number.
func (c *Config) Group() (*big.Int, error) {
	if c.GroupID == "" {
		return nil, errors.New("missing semaphore group id")
	}
	id, ok := new(big.Int).SetString(c.GroupID, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid semaphore group id %q", c.GroupID)
	}
	return id, nil
}

// Addresses returns the contract addresses parsed. Call Validate first.
func (c *Config) Addresses() Addresses {
	return Addresses{
		Paymaster:           common.HexToAddress(c.PaymasterContract),
		Gatekeeper:          common.HexToAddress(c.GatekeeperContract),
		Voting:              common.HexToAddress(c.VotingContract),
		EntryPoint:          common.HexToAddress(c.EntryPoint),
		KernelFactory:       common.HexToAddress(c.KernelFactory),
		KernelFactoryStaker: common.HexToAddress(c.KernelFactoryStaker),
		ECDSAValidator:      common.HexToAddress(c.ECDSAValidator),
	}
}

// Addresses groups every contract the node talks to.
type Addresses struct {
	Paymaster           common.Address `json:"paymaster"`
	Gatekeeper          common.Address `json:"gatekeeper"`
	Voting              common.Address `json:"voting"`
	EntryPoint          common.Address `json:"entryPoint"`
	KernelFactory       common.Address `json:"kernelFactory"`
	KernelFactoryStaker common.Address `json:"kernelFactoryStaker"`
	ECDSAValidator      common.Address `json:"ecdsaValidator"`
}
