// Package config is the TOML configuration of a RefFVM repo.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

// Config is an in memory representation of the configuration file
type Config struct {
	VM        *VMConfig        `toml:"vm"`
	Genesis   *GenesisConfig   `toml:"genesis"`
	Datastore *DatastoreConfig `toml:"datastore"`
	Log       *LogConfig       `toml:"log"`
}

// VMConfig holds the options messages are applied with.
type VMConfig struct {
	GasLimit         int64 `toml:"gasLimit"`
	ImplicitGasLimit int64 `toml:"implicitGasLimit"`
	Tracing          bool  `toml:"tracing"`
}

func newDefaultVMConfig() *VMConfig {
	return &VMConfig{
		GasLimit:         1_000_000_000,
		ImplicitGasLimit: 10_000_000_000,
	}
}

// GenesisConfig describes the initial state built by `init`.
type GenesisConfig struct {
	NetworkName string `toml:"networkName"`
	// FirstActorID is the first ID the init actor hands out.
	FirstActorID uint64           `toml:"firstActorID"`
	Accounts     []AccountConfig `toml:"accounts"`
	Miners       []MinerConfig   `toml:"miners"`
}

// AccountConfig is a funded key address. Balance is in attoFIL.
type AccountConfig struct {
	Address string `toml:"address"`
	Balance string `toml:"balance"`
}

// MinerConfig is a miner created at genesis. Addresses may be in any form
// the miner constructor can resolve.
type MinerConfig struct {
	Owner    string   `toml:"owner"`
	Worker   string   `toml:"worker"`
	Controls []string `toml:"controls"`
}

func newDefaultGenesisConfig() *GenesisConfig {
	return &GenesisConfig{
		NetworkName:  "localnet",
		FirstActorID: 100,
		Accounts:     []AccountConfig{},
		Miners:       []MinerConfig{},
	}
}

// DatastoreConfig holds all the configuration options for the datastore.
type DatastoreConfig struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
}

func newDefaultDatastoreConfig() *DatastoreConfig {
	return &DatastoreConfig{
		Type: "badgerds",
		Path: "badger",
	}
}

// LogConfig sets the level of every logger.
type LogConfig struct {
	Level string `toml:"level"`
}

func newDefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level: "info",
	}
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		VM:        newDefaultVMConfig(),
		Genesis:   newDefaultGenesisConfig(),
		Datastore: newDefaultDatastoreConfig(),
		Log:       newDefaultLogConfig(),
	}
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(*cfg); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// ReadFile reads a config file from disk. Sections missing from the file keep
// their defaults.
func ReadFile(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck

	cfg := NewDefaultConfig()
	if _, err := toml.DecodeReader(f, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", file)
	}

	return cfg, nil
}

// Validate reports every invalid value at once.
func (cfg *Config) Validate() error {
	var result *multierror.Error

	if cfg.VM.GasLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("vm.gasLimit must be positive, got %d", cfg.VM.GasLimit))
	}
	if cfg.VM.ImplicitGasLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("vm.implicitGasLimit must be positive, got %d", cfg.VM.ImplicitGasLimit))
	}

	if cfg.Genesis.NetworkName == "" {
		result = multierror.Append(result, errors.New("genesis.networkName must not be empty"))
	}
	seen := make(map[string]struct{}, len(cfg.Genesis.Accounts))
	for i, acct := range cfg.Genesis.Accounts {
		addr, err := address.NewFromString(acct.Address)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "genesis.accounts[%d].address", i))
		} else if addr.Protocol() != address.SECP256K1 && addr.Protocol() != address.BLS {
			result = multierror.Append(result, fmt.Errorf("genesis.accounts[%d].address %s is not a key address", i, addr))
		}
		if _, ok := seen[acct.Address]; ok {
			result = multierror.Append(result, fmt.Errorf("genesis.accounts[%d].address %s is declared twice", i, acct.Address))
		}
		seen[acct.Address] = struct{}{}
		if _, err := ParseBalance(acct.Balance); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "genesis.accounts[%d].balance", i))
		}
	}
	for i, m := range cfg.Genesis.Miners {
		for _, a := range append([]string{m.Owner, m.Worker}, m.Controls...) {
			if _, err := address.NewFromString(a); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "genesis.miners[%d]: %q", i, a))
			}
		}
	}

	switch cfg.Datastore.Type {
	case "badgerds", "memory":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown datastore type %q", cfg.Datastore.Type))
	}

	if _, err := logging.LevelFromString(cfg.Log.Level); err != nil {
		result = multierror.Append(result, errors.Wrapf(err, "log.level"))
	}

	return result.ErrorOrNil()
}

// ParseBalance parses an attoFIL amount. The empty string is zero.
func ParseBalance(s string) (big.Int, error) {
	if s == "" {
		return big.Zero(), nil
	}
	v, err := big.FromString(s)
	if err != nil {
		return big.Zero(), err
	}
	if v.LessThan(big.Zero()) {
		return big.Zero(), fmt.Errorf("negative balance %s", s)
	}
	return v, nil
}
