package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"payvault/crypto"
)

const (
	StorageLevelDB = "leveldb"
	StorageMemory  = "memory"
)

// Config describes the ledger a node or daemon opens.
type Config struct {
	DataDir               string  `toml:"DataDir"`
	Storage               string  `toml:"Storage"`
	OperatorKeystorePath  string  `toml:"OperatorKeystorePath"`
	OperatorPassphraseEnv string  `toml:"OperatorPassphraseEnv"`
	Genesis               Genesis `toml:"Genesis"`
}

// Genesis seeds the global payroll config and optional starting balances
// the first time a ledger is opened.
type Genesis struct {
	Owner         string       `toml:"Owner"`
	Treasury      string       `toml:"Treasury"`
	DefaultFeeBps uint16       `toml:"DefaultFeeBps"`
	Allocations   []Allocation `toml:"Allocations"`
}

// Allocation credits Amount of Asset ("native" or "token:<mint>") to
// Address at genesis.
type Allocation struct {
	Address string `toml:"Address"`
	Asset   string `toml:"Asset"`
	Amount  uint64 `toml:"Amount"`
}

// Load loads the configuration from the given path. A missing file is
// created with defaults and a freshly generated operator key whose address
// becomes the genesis owner and treasury.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Storage) == "" {
		cfg.Storage = StorageLevelDB
	}
	if strings.TrimSpace(cfg.OperatorKeystorePath) == "" {
		cfg.OperatorKeystorePath = defaultKeystorePath(path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OperatorKey opens the operator keystore, generating it on first use. The
// passphrase is read from the environment variable named by
// OperatorPassphraseEnv, if any.
func (c *Config) OperatorKey() (*crypto.PrivateKey, error) {
	passphrase := ""
	if env := strings.TrimSpace(c.OperatorPassphraseEnv); env != "" {
		passphrase = os.Getenv(env)
	}
	key, _, err := crypto.LoadOrCreateKeystore(c.OperatorKeystorePath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("operator keystore: %w", err)
	}
	return key, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}
	operator := key.PubKey().Address().String()

	cfg := &Config{
		DataDir:              filepath.Join(filepath.Dir(path), "payvault-data"),
		Storage:              StorageLevelDB,
		OperatorKeystorePath: keystorePath,
		Genesis: Genesis{
			Owner:         operator,
			Treasury:      operator,
			DefaultFeeBps: 100,
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "operator.keystore")
}
