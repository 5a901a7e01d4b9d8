// Package config loads chronod node configuration.
//
// Values are resolved in three layers: built-in defaults, then a YAML file,
// then CHRONOD_* environment variables. The result is checked against the
// embedded CUE schema before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CHRONOD_NODE_ID.
const EnvPrefix = "chronod"

// Config is the complete node configuration.
type Config struct {
	DB    DBConfig    `yaml:"db" json:"db" envconfig:"db"`
	Net   NetConfig   `yaml:"net" json:"net" envconfig:"net"`
	Node  NodeConfig  `yaml:"node" json:"node" envconfig:"node"`
	API   APIConfig   `yaml:"api" json:"api" envconfig:"api"`
	Store StoreConfig `yaml:"store" json:"store" envconfig:"store"`
}

// DBConfig locates the SQLite database.
type DBConfig struct {
	// Path is the database file (CHRONOD_DB_PATH).
	Path string `yaml:"path" json:"path" envconfig:"path"`

	// Timeout bounds every store operation (CHRONOD_DB_TIMEOUT).
	Timeout time.Duration `yaml:"timeout" json:"timeout" envconfig:"timeout"`
}

// NetConfig holds listen addresses and the static peer list.
type NetConfig struct {
	// InnerP2P is the UDP address for peer gossip and gateway queries
	// (CHRONOD_NET_INNER_P2P).
	InnerP2P string `yaml:"inner_p2p" json:"inner_p2p" envconfig:"inner_p2p"`

	// HTTP is the HTTP API address; empty disables it (CHRONOD_NET_HTTP).
	HTTP string `yaml:"http" json:"http" envconfig:"http"`

	// Peers lists gossip targets as "id=addr,id=addr" (CHRONOD_NET_PEERS).
	Peers string `yaml:"peers" json:"peers" envconfig:"peers"`
}

// NodeConfig identifies the local node.
type NodeConfig struct {
	// ID is the node identifier used as this node's clock key
	// (CHRONOD_NODE_ID).
	ID string `yaml:"id" json:"id" envconfig:"id"`

	// CacheMsgMaximum is the number of merged peer hashes remembered for
	// duplicate detection (CHRONOD_NODE_CACHE_MSG_MAXIMUM).
	CacheMsgMaximum int `yaml:"cache_msg_maximum" json:"cache_msg_maximum" envconfig:"cache_msg_maximum"`
}

// APIConfig tunes the query gateway.
type APIConfig struct {
	// ReadMaximum caps cursor scans (CHRONOD_API_READ_MAXIMUM).
	ReadMaximum int `yaml:"read_maximum" json:"read_maximum" envconfig:"read_maximum"`
}

// StoreConfig tunes persistence retries.
type StoreConfig struct {
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts" envconfig:"retry_attempts"`
	RetryInitial  time.Duration `yaml:"retry_initial" json:"retry_initial" envconfig:"retry_initial"`
	RetryMax      time.Duration `yaml:"retry_max" json:"retry_max" envconfig:"retry_max"`
}

// Default returns the built-in configuration. Node.ID is left empty and
// must be supplied.
func Default() Config {
	return Config{
		DB: DBConfig{
			Path:    "chronod.db",
			Timeout: 5 * time.Second,
		},
		Net: NetConfig{
			InnerP2P: "127.0.0.1:7400",
			HTTP:     "",
		},
		Node: NodeConfig{
			CacheMsgMaximum: 10000,
		},
		API: APIConfig{
			ReadMaximum: 100,
		},
		Store: StoreConfig{
			RetryAttempts: 4,
			RetryInitial:  50 * time.Millisecond,
			RetryMax:      time.Second,
		},
	}
}

// Load resolves the configuration from defaults, the YAML file at path
// (skipped when path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config file not found: %s", path)
			}
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PeerList parses Net.Peers.
func (c Config) PeerList() ([]Peer, error) {
	return ParsePeers(c.Net.Peers)
}
