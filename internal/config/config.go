// Package config loads server configuration from a YAML file with
// environment-variable overrides for secrets and deployment knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type AnchorConfig struct {
	Binary   string `yaml:"binary"`
	Contract string `yaml:"contract"`
	SignAs   string `yaml:"signAs"`
	Network  string `yaml:"network"`
	GroupID  string `yaml:"groupId"`
}

type NovaConfig struct {
	APIKey    string `yaml:"apiKey"`
	AccountID string `yaml:"accountId"`
	GroupID   string `yaml:"groupId"`
	BaseURL   string `yaml:"baseUrl"`
	MCPURL    string `yaml:"mcpUrl"`
}

type Config struct {
	ListenAddr    string       `yaml:"listenAddr"`
	DataDir       string       `yaml:"dataDir"`
	BlobDir       string       `yaml:"blobDir"`
	MinimumFreeGB int          `yaml:"minimumFreeGB"`
	SecretKey     string       `yaml:"secretKey"`
	Anchor        AnchorConfig `yaml:"anchor"`
	Nova          NovaConfig   `yaml:"nova"`
}

// Load reads the config file at path (skipped when path is empty or the
// file is absent), applies defaults and environment overrides, and
// validates. The signing secret has no default: a server without one must
// not start.
func Load(path string) (Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: cannot read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &config); err != nil {
				return Config{}, fmt.Errorf("config: cannot parse %s: %w", path, err)
			}
		}
	}

	if config.ListenAddr == "" {
		config.ListenAddr = ":8000"
	}
	if config.DataDir == "" {
		config.DataDir = "data"
	}
	if config.Anchor.Network == "" {
		config.Anchor.Network = "testnet"
	}

	applyEnvOverrides(&config)

	if config.SecretKey == "" {
		return Config{}, errors.New("config: secret key is not set (PRIVATERAG_SECRET_KEY)")
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	overrideString(&config.ListenAddr, "PRIVATERAG_LISTEN_ADDR")
	overrideString(&config.DataDir, "PRIVATERAG_DATA_DIR")
	overrideString(&config.BlobDir, "PRIVATERAG_BLOB_DIR")
	overrideString(&config.SecretKey, "PRIVATERAG_SECRET_KEY")
	overrideInt(&config.MinimumFreeGB, "PRIVATERAG_MIN_FREE_GB")

	overrideString(&config.Anchor.Binary, "PRIVATERAG_ANCHOR_BINARY")
	overrideString(&config.Anchor.Contract, "PRIVATERAG_ANCHOR_CONTRACT")
	overrideString(&config.Anchor.SignAs, "PRIVATERAG_ANCHOR_SIGN_AS")
	overrideString(&config.Anchor.Network, "PRIVATERAG_ANCHOR_NETWORK")
	overrideString(&config.Anchor.GroupID, "PRIVATERAG_ANCHOR_GROUP_ID")

	overrideString(&config.Nova.APIKey, "NOVA_API_KEY")
	overrideString(&config.Nova.AccountID, "NOVA_ACCOUNT_ID")
	overrideString(&config.Nova.GroupID, "NOVA_GROUP_ID")
	overrideString(&config.Nova.BaseURL, "NOVA_BASE_URL")
	overrideString(&config.Nova.MCPURL, "NOVA_MCP_URL")
}

func overrideString(target *string, env string) {
	if value := os.Getenv(env); value != "" {
		*target = value
	}
}

func overrideInt(target *int, env string) {
	if value := os.Getenv(env); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}
