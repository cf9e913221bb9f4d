package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ClientConfig holds the runtime configuration for the client. Values
// come from an optional JSON file with environment variables layered on
// top, so containerized deployments can run file-free.
type ClientConfig struct {
	Relays         []string `json:"relays"`         // relays to connect to on startup
	DataDir        string   `json:"dataDir"`        // where DM categories and local state live
	RedisURL       string   `json:"redisUrl"`       // optional durable cache tier
	PrivateKey     string   `json:"privateKey"`     // hex private key for the local signer
	WalletURI      string   `json:"walletUri"`      // nostr+walletconnect:// pairing URI
	DefaultZapSats int64    `json:"defaultZapSats"` // zap amount when none is given
}

var (
	clientConfig     *ClientConfig
	clientConfigMu   sync.RWMutex
	clientConfigOnce sync.Once
)

// GetClientConfig returns the current client configuration (thread-safe)
func GetClientConfig() *ClientConfig {
	clientConfigOnce.Do(func() {
		clientConfigMu.Lock()
		defer clientConfigMu.Unlock()
		if clientConfig == nil {
			clientConfig = loadClientConfigFromFile()
		}
	})

	clientConfigMu.RLock()
	defer clientConfigMu.RUnlock()
	return clientConfig
}

// ReloadClientConfig reloads the configuration from file
func ReloadClientConfig() error {
	newConfig := loadClientConfigFromFile()
	clientConfigMu.Lock()
	defer clientConfigMu.Unlock()
	clientConfig = newConfig
	slog.Info("client configuration reloaded", "relays", len(newConfig.Relays))
	return nil
}

func loadClientConfigFromFile() *ClientConfig {
	config := getDefaultClientConfig()

	configPath := os.Getenv("NOSTR_CLIENT_CONFIG")
	if configPath == "" {
		configPath = "config/client.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("client config file not found, using defaults", "path", configPath)
		} else {
			slog.Warn("could not read client config, using defaults", "path", configPath, "error", err)
		}
	} else if err := json.Unmarshal(data, config); err != nil {
		slog.Error("invalid JSON in client config, using defaults", "path", configPath, "error", err)
		config = getDefaultClientConfig()
	}

	applyEnvOverrides(config)

	slog.Info("loaded client configuration",
		"relays", len(config.Relays),
		"dataDir", config.DataDir,
		"redis", config.RedisURL != "")
	return config
}

// applyEnvOverrides lets environment variables win over the file, which
// keeps secrets like the private key out of the JSON.
func applyEnvOverrides(config *ClientConfig) {
	if relays := os.Getenv("NOSTR_RELAYS"); relays != "" {
		config.Relays = config.Relays[:0]
		for _, r := range strings.Split(relays, ",") {
			if r = strings.TrimSpace(r); r != "" {
				config.Relays = append(config.Relays, r)
			}
		}
	}
	if dataDir := os.Getenv("NOSTR_DATA_DIR"); dataDir != "" {
		config.DataDir = dataDir
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}
	if key := os.Getenv("NOSTR_PRIVATE_KEY"); key != "" {
		config.PrivateKey = key
	}
	if uri := os.Getenv("NWC_URI"); uri != "" {
		config.WalletURI = uri
	}
}

// getDefaultClientConfig returns the embedded default configuration
func getDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Relays:         nil, // callers fall back to their built-in relay set
		DataDir:        ".",
		DefaultZapSats: 21,
	}
}
