package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config stores all configuration for the bridge node.
type Config struct {
	// Execution engine configuration
	Engine struct {
		Endpoint  string `yaml:"endpoint"`  // Plain JSON-RPC endpoint (e.g., "http://localhost:8545")
		EngineAPI string `yaml:"engineAPI"` // Authenticated Engine API endpoint (e.g., "http://localhost:8551")
		JWTSecret string `yaml:"jwtSecret"` // Path to hex-encoded JWT secret file
		Timeout   int    `yaml:"timeout"`   // Per-call timeout in seconds
	} `yaml:"engine"`

	// BFT consensus node configuration
	Consensus struct {
		Endpoint   string `yaml:"endpoint"`   // RPC endpoint of the BFT node (e.g., "http://localhost:26657")
		ListenAddr string `yaml:"listenAddr"` // Address for the ABCI socket server
	} `yaml:"consensus"`

	// Block production configuration
	Producer struct {
		BlockInterval int    `yaml:"blockInterval"` // Production ticker period in seconds
		MaxBacklog    int    `yaml:"maxBacklog"`    // Maximum queued production attempts; oldest dropped beyond this
		FeeRecipient  string `yaml:"feeRecipient"`  // Address to receive block rewards
		HealthAddr    string `yaml:"healthAddr"`    // Address for health/metrics server
		LogLevel      string `yaml:"logLevel"`      // Log level (debug, info, warn, error)
	} `yaml:"producer"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Engine.Endpoint = "http://localhost:8545"
	cfg.Engine.EngineAPI = "http://localhost:8551"
	cfg.Engine.JWTSecret = "./jwt.hex"
	cfg.Engine.Timeout = 10

	cfg.Consensus.Endpoint = "http://localhost:26657"
	cfg.Consensus.ListenAddr = "0.0.0.0:26658"

	cfg.Producer.BlockInterval = 12
	cfg.Producer.MaxBacklog = 64
	cfg.Producer.HealthAddr = "0.0.0.0:8081"
	cfg.Producer.LogLevel = "info"

	return cfg
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("PBFTBRIDGE_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables if provided
	if host := os.Getenv("ENGINE_HOST"); host != "" {
		cfg.Engine.Endpoint = replaceHost(cfg.Engine.Endpoint, host)
		cfg.Engine.EngineAPI = replaceHost(cfg.Engine.EngineAPI, host)
	}

	if host := os.Getenv("CONSENSUS_HOST"); host != "" {
		cfg.Consensus.Endpoint = replaceHost(cfg.Consensus.Endpoint, host)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Engine.JWTSecret), 0755); err != nil {
		return nil, err
	}

	return cfg, nil
}

func replaceHost(rawURL, newHost string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		// Fallback to simple replacement if parsing fails
		return strings.Replace(rawURL, "localhost", newHost, 1)
	}

	// Preserve the port when swapping the host
	port := ""
	if i := strings.LastIndex(u.Host, ":"); i >= 0 {
		port = u.Host[i:]
	}

	u.Host = newHost + port
	return u.String()
}

// Save writes the configuration to a file.
func (c *Config) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(c)
}
