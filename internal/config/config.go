package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Prover    ProverConfig    `yaml:"prover"`
	Relayer   RelayerConfig   `yaml:"relayer"`
	Tree      TreeConfig      `yaml:"tree"`
	Claims    ClaimsConfig    `yaml:"claims"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Admin     AdminConfig     `yaml:"admin"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig Database configuration. Driver "memory" runs without postgres.
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// RedisConfig is only required when ingestion.lock is "redis"
type RedisConfig struct {
	URL string `yaml:"url"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LedgerConfig is the payroll ledger contract the backend registers roots on
// and reserves, finalizes and cancels withdrawals against.
type LedgerConfig struct {
	RPCURL     string        `yaml:"rpcUrl"`
	ChainID    int64         `yaml:"chainId"`
	Contract   string        `yaml:"contract"`
	PrivateKey string        `yaml:"privateKey"` // hex, without 0x prefix
	GasLimit   uint64        `yaml:"gasLimit"`
	GasPrice   string        `yaml:"gasPrice"` // wei; empty means suggested
	TxTimeout  time.Duration `yaml:"txTimeout"`
}

// ProverConfig withdraw circuit prover service
type ProverConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// RelayerConfig payout relayer service
type RelayerConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Address string        `yaml:"address"` // relayer address bound into every request hash
	Fee     string        `yaml:"fee"`     // flat fee per withdrawal, smallest unit
	Timeout time.Duration `yaml:"timeout"`
}

// TreeConfig commitment tree parameters; must match the circuit
type TreeConfig struct {
	Depth int `yaml:"depth"`
}

// ClaimsConfig withdrawal coordinator configuration
type ClaimsConfig struct {
	TokenKey            string        `yaml:"tokenKey"`        // 32 byte hex key sealing claim tokens
	PayoutSignerKey     string        `yaml:"payoutSignerKey"` // hex private key signing payout authorizations
	PollInitialInterval time.Duration `yaml:"pollInitialInterval"`
	PollMultiplier      float64       `yaml:"pollMultiplier"`
	PollMaxInterval     time.Duration `yaml:"pollMaxInterval"`
	PollMaxAttempts     int           `yaml:"pollMaxAttempts"`
	RecoveryInterval    time.Duration `yaml:"recoveryInterval"` // 0 = scan only at startup
	RecoveryBatchSize   int           `yaml:"recoveryBatchSize"`
	RecoveryGrace       time.Duration `yaml:"recoveryGrace"` // submitted claims younger than this are left to their owner
	// ReserveSettleWindow bounds how long an untracked reserve transaction may still be mined.
	ReserveSettleWindow time.Duration `yaml:"reserveSettleWindow"`
}

// IngestionConfig batch ingestion critical section
type IngestionConfig struct {
	Lock    string        `yaml:"lock"` // advisory | redis | local
	LockKey string        `yaml:"lockKey"`
	LockTTL time.Duration `yaml:"lockTTL"`
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	TOTPSecret string   `yaml:"totpSecret"`
	JWTSecret  string   `yaml:"jwtSecret"`
	TokenTTL   int      `yaml:"tokenTTL"`   // hours
	AllowedIPs []string `yaml:"allowedIPs"` // List of allowed IP addresses or CIDR ranges
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

var AppConfig *Config

// Default returns a configuration with every tunable set to its default.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Driver: "postgres"},
		NATS:     NATSConfig{Timeout: 5, ReconnectWait: 2, MaxReconnects: 10, SubjectPrefix: "payroll"},
		Ledger:   LedgerConfig{GasLimit: 1_500_000, TxTimeout: 2 * time.Minute},
		Prover:   ProverConfig{Timeout: 2 * time.Minute},
		Relayer:  RelayerConfig{Fee: "0", Timeout: 30 * time.Second},
		Tree:     TreeConfig{Depth: 20},
		Claims: ClaimsConfig{
			PollInitialInterval: time.Second,
			PollMultiplier:      1.5,
			PollMaxInterval:     10 * time.Second,
			PollMaxAttempts:     30,
			RecoveryInterval:    5 * time.Minute,
			RecoveryBatchSize:   500,
			RecoveryGrace:       2 * time.Minute,
			ReserveSettleWindow: 10 * time.Minute,
		},
		Ingestion: IngestionConfig{Lock: "advisory", LockKey: "payroll:ingestion", LockTTL: 5 * time.Minute},
		Admin:     AdminConfig{TokenTTL: 24},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			logrus.Info("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return err
	}
	logrus.WithField("path", configPath).Info("✅ Configuration loaded")

	if len(config.Admin.AllowedIPs) > 0 {
		logrus.Infof("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured", len(config.Admin.AllowedIPs))
	} else {
		logrus.Info("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)")
	}

	AppConfig = config
	return nil
}

// Parse decodes YAML over the defaults, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	overrideFromEnv(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// overrideFromEnv Override configuration from environment
func overrideFromEnv(config *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	str("DATABASE_DSN", &config.Database.DSN)
	str("DATABASE_DRIVER", &config.Database.Driver)
	str("SERVER_HOST", &config.Server.Host)
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	str("REDIS_URL", &config.Redis.URL)
	str("NATS_URL", &config.NATS.URL)

	str("LEDGER_RPC_URL", &config.Ledger.RPCURL)
	str("LEDGER_CONTRACT", &config.Ledger.Contract)
	str("LEDGER_PRIVATE_KEY", &config.Ledger.PrivateKey)
	if chainID := os.Getenv("LEDGER_CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseInt(chainID, 10, 64); err == nil {
			config.Ledger.ChainID = id
		}
	}
	str("LEDGER_GAS_PRICE", &config.Ledger.GasPrice)

	str("PROVER_BASE_URL", &config.Prover.BaseURL)
	str("RELAYER_BASE_URL", &config.Relayer.BaseURL)
	str("RELAYER_ADDRESS", &config.Relayer.Address)
	str("RELAYER_FEE", &config.Relayer.Fee)

	str("CLAIM_TOKEN_KEY", &config.Claims.TokenKey)
	str("PAYOUT_SIGNER_KEY", &config.Claims.PayoutSignerKey)
	str("INGESTION_LOCK", &config.Ingestion.Lock)

	str("ADMIN_USERNAME", &config.Admin.Username)
	str("ADMIN_PASSWORD", &config.Admin.Password)
	str("ADMIN_TOTP_SECRET", &config.Admin.TOTPSecret)
	str("ADMIN_JWT_SECRET", &config.Admin.JWTSecret)

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}

	str("LOG_LEVEL", &config.Log.Level)
	str("LOG_FORMAT", &config.Log.Format)
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if c.Tree.Depth < 1 || c.Tree.Depth > 32 {
		return fmt.Errorf("tree.depth must be in 1..32, got %d", c.Tree.Depth)
	}
	if fee, ok := new(big.Int).SetString(c.Relayer.Fee, 10); !ok || fee.Sign() < 0 {
		return fmt.Errorf("relayer.fee must be a non-negative decimal, got %q", c.Relayer.Fee)
	}
	if c.Relayer.Address != "" && !common.IsHexAddress(c.Relayer.Address) {
		return fmt.Errorf("relayer.address is not a valid address: %q", c.Relayer.Address)
	}
	if c.Ledger.Contract != "" && !common.IsHexAddress(c.Ledger.Contract) {
		return fmt.Errorf("ledger.contract is not a valid address: %q", c.Ledger.Contract)
	}
	if c.Claims.PollMultiplier < 1 {
		return fmt.Errorf("claims.pollMultiplier must be >= 1, got %v", c.Claims.PollMultiplier)
	}
	if c.Claims.PollMaxAttempts < 1 {
		return fmt.Errorf("claims.pollMaxAttempts must be >= 1, got %d", c.Claims.PollMaxAttempts)
	}
	if c.Claims.PollInitialInterval <= 0 || c.Claims.PollMaxInterval < c.Claims.PollInitialInterval {
		return fmt.Errorf("claims poll intervals are inconsistent: initial=%s max=%s",
			c.Claims.PollInitialInterval, c.Claims.PollMaxInterval)
	}
	if c.Claims.ReserveSettleWindow < c.Ledger.TxTimeout {
		return fmt.Errorf("claims.reserveSettleWindow (%s) must be at least ledger.txTimeout (%s)",
			c.Claims.ReserveSettleWindow, c.Ledger.TxTimeout)
	}
	switch c.Ingestion.Lock {
	case "advisory", "local":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("ingestion.lock=redis requires redis.url")
		}
	default:
		return fmt.Errorf("ingestion.lock must be advisory, redis or local, got %q", c.Ingestion.Lock)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case "memory":
		if c.Ingestion.Lock == "advisory" {
			return fmt.Errorf("ingestion.lock=advisory requires the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}
	return nil
}

// RelayerFee returns the configured fee as an integer.
func (c *Config) RelayerFee() *big.Int {
	fee, _ := new(big.Int).SetString(c.Relayer.Fee, 10)
	return fee
}

// ConfigureLogging applies log.level and log.format to the global logrus logger.
func (c *Config) ConfigureLogging() {
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logrus.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
