package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: 9090
database:
  dsn: postgres://payroll@localhost/payroll
relayer:
  address: "0x00000000000000000000000000000000000000bb"
  fee: "10"
claims:
  pollInitialInterval: 2s
  pollMaxAttempts: 5
`

func TestParseAppliesDefaultsAndYaml(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Tree.Depth)
	assert.Equal(t, 2*time.Second, cfg.Claims.PollInitialInterval)
	assert.Equal(t, 10*time.Second, cfg.Claims.PollMaxInterval)
	assert.Equal(t, 1.5, cfg.Claims.PollMultiplier)
	assert.Equal(t, 5, cfg.Claims.PollMaxAttempts)
	assert.Equal(t, "advisory", cfg.Ingestion.Lock)
	assert.Equal(t, 10*time.Minute, cfg.Claims.ReserveSettleWindow)
	assert.Equal(t, int64(10), cfg.RelayerFee().Int64())
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("RELAYER_FEE", "25")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, int64(25), cfg.RelayerFee().Int64())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"depth zero":        func(c *Config) { c.Tree.Depth = 0 },
		"depth too large":   func(c *Config) { c.Tree.Depth = 33 },
		"negative fee":      func(c *Config) { c.Relayer.Fee = "-1" },
		"bad fee":           func(c *Config) { c.Relayer.Fee = "ten" },
		"bad relayer":       func(c *Config) { c.Relayer.Address = "0x12" },
		"bad lock":          func(c *Config) { c.Ingestion.Lock = "zookeeper" },
		"redis without url": func(c *Config) { c.Ingestion.Lock = "redis" },
		"memory advisory":   func(c *Config) { c.Database.Driver = "memory" },
		"missing dsn":       func(c *Config) { c.Database.DSN = "" },
		"shrinking backoff": func(c *Config) { c.Claims.PollMultiplier = 0.5 },
		"max below initial": func(c *Config) { c.Claims.PollMaxInterval = time.Millisecond },
		"settle below tx":   func(c *Config) { c.Claims.ReserveSettleWindow = time.Minute },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.DSN = "postgres://x"
			require.NoError(t, cfg.Validate())
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
