package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frontrunner/internal/model"
)

const sampleYAML = `
app:
  strategy: roam
  pairs: [LINKUSD, BTCUSD]
  heartbeat: 3s
  divergence_threshold: 0.004
database:
  host: db
  port: 5433
  user: frontrunner
  password: secret
  dbname: frontrunner
`

func TestLoadConfig(t *testing.T) {
	t.Run("file values over defaults", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sampleYAML), 0o600))

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)

		assert.Equal(t, StrategyRoam, cfg.App.Strategy)
		assert.Equal(t, 3*time.Second, cfg.App.Heartbeat)
		assert.Equal(t, 0.004, cfg.App.DivergenceThreshold)
		assert.Equal(t, 10000.0, cfg.App.PositionSize)
		assert.Equal(t, 5, cfg.App.Concurrency)
		assert.Equal(t, "postgres://frontrunner:secret@db:5433/frontrunner?sslmode=disable", cfg.Database.DSN())

		pairs, err := cfg.App.ParsedPairs()
		require.NoError(t, err)
		assert.Equal(t, []model.Pair{model.BTCUSD, model.LINKUSD}, pairs)

		o, ok := cfg.Chain.Oracle(model.BTCUSD)
		require.True(t, ok)
		assert.Equal(t, int32(8), o.Decimals)
	})

	t.Run("environment overrides", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(sampleYAML), 0o600))
		t.Setenv("APP_DIVERGENCE_THRESHOLD", "0.01")

		cfg, err := LoadConfig(dir)
		require.NoError(t, err)
		assert.Equal(t, 0.01, cfg.App.DivergenceThreshold)
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadConfig(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, StrategyOpenClose, cfg.App.Strategy)
		assert.Len(t, cfg.App.Pairs, 5)
	})
}

func TestValidate(t *testing.T) {
	valid := Config{App: AppConfig{
		Strategy:      StrategyOpenClose,
		ThresholdMode: ThresholdGlobal,
		Pairs:         []string{"BTCUSD"},
		Heartbeat:     time.Second,
		Concurrency:   5,
		PositionSize:  10000,
	}}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.App.Pairs = []string{"DOGEUSD"}
	assert.Error(t, bad.Validate())

	bad = valid
	bad.App.Strategy = "yolo"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.App.ThresholdMode = ThresholdDeviation
	assert.ErrorContains(t, bad.Validate(), "no oracle deviation configured for BTCUSD")
}
