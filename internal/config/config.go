package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"frontrunner/internal/model"
)

// Strategy names accepted by app.strategy.
const (
	StrategyOpenClose = "open_close"
	StrategyRoam      = "roam"
)

// Threshold modes accepted by app.threshold_mode.
const (
	ThresholdGlobal    = "global"
	ThresholdDeviation = "deviation"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	App      AppConfig
	Chain    ChainConfig
	Database DatabaseConfig
	Sources  map[string]SourceConfig
	Log      LogConfig
	Alert    AlertConfig
	Status   StatusConfig
}

// AppConfig defines the decision pipeline settings.
type AppConfig struct {
	Network             string        `mapstructure:"network"`
	Testing             bool          `mapstructure:"testing"`
	Strategy            string        `mapstructure:"strategy"`
	Pairs               []string      `mapstructure:"pairs"`
	Heartbeat           time.Duration `mapstructure:"heartbeat"`
	HeartbeatLogUpdate  int64         `mapstructure:"heartbeat_log_update"`
	FetchPriceTimeout   time.Duration `mapstructure:"fetch_price_timeout"`
	Concurrency         int           `mapstructure:"concurrency"`
	ThresholdMode       string        `mapstructure:"threshold_mode"`
	DivergenceThreshold float64       `mapstructure:"divergence_threshold"`
	PositionSize        float64       `mapstructure:"position_size"`
	SourceSymbol        string        `mapstructure:"source_symbol"`
	SimulatedTradeDelay time.Duration `mapstructure:"simulated_trade_delay"`
	RoamStartSymbol     string        `mapstructure:"roam_start_symbol"`
}

// ChainConfig defines the RPC endpoint and contract addresses.
type ChainConfig struct {
	RPCURL        string                  `mapstructure:"rpc_url"`
	PrivateKey    string                  `mapstructure:"private_key"`
	ChainID       int64                   `mapstructure:"chain_id"`
	ExchangeRates string                  `mapstructure:"exchange_rates"`
	Synthetix     string                  `mapstructure:"synthetix"`
	Oracles       map[string]OracleConfig `mapstructure:"oracles"`
}

// OracleConfig defines a Chainlink aggregator for one pair.
type OracleConfig struct {
	Address   string  `mapstructure:"address"`
	Decimals  int32   `mapstructure:"decimals"`
	Deviation float64 `mapstructure:"deviation"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string `mapstructure:"sslmode"`
}

// SourceConfig defines settings for a specific price source.
type SourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	WSURL   string `mapstructure:"ws_url"`
}

// LogConfig defines the logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AlertConfig defines where relay-tagged log entries are forwarded.
type AlertConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	RatePerMin int           `mapstructure:"rate_per_min"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// StatusConfig defines the inspection HTTP server.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// ParsedPairs returns the configured pairs in canonical order.
func (a AppConfig) ParsedPairs() ([]model.Pair, error) {
	return model.ParsePairs(a.Pairs)
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in path is loaded into the environment first, if present.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load(strings.TrimSuffix(path, "/") + "/.env")

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.network", "optimistic_kovan")
	v.SetDefault("app.testing", true)
	v.SetDefault("app.strategy", StrategyOpenClose)
	v.SetDefault("app.pairs", []string{"BTCUSD", "ETHUSD", "LINKUSD", "UNIUSD", "AAVEUSD"})
	v.SetDefault("app.heartbeat", "10s")
	v.SetDefault("app.heartbeat_log_update", 30)
	v.SetDefault("app.fetch_price_timeout", "5s")
	v.SetDefault("app.concurrency", 5)
	v.SetDefault("app.threshold_mode", ThresholdGlobal)
	v.SetDefault("app.divergence_threshold", 0.003)
	v.SetDefault("app.position_size", 10000)
	v.SetDefault("app.source_symbol", model.SUSD)
	v.SetDefault("app.simulated_trade_delay", "2s")
	v.SetDefault("app.roam_start_symbol", model.SUSD)

	v.SetDefault("chain.chain_id", 69)
	v.SetDefault("chain.oracles", map[string]any{
		"AAVEUSD": map[string]any{"address": "0x547a514d5e3769680Ce22B2361c10Ea13619e8a9", "decimals": 8, "deviation": 0.01},
		"BTCUSD":  map[string]any{"address": "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c", "decimals": 8, "deviation": 0.005},
		"ETHUSD":  map[string]any{"address": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419", "decimals": 8, "deviation": 0.005},
		"LINKUSD": map[string]any{"address": "0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c", "decimals": 8, "deviation": 0.01},
		"UNIUSD":  map[string]any{"address": "0x553303d460EE0afB37EdFf9bE42922D8FF63220e", "decimals": 8, "deviation": 0.01},
	})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("sources", map[string]any{
		"coinbase": map[string]any{"enabled": true, "base_url": "https://api.coinbase.com"},
		"kraken":   map[string]any{"enabled": true, "base_url": "https://api.kraken.com"},
		"bitfinex": map[string]any{"enabled": true, "base_url": "https://api-pub.bitfinex.com", "ws_url": "wss://api-pub.bitfinex.com/ws/2"},
	})

	v.SetDefault("log.level", "info")
	v.SetDefault("alert.rate_per_min", 20)
	v.SetDefault("alert.timeout", "5s")
	v.SetDefault("status.addr", ":8080")
}

// Validate checks the settings the pipeline cannot run without.
func (c Config) Validate() error {
	var errs []error
	pairs, err := c.App.ParsedPairs()
	if err != nil {
		errs = append(errs, err)
	}
	if len(c.App.Pairs) == 0 {
		errs = append(errs, errors.New("app.pairs must not be empty"))
	}
	switch c.App.Strategy {
	case StrategyOpenClose, StrategyRoam:
	default:
		errs = append(errs, fmt.Errorf("unknown app.strategy %q", c.App.Strategy))
	}
	switch c.App.ThresholdMode {
	case ThresholdGlobal, ThresholdDeviation:
	default:
		errs = append(errs, fmt.Errorf("unknown app.threshold_mode %q", c.App.ThresholdMode))
	}
	if c.App.Heartbeat <= 0 {
		errs = append(errs, errors.New("app.heartbeat must be positive"))
	}
	if c.App.Concurrency <= 0 {
		errs = append(errs, errors.New("app.concurrency must be positive"))
	}
	if c.App.PositionSize <= 0 {
		errs = append(errs, errors.New("app.position_size must be positive"))
	}
	if c.App.ThresholdMode == ThresholdDeviation {
		for _, p := range pairs {
			if _, ok := c.Chain.Oracle(p); !ok {
				errs = append(errs, fmt.Errorf("no oracle deviation configured for %s", p))
			}
		}
	}
	return errors.Join(errs...)
}

// Oracle returns the oracle settings of a pair. Viper lower-cases map keys.
func (c ChainConfig) Oracle(p model.Pair) (OracleConfig, bool) {
	if o, ok := c.Oracles[strings.ToLower(string(p))]; ok {
		return o, true
	}
	o, ok := c.Oracles[string(p)]
	return o, ok
}

// Deviations returns the per-pair deviation table.
func (c ChainConfig) Deviations(pairs []model.Pair) map[model.Pair]float64 {
	out := make(map[model.Pair]float64, len(pairs))
	for _, p := range pairs {
		if o, ok := c.Oracle(p); ok {
			out[p] = o.Deviation
		}
	}
	return out
}
