package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration for the trading core.
type Config struct {
	LoggingConfig    LoggingConfig    `json:"logging"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	FeedConfig       FeedConfig       `json:"feed"`
	RegimeConfig     RegimeConfig     `json:"regime"`
	SimilarityConfig SimilarityConfig `json:"similarity"`
	ConfidenceConfig ConfidenceConfig `json:"confidence"`
	ExitConfig       ExitConfig       `json:"exit"`
	BacktestConfig   BacktestConfig   `json:"backtest"`
	StoreConfig      StoreConfig      `json:"store"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Output string `json:"output"` // stdout, stderr, or file path
	Pretty bool   `json:"pretty"` // Human-readable console output instead of JSON
}

// DatabaseConfig holds PostgreSQL connection settings for the experience store.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for the shared experience cache.
type RedisConfig struct {
	Enabled         bool          `json:"enabled"`
	Address         string        `json:"address"`
	Password        string        `json:"password"`
	DB              int           `json:"db"`
	PoolSize        int           `json:"pool_size"`
	RefreshInterval time.Duration `json:"refresh_interval"` // How often the shared view is re-read
}

// FeedConfig holds the live market-data stream settings.
type FeedConfig struct {
	Enabled    bool     `json:"enabled"`
	WSBaseURL  string   `json:"ws_base_url"`
	Symbols    []string `json:"symbols"`
	Interval   string   `json:"interval"`    // Kline interval, e.g. "1m"
	WindowSize int      `json:"window_size"` // Rolling bar window capacity per symbol
}

// RegimeConfig holds the market-regime detector thresholds.
// Defaults reproduce tuned production behavior; these are calibration
// constants, not magic numbers.
type RegimeConfig struct {
	MinBars         int     `json:"min_bars"`          // Minimum history before classification
	ATRPeriod       int     `json:"atr_period"`        // Current-ATR period
	HighVolRatio    float64 `json:"high_vol_ratio"`    // Strictly above => HIGH volatility
	LowVolRatio     float64 `json:"low_vol_ratio"`     // Strictly below => LOW volatility
	TrendThreshold  float64 `json:"trend_threshold"`   // Directional pct above => TRENDING
	PriceActionBars int     `json:"price_action_bars"` // Window for directional pct
}

// SimilarityConfig holds the weighted-distance formula parameters.
// Weights and scales encode domain priors tuned against the historical
// experience distribution.
type SimilarityConfig struct {
	RSIWeight    float64 `json:"rsi_weight"`
	VWAPWeight   float64 `json:"vwap_weight"`
	ATRWeight    float64 `json:"atr_weight"`
	VolumeWeight float64 `json:"volume_weight"`
	HourWeight   float64 `json:"hour_weight"`
	StreakWeight float64 `json:"streak_weight"`

	RSIScale    float64 `json:"rsi_scale"`
	VWAPScale   float64 `json:"vwap_scale"`
	ATRScale    float64 `json:"atr_scale"`
	VolumeScale float64 `json:"volume_scale"`
	HourScale   float64 `json:"hour_scale"`
	StreakScale float64 `json:"streak_scale"`
}

// ConfidenceConfig holds the dual pattern-matching calculator parameters.
type ConfidenceConfig struct {
	Threshold       float64 `json:"threshold"`         // Entry threshold (commonly 0.5-0.7)
	MinExperiences  int     `json:"min_experiences"`   // Cold-start floor
	MinWinners      int     `json:"min_winners"`       // Minimum winners for full computation
	MinLosers       int     `json:"min_losers"`        // Minimum losers before penalizing
	ColdStartValue  float64 `json:"cold_start_value"`  // Optimistic default confidence
	MaxMatches      int     `json:"max_matches"`       // Top-K matches per partition
	WinRateWeight   float64 `json:"win_rate_weight"`
	ProfitWeight    float64 `json:"profit_weight"`
	LossRateWeight  float64 `json:"loss_rate_weight"`
	LossSizeWeight  float64 `json:"loss_size_weight"`
	PnLScale        float64 `json:"pnl_scale"`         // Profit/loss normalization
	MaxLoserPenalty float64 `json:"max_loser_penalty"` // Penalty cap
}

// ExitConfig holds adaptive exit-parameter selection settings.
type ExitConfig struct {
	MinSamples     int     `json:"min_samples"` // Minimum (symbol, regime) samples before learned params
	ModelFile      string  `json:"model_file"`  // Optional serialized regressor; empty disables the learned path
	BreakevenTicks float64 `json:"breakeven_ticks"`
	TrailingTicks  float64 `json:"trailing_ticks"`
	StopMult       float64 `json:"stop_mult"`
	Partial1R      float64 `json:"partial_1_r"`
	Partial2R      float64 `json:"partial_2_r"`
	Partial3R      float64 `json:"partial_3_r"`
}

// BacktestConfig holds backtest harness settings.
type BacktestConfig struct {
	Symbol         string  `json:"symbol"`
	InitialBalance float64 `json:"initial_balance"`
	PositionSize   float64 `json:"position_size"` // Fraction of balance per trade
	Commission     float64 `json:"commission"`    // Fee percentage per side
	TickSize       float64 `json:"tick_size"`
	WarmupBars     int     `json:"warmup_bars"` // Bars consumed before the first decision
}

// StoreConfig holds experience-store persistence settings.
type StoreConfig struct {
	Backend      string `json:"backend"`        // "file", "postgres", or "memory"
	FilePath     string `json:"file_path"`      // JSON file for the file backend
	ExitFilePath string `json:"exit_file_path"` // JSON file for exit experiences
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}

	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.RedisConfig.RefreshInterval == 0 {
		cfg.RedisConfig.RefreshInterval = 60 * time.Second
	}

	if cfg.FeedConfig.WSBaseURL == "" {
		cfg.FeedConfig.WSBaseURL = "wss://fstream.binance.com/stream"
	}
	if cfg.FeedConfig.Interval == "" {
		cfg.FeedConfig.Interval = "1m"
	}
	if cfg.FeedConfig.WindowSize == 0 {
		cfg.FeedConfig.WindowSize = 1000
	}

	if cfg.RegimeConfig.MinBars == 0 {
		cfg.RegimeConfig.MinBars = 34
	}
	if cfg.RegimeConfig.ATRPeriod == 0 {
		cfg.RegimeConfig.ATRPeriod = 14
	}
	if cfg.RegimeConfig.HighVolRatio == 0 {
		cfg.RegimeConfig.HighVolRatio = 1.15
	}
	if cfg.RegimeConfig.LowVolRatio == 0 {
		cfg.RegimeConfig.LowVolRatio = 0.85
	}
	if cfg.RegimeConfig.TrendThreshold == 0 {
		cfg.RegimeConfig.TrendThreshold = 0.60
	}
	if cfg.RegimeConfig.PriceActionBars == 0 {
		cfg.RegimeConfig.PriceActionBars = 20
	}

	s := &cfg.SimilarityConfig
	if s.RSIWeight == 0 && s.VWAPWeight == 0 && s.ATRWeight == 0 {
		s.RSIWeight, s.VWAPWeight, s.ATRWeight = 0.25, 0.25, 0.20
		s.VolumeWeight, s.HourWeight, s.StreakWeight = 0.15, 0.10, 0.05
	}
	if s.RSIScale == 0 {
		s.RSIScale, s.VWAPScale, s.ATRScale = 100, 5, 20
		s.VolumeScale, s.HourScale, s.StreakScale = 3, 24, 10
	}

	c := &cfg.ConfidenceConfig
	if c.Threshold == 0 {
		c.Threshold = 0.60
	}
	if c.MinExperiences == 0 {
		c.MinExperiences = 20
	}
	if c.MinWinners == 0 {
		c.MinWinners = 10
	}
	if c.MinLosers == 0 {
		c.MinLosers = 10
	}
	if c.ColdStartValue == 0 {
		c.ColdStartValue = 0.65
	}
	if c.MaxMatches == 0 {
		c.MaxMatches = 20
	}
	if c.WinRateWeight == 0 {
		c.WinRateWeight = 0.9
	}
	if c.ProfitWeight == 0 {
		c.ProfitWeight = 0.1
	}
	if c.LossRateWeight == 0 {
		c.LossRateWeight = 0.4
	}
	if c.LossSizeWeight == 0 {
		c.LossSizeWeight = 0.1
	}
	if c.PnLScale == 0 {
		c.PnLScale = 300
	}
	if c.MaxLoserPenalty == 0 {
		c.MaxLoserPenalty = 0.5
	}

	e := &cfg.ExitConfig
	if e.MinSamples == 0 {
		e.MinSamples = 5
	}
	if e.BreakevenTicks == 0 {
		e.BreakevenTicks = 12
	}
	if e.TrailingTicks == 0 {
		e.TrailingTicks = 16
	}
	if e.StopMult == 0 {
		e.StopMult = 1.5
	}
	if e.Partial1R == 0 {
		e.Partial1R = 1.0
	}
	if e.Partial2R == 0 {
		e.Partial2R = 2.0
	}
	if e.Partial3R == 0 {
		e.Partial3R = 3.0
	}

	b := &cfg.BacktestConfig
	if b.Symbol == "" {
		b.Symbol = "MESUSD"
	}
	if b.InitialBalance == 0 {
		b.InitialBalance = 10000
	}
	if b.PositionSize == 0 {
		b.PositionSize = 0.10
	}
	if b.TickSize == 0 {
		b.TickSize = 0.25
	}
	if b.WarmupBars == 0 {
		b.WarmupBars = 50
	}

	if cfg.StoreConfig.Backend == "" {
		cfg.StoreConfig.Backend = "file"
	}
	if cfg.StoreConfig.FilePath == "" {
		cfg.StoreConfig.FilePath = "experiences.json"
	}
	if cfg.StoreConfig.ExitFilePath == "" {
		cfg.StoreConfig.ExitFilePath = "exit_experiences.json"
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.Pretty = getEnvBoolOrDefault("LOG_PRETTY", cfg.LoggingConfig.Pretty)

	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)

	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.FeedConfig.Enabled = getEnvBoolOrDefault("FEED_ENABLED", cfg.FeedConfig.Enabled)
	cfg.FeedConfig.WSBaseURL = getEnvOrDefault("FEED_WS_BASE_URL", cfg.FeedConfig.WSBaseURL)
	cfg.FeedConfig.Interval = getEnvOrDefault("FEED_INTERVAL", cfg.FeedConfig.Interval)

	cfg.ConfidenceConfig.Threshold = getEnvFloatOrDefault("CONFIDENCE_THRESHOLD", cfg.ConfidenceConfig.Threshold)

	cfg.StoreConfig.Backend = getEnvOrDefault("STORE_BACKEND", cfg.StoreConfig.Backend)
	cfg.StoreConfig.FilePath = getEnvOrDefault("STORE_FILE_PATH", cfg.StoreConfig.FilePath)
	cfg.StoreConfig.ExitFilePath = getEnvOrDefault("STORE_EXIT_FILE_PATH", cfg.StoreConfig.ExitFilePath)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
