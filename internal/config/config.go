package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Market   Market   `mapstructure:"market"`
	Trading  Trading  `mapstructure:"trading"`
	Strategy Strategy `mapstructure:"strategy"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Market holds the configuration for the market data API.
type Market struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port    int `mapstructure:"port"`
	ApiPort int `mapstructure:"api_port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Trading holds the configuration for the trading loop and the paper account.
type Trading struct {
	Symbols        []string `mapstructure:"symbols"`
	Interval       string   `mapstructure:"interval"`
	BarLimit       int      `mapstructure:"bar_limit"`
	Quantity       float64  `mapstructure:"quantity"`
	TickInterval   int      `mapstructure:"tick_interval"`
	AutoTrade      bool     `mapstructure:"auto_trade"`
	InitialBalance float64  `mapstructure:"initial_balance"`
	MarginFraction float64  `mapstructure:"margin_fraction"`
}

// Strategy holds the band-trend signal parameters.
type Strategy struct {
	PeriodTrend          int     `mapstructure:"period_trend"`
	PeriodVolatility     int     `mapstructure:"period_volatility"`
	PeriodSmoothing      int     `mapstructure:"period_smoothing"`
	VolatilityMultiplier float64 `mapstructure:"volatility_multiplier"`
	TargetOffset         int     `mapstructure:"target_offset"`
	EmitInitialSignal    bool    `mapstructure:"emit_initial_signal"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("market.rate_limit", 20)      // requests per second
	viper.SetDefault("market.rate_limit_burst", 5) // burst size
	viper.SetDefault("trading.interval", "15m")
	viper.SetDefault("trading.bar_limit", 200)
	viper.SetDefault("trading.initial_balance", 100000)
	viper.SetDefault("trading.margin_fraction", 0.2)
	viper.SetDefault("strategy.period_trend", 6)
	viper.SetDefault("strategy.period_volatility", 50)
	viper.SetDefault("strategy.period_smoothing", 50)
	viper.SetDefault("strategy.volatility_multiplier", 0.8)
	viper.SetDefault("strategy.target_offset", 0)
	viper.SetDefault("strategy.emit_initial_signal", true)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	err = config.Validate()
	return
}

// Validate checks the loaded configuration for values the engines cannot run
// with. Strategy parameters are validated again at strategy construction; this
// covers the surrounding knobs.
func (c *Config) Validate() error {
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("config: trading.symbols must list at least one symbol")
	}
	if c.Trading.TickInterval <= 0 {
		return fmt.Errorf("config: trading.tick_interval must be positive, got %d", c.Trading.TickInterval)
	}
	if c.Trading.Quantity <= 0 {
		return fmt.Errorf("config: trading.quantity must be positive, got %f", c.Trading.Quantity)
	}
	if c.Trading.MarginFraction < 0 || c.Trading.MarginFraction > 1 {
		return fmt.Errorf("config: trading.margin_fraction must be in [0,1], got %f", c.Trading.MarginFraction)
	}
	return nil
}
