package config

import "time"

// Config is the full service configuration, loaded from YAML.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Live     LiveConfig     `mapstructure:"live"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Binance  BinanceConfig  `mapstructure:"binance"`
}

type AppConfig struct {
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

// UpstreamConfig selects and tunes the candle source. Provider is "rates"
// (the dashboard's own candle endpoint) or "binance".
type UpstreamConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	TokenFile   string        `mapstructure:"token_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type BackfillConfig struct {
	InitialCount      int `mapstructure:"initial_count"`
	BatchCount        int `mapstructure:"batch_count"`
	EdgeThresholdBars int `mapstructure:"edge_threshold_bars"`
}

// LiveConfig lists the series kept warm by the live kline stream.
type LiveConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Instruments   []string `mapstructure:"instruments"`
	Granularities []string `mapstructure:"granularities"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"`
}

type BinanceConfig struct {
	APIKey string `mapstructure:"api_key"`
	Secret string `mapstructure:"secret"`
}
