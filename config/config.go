package config

import (
	"encoding/json"
	"fmt"
	"os"

	"hedgegrid/logger"
)

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error (default: info)
}

// ExchangeConfig names the venue and credentials an Exchange Port adapter
// connects with. APIKey/APISecret are read from the JSON config file as
// plain strings; LoadConfig neither decrypts them nor reads them from the
// environment, and never writes secrets back to disk.
type ExchangeConfig struct {
	Venue     string `json:"venue"` // binance, bybit, hyperliquid
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

// GridConfig is the §6 configuration-surface table, one field per row.
type GridConfig struct {
	Levels             int     `json:"levels"`
	Strength           float64 `json:"strength"`
	OuterPriceDistance float64 `json:"outer_price_distance"`
	ReissueThreshold   float64 `json:"reissue_threshold"`
	MinBufferPct       float64 `json:"min_buffer_pct"`
	MaxBufferPct       float64 `json:"max_buffer_pct"`
	EnforceFullGrid    bool    `json:"enforce_full_grid"`
}

// ExposureConfig controls sizing (spec §4.2).
type ExposureConfig struct {
	WalletExposureLimit     float64 `json:"wallet_exposure_limit"`
	WalletExposureLimitLong float64 `json:"wallet_exposure_limit_long"`
	WalletExposureLimitShort float64 `json:"wallet_exposure_limit_short"`
	LeverageLong            int     `json:"user_defined_leverage_long"`  // 0 = venue max
	LeverageShort           int     `json:"user_defined_leverage_short"` // 0 = venue max
}

// TPConfig controls the TP Controller (spec §4.5).
type TPConfig struct {
	Mode               string  `json:"tp_mode"` // "fixed" | "dynamic"
	UpnlProfitPct      float64 `json:"upnl_profit_pct"`
	MaxUpnlProfitPct   float64 `json:"max_upnl_profit_pct"`
	WallAssist         bool    `json:"wall_assist"`
	WallMaxDeviation   float64 `json:"wall_max_deviation"`
	WallBaseFactor     float64 `json:"wall_base_factor"`
	WallATRProximity   float64 `json:"wall_atr_proximity_pct"`
	WallTopNSize       int     `json:"wall_top_n_size"`
	RefreshIntervalSec int     `json:"tp_refresh_interval_sec"`
}

// SignalConfig controls entry-gating signal preconditions (spec §4.4).
type SignalConfig struct {
	LongMode          string  `json:"long_mode"`
	ShortMode         string  `json:"short_mode"`
	VolumeCheck       bool    `json:"volume_check"`
	MinVolume         float64 `json:"min_vol"`
	MinDistance       float64 `json:"min_dist"`
	EntryDuringAutoReduce bool `json:"entry_during_autoreduce"`
}

// AutoReduceConfig controls the Auto-Reduce Controller (spec §4.6).
type AutoReduceConfig struct {
	Variant                     string  `json:"variant"` // "simple" | "grid_hardened"
	StartPct                    float64 `json:"auto_reduce_start_pct"`
	UpnlThresholdLong           float64 `json:"upnl_auto_reduce_threshold_long"`
	UpnlThresholdShort          float64 `json:"upnl_auto_reduce_threshold_short"`
	MaxPosBalancePct            float64 `json:"max_pos_balance_pct"`
}

// Config is the complete process configuration, loaded from a JSON file
// with sane zero-value defaults when the file is absent.
type Config struct {
	SymbolsAllowed []string `json:"symbols_allowed"`

	Grid        GridConfig       `json:"grid"`
	Exposure    ExposureConfig   `json:"exposure"`
	TP          TPConfig         `json:"tp"`
	Signal      SignalConfig     `json:"signal"`
	AutoReduce  AutoReduceConfig `json:"auto_reduce"`

	MaxAbsFundingRate float64 `json:"max_abs_funding_rate"`

	MinOrderIntervalSec int `json:"min_order_interval_sec"` // can_place_order gate, default 60
	TickIntervalSec     int `json:"tick_interval_sec"`      // scheduler tick sleep, default 5
	HealthCheckSec      int `json:"health_check_sec"`       // default 300
	RetryBudget         int `json:"retry_budget"`           // default 100

	Exchange ExchangeConfig `json:"exchange"`
	APIPort  int            `json:"api_port"`
	DBPath   string         `json:"db_path"`

	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   int64  `json:"telegram_chat_id"`

	Log *LogConfig `json:"log"`
}

// SetDefaults fills zero-valued fields with the defaults spec.md names.
func (c *Config) SetDefaults() {
	if c.MinOrderIntervalSec == 0 {
		c.MinOrderIntervalSec = 60
	}
	if c.TickIntervalSec == 0 {
		c.TickIntervalSec = 5
	}
	if c.HealthCheckSec == 0 {
		c.HealthCheckSec = 300
	}
	if c.RetryBudget == 0 {
		c.RetryBudget = 100
	}
	if c.TP.RefreshIntervalSec == 0 {
		c.TP.RefreshIntervalSec = 3
	}
	if c.DBPath == "" {
		c.DBPath = "hedgegrid.db"
	}
	if c.Log == nil {
		c.Log = &LogConfig{Level: "info"}
	}
}

// LoadConfig reads filename and parses it as JSON. A missing file is not
// an error — it yields a zero-valued Config with defaults applied.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		logger.Infof("%s not found, using default configuration", filename)
		cfg := &Config{}
		cfg.SetDefaults()
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}
