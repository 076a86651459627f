// Package config holds run configuration: strategy knobs, risk limits, and
// sink settings. Values come from a YAML file, then environment overrides,
// then defaults.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"structure-backtest/services/engine"
)

// Config holds all application configuration.
type Config struct {
	Strategy   StrategyConfig   `yaml:"strategy"`
	Risk       RiskConfig       `yaml:"risk"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Arrow      ArrowConfig      `yaml:"arrow"`
	Server     ServerConfig     `yaml:"server"`
}

// StrategyConfig drives structure detection, signal gating, and trade sizing.
type StrategyConfig struct {
	HigherTimeframe        string   `yaml:"higher_timeframe"`
	ATRPeriod              int      `yaml:"atr_period"`
	DisplacementATRMult    float64  `yaml:"displacement_atr_mult"`
	MinBreakCloseBufferATR float64  `yaml:"min_break_close_buffer_atr"`
	ReclaimBufferATR       float64  `yaml:"reclaim_buffer_atr"`
	StopBufferATR          float64  `yaml:"stop_buffer_atr"`
	RRTarget               float64  `yaml:"rr_target"`
	SessionTimezone        string   `yaml:"session_timezone"`
	RTHOnly                bool     `yaml:"rth_only"`
	AllowedSymbols         []string `yaml:"allowed_symbols"`
	AllowedHours           []int    `yaml:"allowed_entry_hours"`
	EnableModelA           *bool    `yaml:"enable_model_a"`
	EnableModelB           *bool    `yaml:"enable_model_b"`
	EnableModelC           *bool    `yaml:"enable_model_c"`
	LongOnly               bool     `yaml:"long_only"`
	UseATRRegimeFilter     bool     `yaml:"use_atr_regime_filter"`
	ATRPctMin              float64  `yaml:"atr_pct_min"`
	ATRPctMax              float64  `yaml:"atr_pct_max"`
}

// RiskConfig holds the daily guardrail limits.
type RiskConfig struct {
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	MaxDailyLossAbs      float64 `yaml:"max_daily_loss_abs"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	EnforceInSim         bool    `yaml:"enforce_in_sim"`
}

// ClickHouseConfig configures the optional results sink.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ArrowConfig configures the optional Arrow IPC export.
type ArrowConfig struct {
	Enabled bool   `yaml:"enabled"`
	OutFile string `yaml:"out_file"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		cfg.ClickHouse.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_DB"); v != "" {
		cfg.ClickHouse.Database = v
	}
	if v := os.Getenv("CLICKHOUSE_USER"); v != "" {
		cfg.ClickHouse.Username = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		cfg.ClickHouse.Password = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SESSION_TIMEZONE"); v != "" {
		cfg.Strategy.SessionTimezone = v
	}
	if v := os.Getenv("RR_TARGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Strategy.RRTarget = f
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Strategy
	if s.HigherTimeframe == "" {
		s.HigherTimeframe = "15m"
	}
	if s.ATRPeriod == 0 {
		s.ATRPeriod = 14
	}
	if s.DisplacementATRMult == 0 {
		s.DisplacementATRMult = 0.7
	}
	if s.MinBreakCloseBufferATR == 0 {
		s.MinBreakCloseBufferATR = 0.05
	}
	if s.StopBufferATR == 0 {
		s.StopBufferATR = 0.1
	}
	if s.RRTarget == 0 {
		s.RRTarget = 2.0
	}
	if s.SessionTimezone == "" {
		s.SessionTimezone = "America/New_York"
	}
	if s.ATRPctMax == 0 {
		s.ATRPctMax = 100
	}

	r := &c.Risk
	if r.MaxTradesPerDay == 0 {
		r.MaxTradesPerDay = 3
	}
	if r.MaxDailyLossAbs == 0 {
		r.MaxDailyLossAbs = 1.0
	}
	if r.MaxConsecutiveLosses == 0 {
		r.MaxConsecutiveLosses = 3
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8090"
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "backtest"
	}
	if c.Arrow.OutFile == "" {
		c.Arrow.OutFile = "out/structure.arrow"
	}
}

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	if _, err := c.HigherTimeframe(); err != nil {
		return err
	}
	if c.Strategy.ATRPeriod < 1 {
		return fmt.Errorf("strategy.atr_period must be positive")
	}
	if c.Strategy.DisplacementATRMult < 0 {
		return fmt.Errorf("strategy.displacement_atr_mult must not be negative")
	}
	if c.Strategy.StopBufferATR < 0 {
		return fmt.Errorf("strategy.stop_buffer_atr must not be negative")
	}
	if c.Strategy.RRTarget <= 0 {
		return fmt.Errorf("strategy.rr_target must be positive")
	}
	if c.Strategy.ATRPctMin < 0 || c.Strategy.ATRPctMax > 100 || c.Strategy.ATRPctMin > c.Strategy.ATRPctMax {
		return fmt.Errorf("strategy atr percentile band must satisfy 0 <= min <= max <= 100")
	}
	if _, err := c.SessionLocation(); err != nil {
		return err
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Addr == "" {
		return fmt.Errorf("clickhouse.addr is required when the sink is enabled")
	}
	return nil
}

// HigherTimeframe parses the configured higher timeframe as a duration.
func (c *Config) HigherTimeframe() (time.Duration, error) {
	d, err := time.ParseDuration(c.Strategy.HigherTimeframe)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("strategy.higher_timeframe %q is not a valid positive duration", c.Strategy.HigherTimeframe)
	}
	return d, nil
}

// SessionLocation resolves the configured session timezone.
func (c *Config) SessionLocation() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Strategy.SessionTimezone)
	if err != nil {
		return nil, fmt.Errorf("strategy.session_timezone: %w", err)
	}
	return loc, nil
}

// Hash returns a short digest of the marshaled config, recorded in run
// manifests so results can be tied back to the exact settings.
func (c *Config) Hash() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "unknown"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// StructureParams converts the strategy settings for structure detection.
func (c *Config) StructureParams() engine.StructureParams {
	return engine.StructureParams{
		DisplacementATRMult:    c.Strategy.DisplacementATRMult,
		MinBreakCloseBufferATR: c.Strategy.MinBreakCloseBufferATR,
	}
}

// SignalConfig converts the strategy settings for signal evaluation.
func (c *Config) SignalConfig() engine.SignalConfig {
	sc := engine.SignalConfig{
		EnableModelA:       enabled(c.Strategy.EnableModelA),
		EnableModelB:       enabled(c.Strategy.EnableModelB),
		EnableModelC:       enabled(c.Strategy.EnableModelC),
		LongOnly:           c.Strategy.LongOnly,
		UseATRRegimeFilter: c.Strategy.UseATRRegimeFilter,
		ATRPctMin:          c.Strategy.ATRPctMin,
		ATRPctMax:          c.Strategy.ATRPctMax,
		ReclaimBufferATR:   c.Strategy.ReclaimBufferATR,
	}
	if len(c.Strategy.AllowedSymbols) > 0 {
		sc.AllowedSymbols = make(map[string]bool, len(c.Strategy.AllowedSymbols))
		for _, sym := range c.Strategy.AllowedSymbols {
			sc.AllowedSymbols[strings.ToUpper(strings.TrimSpace(sym))] = true
		}
	}
	if len(c.Strategy.AllowedHours) > 0 {
		sc.AllowedHours = make(map[int]bool, len(c.Strategy.AllowedHours))
		for _, h := range c.Strategy.AllowedHours {
			sc.AllowedHours[h] = true
		}
	}
	return sc
}

// SimConfig converts the full settings for the trade simulator.
func (c *Config) SimConfig() engine.SimConfig {
	sim := engine.SimConfig{
		Signal:        c.SignalConfig(),
		StopBufferATR: c.Strategy.StopBufferATR,
		RRTarget:      c.Strategy.RRTarget,
	}
	if c.Risk.EnforceInSim {
		g := c.GuardrailConfig()
		sim.Guardrails = &g
	}
	return sim
}

// GuardrailConfig converts the risk settings for the guardrail state machine.
func (c *Config) GuardrailConfig() engine.GuardrailConfig {
	return engine.GuardrailConfig{
		MaxTradesPerDay:      c.Risk.MaxTradesPerDay,
		MaxDailyLossAbs:      c.Risk.MaxDailyLossAbs,
		MaxConsecutiveLosses: c.Risk.MaxConsecutiveLosses,
	}
}

func enabled(v *bool) bool {
	return v == nil || *v
}
