package core

import (
	"fmt"
	"strings"
	"time"
)

type UsageMode string

const (
	UsageModeBackend  UsageMode = "backend"
	UsageModeFrontend UsageMode = "frontend"
)

type VerificationConfig struct {
	FailureThreshold int           `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	RequestTimeout   time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	SweepInterval    time.Duration `koanf:"sweep_interval" mapstructure:"sweep_interval"`
}

type LendingConfig struct {
	// LiquidationThresholdMilli is the health-ratio floor scaled by 1000;
	// loans below it are liquidatable. 1000 == collateral exactly covers debt.
	LiquidationThresholdMilli int64 `koanf:"liquidation_threshold_milli" mapstructure:"liquidation_threshold_milli"`
	// MaxLTVBps caps originated principal as basis points of collateral value.
	MaxLTVBps    int64 `koanf:"max_ltv_bps" mapstructure:"max_ltv_bps"`
	TargetLTVBps int64 `koanf:"target_ltv_bps" mapstructure:"target_ltv_bps"`
}

type LedgerConfig struct {
	SubmitConcurrency int           `koanf:"submit_concurrency" mapstructure:"submit_concurrency"`
	CallTimeout       time.Duration `koanf:"call_timeout" mapstructure:"call_timeout"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	UsageMode    UsageMode          `koanf:"usage_mode" mapstructure:"usage_mode"`
	Verification VerificationConfig `koanf:"verification" mapstructure:"verification"`
	Lending      LendingConfig      `koanf:"lending" mapstructure:"lending"`
	Ledger       LedgerConfig       `koanf:"ledger" mapstructure:"ledger"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "rwa-engine",
		UsageMode:   UsageModeBackend,
		Verification: VerificationConfig{
			FailureThreshold: 3,
			RequestTimeout:   time.Hour,
			SweepInterval:    5 * time.Minute,
		},
		Lending: LendingConfig{
			LiquidationThresholdMilli: 1200,
			MaxLTVBps:                 7000,
			TargetLTVBps:              5000,
		},
		Ledger: LedgerConfig{
			SubmitConcurrency: 8,
			CallTimeout:       30 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	switch c.UsageMode {
	case UsageModeBackend, UsageModeFrontend:
	default:
		return fmt.Errorf("core: usage_mode must be backend or frontend, got %q", c.UsageMode)
	}
	if c.Verification.FailureThreshold < 1 {
		return fmt.Errorf("core: verification.failure_threshold must be at least 1")
	}
	if c.Verification.RequestTimeout <= 0 {
		return fmt.Errorf("core: verification.request_timeout must be positive")
	}
	if c.Verification.SweepInterval <= 0 {
		return fmt.Errorf("core: verification.sweep_interval must be positive")
	}
	if c.Lending.LiquidationThresholdMilli <= 0 {
		return fmt.Errorf("core: lending.liquidation_threshold_milli must be positive")
	}
	if c.Lending.MaxLTVBps <= 0 || c.Lending.MaxLTVBps > 10000 {
		return fmt.Errorf("core: lending.max_ltv_bps must be in (0, 10000]")
	}
	if c.Lending.TargetLTVBps <= 0 || c.Lending.TargetLTVBps > c.Lending.MaxLTVBps {
		return fmt.Errorf("core: lending.target_ltv_bps must be in (0, max_ltv_bps]")
	}
	if c.Ledger.SubmitConcurrency < 1 {
		return fmt.Errorf("core: ledger.submit_concurrency must be at least 1")
	}
	return nil
}
