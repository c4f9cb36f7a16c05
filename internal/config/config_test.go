package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Redis.Enabled = true
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with redis enabled must validate: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Trading.Symbols = []string{"ETHBTC"}
	cfg.Trading.TargetSize = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "malformed symbol", "target_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestArbitrageModeRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "arbitrage"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("arbitrage mode without credentials must fail")
	}
	if !strings.Contains(err.Error(), "binance") || !strings.Contains(err.Error(), "upbit") {
		t.Errorf("error should name both venues:\n%v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBOT_BINANCE_API_KEY", "k123")
	t.Setenv("ARBOT_TRADING_SYMBOLS", "BTC_ETH, BTC_XRP")
	t.Setenv("ARBOT_TRADING_CYCLE_INTERVAL", "5s")
	t.Setenv("ARBOT_TRADING_MIN_SPREAD", "0.01")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Binance.APIKey != "k123" {
		t.Errorf("APIKey = %q", cfg.Binance.APIKey)
	}
	if len(cfg.Trading.Symbols) != 2 || cfg.Trading.Symbols[1] != "BTC_XRP" {
		t.Errorf("Symbols = %v", cfg.Trading.Symbols)
	}
	if cfg.Trading.CycleInterval.Duration != 5*time.Second {
		t.Errorf("CycleInterval = %v", cfg.Trading.CycleInterval.Duration)
	}
	if cfg.Trading.MinSpread != 0.01 {
		t.Errorf("MinSpread = %v", cfg.Trading.MinSpread)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("Duration = %v", d.Duration)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected parse error")
	}
}
