package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	l := cfg.Lottery
	if l.TicketPrice != 50 || l.MaxTicketsPerUser != 100 {
		t.Errorf("unexpected ticket defaults: %+v", l)
	}
	if l.NumbersToPick != 6 || l.NumberRangeMax != 49 {
		t.Errorf("unexpected pick defaults: %+v", l)
	}
	if l.Timezone != "America/Chicago" || l.DrawWeekday != "friday" || l.DrawHour != 12 {
		t.Errorf("unexpected schedule defaults: %+v", l)
	}
	if l.InitialJackpot != 10000 || l.JackpotContributionPercent != 70 {
		t.Errorf("unexpected jackpot defaults: %+v", l)
	}
	if l.PrizeTiers[6] != "jackpot" || l.PrizeTiers[2] != "free_ticket" || l.PrizeTiers[5] != "5000" {
		t.Errorf("unexpected prize tiers: %+v", l.PrizeTiers)
	}
	if l.InstallmentWeeks != 52 || len(l.InstallmentPaymentDays) != 3 {
		t.Errorf("unexpected installment defaults: %+v", l)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  port: 9090
lottery:
  ticket_price: 25
  prize_tiers:
    6: jackpot
    5: "1000"
admin_token: hunter2
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Lottery.TicketPrice != 25 {
		t.Errorf("expected ticket price 25, got %v", cfg.Lottery.TicketPrice)
	}
	if cfg.Lottery.PrizeTiers[5] != "1000" {
		t.Errorf("file should override tiers, got %+v", cfg.Lottery.PrizeTiers)
	}
	// Untouched values keep their defaults.
	if cfg.Lottery.MaxTicketsPerUser != 100 {
		t.Errorf("expected default quota, got %d", cfg.Lottery.MaxTicketsPerUser)
	}
	if cfg.AdminToken != "hunter2" {
		t.Errorf("expected admin token from file, got %q", cfg.AdminToken)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Lottery.TicketPrice != 50 {
		t.Errorf("expected defaults, got %+v", cfg.Lottery)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://env")
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Database.DSN != "postgres://env" {
		t.Errorf("env DSN not applied: %q", cfg.Database.DSN)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env port not applied: %d", cfg.Server.Port)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"pick larger than range", func(c *Config) { c.Lottery.NumbersToPick = 50 }},
		{"zero price", func(c *Config) { c.Lottery.TicketPrice = 0 }},
		{"contribution over 100", func(c *Config) { c.Lottery.JackpotContributionPercent = 150 }},
		{"no payment days", func(c *Config) { c.Lottery.InstallmentPaymentDays = nil }},
		{"bad timezone", func(c *Config) { c.Lottery.Timezone = "Mars/Olympus" }},
		{"bad weekday", func(c *Config) { c.Lottery.DrawWeekday = "caturday" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday(" Friday ")
	if err != nil || day != time.Friday {
		t.Errorf("ParseWeekday(Friday) = %v, %v", day, err)
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Error("invalid weekday should fail")
	}
}

func TestPaymentWeekdays(t *testing.T) {
	days := Default().Lottery.PaymentWeekdays()
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	if len(days) != len(want) {
		t.Fatalf("expected %v, got %v", want, days)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("expected %v, got %v", want, days)
			break
		}
	}
}
