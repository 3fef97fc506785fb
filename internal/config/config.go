// Package config loads the engine configuration. The loaded Config is an
// immutable snapshot: services receive it by value at construction and a
// given draw's behavior never changes because a file was edited mid-cycle.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	RateLimit int    `yaml:"rate_limit"` // requests per second per caller, 0 disables
	RateBurst int    `yaml:"rate_burst"`
	AuditFile string `yaml:"audit_file"` // JSONL admin audit trail, empty disables
}

// DatabaseConfig controls the postgres store. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ProgressiveConfig tunes the forced-winner policy.
type ProgressiveConfig struct {
	Enabled                bool    `yaml:"enabled"`
	ForceWinnerAfterMonths int     `yaml:"force_winner_after_months"`
	Month1NoWinnerBoost    float64 `yaml:"month_1_no_winner_boost"`
}

// LotteryConfig is the full configuration surface of the draw engine.
type LotteryConfig struct {
	Enabled                    bool              `yaml:"enabled"`
	TicketPrice                float64           `yaml:"ticket_price"`
	MaxTicketsPerUser          int               `yaml:"max_tickets_per_user"`
	NumbersToPick              int               `yaml:"numbers_to_pick"`
	NumberRangeMax             int               `yaml:"number_range_max"`
	DrawWeekday                string            `yaml:"draw_weekday"`
	DrawHour                   int               `yaml:"draw_hour"`
	DrawMinute                 int               `yaml:"draw_minute"`
	Timezone                   string            `yaml:"timezone"`
	InitialJackpot             float64           `yaml:"initial_jackpot"`
	JackpotContributionPercent float64           `yaml:"jackpot_contribution_percent"`
	LumpSumPercent             float64           `yaml:"lump_sum_percent"`
	InstallmentWeeks           int               `yaml:"installment_weeks"`
	InstallmentPaymentDays     []string          `yaml:"installment_payment_days"`
	InstallmentHour            int               `yaml:"installment_hour"`
	PrizeTiers                 map[int]string    `yaml:"prize_tiers"`
	Progressive                ProgressiveConfig `yaml:"progressive_odds"`
	CoinFlipWindowHours        int               `yaml:"coinflip_window_hours"`
}

// Config is the root configuration document.
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Database   DatabaseConfig `yaml:"database"`
	Logging    LoggingConfig  `yaml:"logging"`
	Lottery    LotteryConfig  `yaml:"lottery"`
	AdminToken string         `yaml:"admin_token"`
}

// Default returns the configuration with all documented defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, RateLimit: 20, RateBurst: 40},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Lottery: LotteryConfig{
			Enabled:                    true,
			TicketPrice:                50,
			MaxTicketsPerUser:          100,
			NumbersToPick:              6,
			NumberRangeMax:             49,
			DrawWeekday:                "friday",
			DrawHour:                   12,
			DrawMinute:                 0,
			Timezone:                   "America/Chicago",
			InitialJackpot:             10000,
			JackpotContributionPercent: 70,
			LumpSumPercent:             50,
			InstallmentWeeks:           52,
			InstallmentPaymentDays:     []string{"monday", "wednesday", "friday"},
			InstallmentHour:            12,
			PrizeTiers: map[int]string{
				6: "jackpot",
				5: "5000",
				4: "500",
				3: "25",
				2: "free_ticket",
			},
			Progressive: ProgressiveConfig{
				Enabled:                true,
				ForceWinnerAfterMonths: 2,
				Month1NoWinnerBoost:    0.5,
			},
			CoinFlipWindowHours: 24,
		},
	}
}

// Load reads the config file named by LOTTERY_CONFIG (default config.yaml),
// applies defaults for anything unset and then environment overrides. A
// missing file is not an error; the defaults stand.
func Load() (Config, error) {
	path := os.Getenv("LOTTERY_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.AdminToken = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	l := c.Lottery
	if l.NumbersToPick <= 0 || l.NumberRangeMax < l.NumbersToPick {
		return fmt.Errorf("lottery: cannot pick %d numbers from range 1-%d", l.NumbersToPick, l.NumberRangeMax)
	}
	if l.TicketPrice <= 0 {
		return fmt.Errorf("lottery: ticket_price must be positive")
	}
	if l.JackpotContributionPercent < 0 || l.JackpotContributionPercent > 100 {
		return fmt.Errorf("lottery: jackpot_contribution_percent must be within [0, 100]")
	}
	if l.LumpSumPercent <= 0 || l.LumpSumPercent > 100 {
		return fmt.Errorf("lottery: lump_sum_percent must be within (0, 100]")
	}
	if l.InstallmentWeeks <= 0 || len(l.InstallmentPaymentDays) == 0 {
		return fmt.Errorf("lottery: installment schedule requires weeks and payment days")
	}
	if _, err := c.Lottery.Location(); err != nil {
		return err
	}
	if _, err := ParseWeekday(l.DrawWeekday); err != nil {
		return err
	}
	for _, day := range l.InstallmentPaymentDays {
		if _, err := ParseWeekday(day); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (l LotteryConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return nil, fmt.Errorf("lottery: invalid timezone %q: %w", l.Timezone, err)
	}
	return loc, nil
}

// PaymentWeekdays resolves the installment payment days. Validate has
// already established they parse.
func (l LotteryConfig) PaymentWeekdays() []time.Weekday {
	days := make([]time.Weekday, 0, len(l.InstallmentPaymentDays))
	for _, name := range l.InstallmentPaymentDays {
		if day, err := ParseWeekday(name); err == nil {
			days = append(days, day)
		}
	}
	return days
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday converts a lowercase weekday name to a time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", name)
	}
	return day, nil
}
