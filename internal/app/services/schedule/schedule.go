// Package schedule computes draw and payout dates. Everything here is a
// pure function of the clock and a config snapshot, so a draw's timing can
// never shift mid-cycle because configuration was reloaded.
package schedule

import (
	"fmt"
	"time"

	"github.com/nightmarket/lottery-engine/internal/config"
)

// NextDrawDate returns the next draw instant strictly after now: the first
// configured weekday of the month at the configured hour and minute in the
// configured timezone. If this month's slot has passed, it rolls into the
// next month (and across December into January).
func NextDrawDate(now time.Time, cfg config.LotteryConfig) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	weekday, err := config.ParseWeekday(cfg.DrawWeekday)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	candidate := firstWeekdayOfMonth(local.Year(), local.Month(), weekday, cfg.DrawHour, cfg.DrawMinute, loc)
	if !candidate.After(local) {
		next := local.AddDate(0, 1, -local.Day()+1) // first day of next month
		candidate = firstWeekdayOfMonth(next.Year(), next.Month(), weekday, cfg.DrawHour, cfg.DrawMinute, loc)
	}
	return candidate, nil
}

// CurrentDrawID returns the "YYYY-MM" identifier of the draw the next
// ticket purchase enters, i.e. the month of the next draw date.
func CurrentDrawID(now time.Time, cfg config.LotteryConfig) (string, error) {
	next, err := NextDrawDate(now, cfg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d-%02d", next.Year(), int(next.Month())), nil
}

// NextPaymentDate returns the nearest configured payment weekday strictly
// after now, at the configured hour, in the configured timezone.
func NextPaymentDate(now time.Time, cfg config.LotteryConfig) (time.Time, error) {
	loc, err := cfg.Location()
	if err != nil {
		return time.Time{}, err
	}
	days := cfg.PaymentWeekdays()
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("schedule: no payment days configured")
	}

	local := now.In(loc)
	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), cfg.InstallmentHour, 0, 0, 0, loc)
		if !candidate.After(local) {
			continue
		}
		for _, wd := range days {
			if candidate.Weekday() == wd {
				return candidate, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("schedule: no payment day within a week of %s", local.Format(time.RFC3339))
}

func firstWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, hour, minute int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, hour, minute, 0, 0, loc)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset)
}
