package schedule

import (
	"testing"
	"time"

	"github.com/nightmarket/lottery-engine/internal/config"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestNextDrawDate(t *testing.T) {
	cfg := config.Default().Lottery
	loc := chicago(t)

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before first friday",
			now:  time.Date(2025, 6, 1, 9, 0, 0, 0, loc),
			want: time.Date(2025, 6, 6, 12, 0, 0, 0, loc),
		},
		{
			name: "morning of draw day",
			now:  time.Date(2025, 6, 6, 11, 59, 0, 0, loc),
			want: time.Date(2025, 6, 6, 12, 0, 0, 0, loc),
		},
		{
			name: "exactly at draw time rolls to next month",
			now:  time.Date(2025, 6, 6, 12, 0, 0, 0, loc),
			want: time.Date(2025, 7, 4, 12, 0, 0, 0, loc),
		},
		{
			name: "after this month's draw",
			now:  time.Date(2025, 6, 20, 0, 0, 0, 0, loc),
			want: time.Date(2025, 7, 4, 12, 0, 0, 0, loc),
		},
		{
			name: "december rolls into january",
			now:  time.Date(2025, 12, 6, 0, 0, 0, 0, loc),
			want: time.Date(2026, 1, 2, 12, 0, 0, 0, loc),
		},
		{
			name: "month starting on the draw weekday",
			now:  time.Date(2025, 8, 1, 0, 0, 0, 0, loc), // Aug 1 2025 is a Friday
			want: time.Date(2025, 8, 1, 12, 0, 0, 0, loc),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextDrawDate(tc.now, cfg)
			if err != nil {
				t.Fatalf("NextDrawDate: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("NextDrawDate(%s) = %s, want %s", tc.now, got, tc.want)
			}
			if got.Weekday() != time.Friday {
				t.Errorf("draw date %s is not a Friday", got)
			}
		})
	}
}

func TestNextDrawDateDeterministic(t *testing.T) {
	cfg := config.Default().Lottery
	now := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

	first, err := NextDrawDate(now, cfg)
	if err != nil {
		t.Fatalf("NextDrawDate: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := NextDrawDate(now, cfg)
		if err != nil {
			t.Fatalf("NextDrawDate: %v", err)
		}
		if !again.Equal(first) {
			t.Fatalf("same input produced different dates: %s vs %s", first, again)
		}
	}
}

func TestCurrentDrawID(t *testing.T) {
	cfg := config.Default().Lottery
	loc := chicago(t)

	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2025, 6, 1, 9, 0, 0, 0, loc), "2025-06"},
		// After June's draw every purchase belongs to July.
		{time.Date(2025, 6, 7, 9, 0, 0, 0, loc), "2025-07"},
		{time.Date(2025, 12, 6, 0, 0, 0, 0, loc), "2026-01"},
	}
	for _, tc := range cases {
		got, err := CurrentDrawID(tc.now, cfg)
		if err != nil {
			t.Fatalf("CurrentDrawID: %v", err)
		}
		if got != tc.want {
			t.Errorf("CurrentDrawID(%s) = %s, want %s", tc.now, got, tc.want)
		}
	}
}

func TestNextPaymentDate(t *testing.T) {
	cfg := config.Default().Lottery
	loc := chicago(t)

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "sunday rolls to monday",
			now:  time.Date(2025, 6, 8, 9, 0, 0, 0, loc),
			want: time.Date(2025, 6, 9, 12, 0, 0, 0, loc),
		},
		{
			name: "monday morning pays same day",
			now:  time.Date(2025, 6, 9, 11, 0, 0, 0, loc),
			want: time.Date(2025, 6, 9, 12, 0, 0, 0, loc),
		},
		{
			name: "monday at noon rolls to wednesday",
			now:  time.Date(2025, 6, 9, 12, 0, 0, 0, loc),
			want: time.Date(2025, 6, 11, 12, 0, 0, 0, loc),
		},
		{
			name: "friday afternoon rolls over the weekend",
			now:  time.Date(2025, 6, 13, 15, 0, 0, 0, loc),
			want: time.Date(2025, 6, 16, 12, 0, 0, 0, loc),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextPaymentDate(tc.now, cfg)
			if err != nil {
				t.Fatalf("NextPaymentDate: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("NextPaymentDate(%s) = %s, want %s", tc.now, got, tc.want)
			}
			if !got.After(tc.now) {
				t.Errorf("payment date %s not strictly after now %s", got, tc.now)
			}
		})
	}
}
