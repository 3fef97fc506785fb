// Package lottery holds the core draw-cycle entities.
package lottery

import "time"

// Draw lifecycle states.
const (
	DrawStatusPending   = "pending"
	DrawStatusCompleted = "completed"
)

// Prize classifications recorded on a win.
const (
	PrizeTypeJackpot    = "jackpot"
	PrizeTypeCash       = "cash"
	PrizeTypeFreeTicket = "free_ticket"
	PrizeTypeNone       = "none"
)

// Ticket is a single entry in a draw.
type Ticket struct {
	ID        string    `json:"id" db:"id"`
	DrawID    string    `json:"draw_id" db:"draw_id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Numbers   []int     `json:"numbers" db:"-"`
	Price     float64   `json:"price" db:"price"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// WinRecord captures one winning ticket at draw time.
type WinRecord struct {
	TicketID  string  `json:"ticket_id"`
	OwnerID   string  `json:"owner_id"`
	Matches   int     `json:"matches"`
	PrizeType string  `json:"prize_type"`
	Amount    float64 `json:"amount"`
	Note      string  `json:"note,omitempty"`
}

// Draw is one monthly draw cycle. A pending draw accumulates tickets;
// a completed draw is an immutable record of its outcome, including the
// pool amount and no-winner streak as they stood when the draw ran.
type Draw struct {
	DrawID         string      `json:"draw_id" db:"draw_id"`
	Status         string      `json:"status" db:"status"`
	WinningNumbers []int       `json:"winning_numbers,omitempty" db:"-"`
	JackpotAtDraw  float64     `json:"jackpot_at_draw" db:"jackpot_at_draw"`
	NoWinnerStreak int         `json:"no_winner_streak" db:"no_winner_streak"`
	Winners        []WinRecord `json:"winners,omitempty" db:"-"`
	ScheduledFor   time.Time   `json:"scheduled_for" db:"scheduled_for"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// Completed reports whether the draw outcome is final.
func (d *Draw) Completed() bool {
	return d.Status == DrawStatusCompleted
}

// JackpotPool is the single shared prize pool.
type JackpotPool struct {
	Amount         float64   `json:"amount" db:"amount"`
	NoWinnerStreak int       `json:"no_winner_streak" db:"no_winner_streak"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// DrawResult is what Perform returns: the finalized draw plus flags the
// caller may act on.
type DrawResult struct {
	Draw          Draw        `json:"draw"`
	JackpotWon    bool        `json:"jackpot_won"`
	JackpotShares []WinRecord `json:"jackpot_shares,omitempty"`
	ForcedWinner  bool        `json:"forced_winner"`
	RolledOver    bool        `json:"rolled_over"`
}
