// Package tiebreak holds the two-winner coin-flip entities.
package tiebreak

import "time"

// Request lifecycle states.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
	StatusExpired   = "expired"
)

// Per-party answers.
const (
	AgreementUndecided = "undecided"
	AgreementAgreed    = "agreed"
	AgreementDeclined  = "declined"
)

// CoinFlipRequest offers two jackpot co-winners a winner-take-all flip.
// Both must agree before it runs; either declining splits the pot instead.
type CoinFlipRequest struct {
	ID         string     `json:"id" db:"id"`
	DrawID     string     `json:"draw_id" db:"draw_id"`
	PartyA     string     `json:"party_a" db:"party_a"`
	PartyB     string     `json:"party_b" db:"party_b"`
	Amount     float64    `json:"amount" db:"amount"`
	Status     string     `json:"status" db:"status"`
	AgreementA string     `json:"agreement_a" db:"agreement_a"`
	AgreementB string     `json:"agreement_b" db:"agreement_b"`
	WinnerID   string     `json:"winner_id,omitempty" db:"winner_id"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Resolved reports whether the request has reached a terminal state.
func (r *CoinFlipRequest) Resolved() bool {
	return r.Status != StatusPending
}

// Party reports whether ownerID is one of the two winners, and which side.
func (r *CoinFlipRequest) Party(ownerID string) (isParty bool, isA bool) {
	switch ownerID {
	case r.PartyA:
		return true, true
	case r.PartyB:
		return true, false
	default:
		return false, false
	}
}
