// Package ledger holds account balance and transaction entities.
package ledger

import "time"

// Currencies tracked per account.
const (
	CurrencyCash    = "cash"
	CurrencyCredits = "credits"
)

// Balance is one owner's funds.
type Balance struct {
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Cash      float64   `json:"cash" db:"cash"`
	Credits   float64   `json:"credits" db:"credits"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Transaction is one ledger entry. Amount is signed; BalanceAfter is the
// currency balance once the entry applied.
type Transaction struct {
	ID           string    `json:"id" db:"id"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	Kind         string    `json:"kind" db:"kind"`
	Currency     string    `json:"currency" db:"currency"`
	Amount       float64   `json:"amount" db:"amount"`
	BalanceAfter float64   `json:"balance_after" db:"balance_after"`
	Reference    string    `json:"reference,omitempty" db:"reference"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Transaction kinds written by the draw engine.
const (
	KindTicketPurchase = "lottery_ticket"
	KindPrize          = "lottery_prize"
	KindInstallment    = "lottery_installment"
	KindCoinFlip       = "lottery_coinflip"
)
