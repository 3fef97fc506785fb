// Package payout holds jackpot disbursement entities.
package payout

import "time"

// Payout delivery choices.
const (
	ChoiceLumpSum      = "lump_sum"
	ChoiceInstallments = "installments"
)

// Installment plan states.
const (
	PlanStatusActive = "active"
	PlanStatusClosed = "closed"
)

// InstallmentPlan pays a jackpot out over a fixed schedule of equal
// payments. The final payment settles any rounding remainder so the total
// paid equals the plan amount exactly.
type InstallmentPlan struct {
	ID                string     `json:"id" db:"id"`
	OwnerID           string     `json:"owner_id" db:"owner_id"`
	DrawID            string     `json:"draw_id" db:"draw_id"`
	Status            string     `json:"status" db:"status"`
	TotalAmount       float64    `json:"total_amount" db:"total_amount"`
	PerPayment        float64    `json:"per_payment" db:"per_payment"`
	PaymentsTotal     int        `json:"payments_total" db:"payments_total"`
	PaymentsRemaining int        `json:"payments_remaining" db:"payments_remaining"`
	AmountPaid        float64    `json:"amount_paid" db:"amount_paid"`
	NextPaymentDate   *time.Time `json:"next_payment_date,omitempty" db:"next_payment_date"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// Active reports whether the plan still owes payments.
func (p *InstallmentPlan) Active() bool {
	return p.Status == PlanStatusActive && p.PaymentsRemaining > 0
}

// PaymentResult records one settled installment.
type PaymentResult struct {
	PlanID    string    `json:"plan_id"`
	OwnerID   string    `json:"owner_id"`
	Amount    float64   `json:"amount"`
	Remaining int       `json:"remaining"`
	Closed    bool      `json:"closed"`
	PaidAt    time.Time `json:"paid_at"`
}

// Details describes an installment schedule before a plan is created.
type Details struct {
	NumPayments int      `json:"num_payments"`
	PerPayment  float64  `json:"per_payment"`
	PaymentDays []string `json:"payment_days"`
}
