package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TRANSACTION_PENDING   = "pending"
	TRANSACTION_COMPLETED = "completed"
	TRANSACTION_FAILED    = "failed"
)

// Transaction is one payment attempt keyed by the provider-issued id
// (PaymentIntent id, Razorpay order id, NOWPayments invoice id, Coinbase charge id).
type Transaction struct {
	ID             string         `gorm:"primaryKey;type:varchar(191)" json:"id" firestore:"-"`
	UserID         string         `gorm:"type:varchar(128);not null;index:idx_transactions_user_created,priority:1" json:"userId" firestore:"userId"`
	PlanID         string         `gorm:"type:varchar(100);not null" json:"planId" firestore:"planId"`
	Amount         string         `gorm:"type:varchar(32);not null" json:"amount" firestore:"amount"`
	Currency       string         `gorm:"type:varchar(10);not null" json:"currency" firestore:"currency"`
	Status         string         `gorm:"type:varchar(32);not null;default:'pending';index" json:"status" firestore:"status"`
	Provider       string         `gorm:"type:varchar(20);not null;index" json:"provider" firestore:"provider"`
	Trial          bool           `gorm:"default:false" json:"trial" firestore:"trial"`
	PaymentURL     string         `gorm:"type:varchar(500);default:''" json:"paymentUrl,omitempty" firestore:"paymentUrl"`
	PaymentDetails datatypes.JSON `gorm:"type:json" json:"paymentDetails,omitempty" firestore:"-"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index:idx_transactions_user_created,priority:2" json:"createdAt" firestore:"createdAt"`
	CompletedAt    *time.Time     `gorm:"type:timestamp;default:null" json:"completedAt,omitempty" firestore:"completedAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt" firestore:"updatedAt"`
}

// IsTerminal reports whether the transaction reached completed or failed.
// Any other status, including a provider passthrough like "confirming", is still open.
func (t *Transaction) IsTerminal() bool {
	return IsTerminalTransactionStatus(t.Status)
}

func IsTerminalTransactionStatus(status string) bool {
	return status == TRANSACTION_COMPLETED || status == TRANSACTION_FAILED
}

// CanTransition enforces pending -> {completed, failed} with terminal states absorbing.
// Open states may also move to another open (passthrough) status.
func CanTransition(from, to string) bool {
	if IsTerminalTransactionStatus(from) {
		return false
	}
	return from != to
}
