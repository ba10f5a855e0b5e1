// Package payment drives the external payment step of a reservation:
// creating a provider order for a pending reservation, capturing it once
// the payer has approved it, and abandoning it when the payer backs out.
// Provider adapters live next to the Orchestrator that calls them.
package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vala/car-rental-reservation/internal/model"
)

// OrderRequest is what the orchestrator asks a provider to charge.
type OrderRequest struct {
	ReservationID uint64
	Amount        decimal.Decimal
	Currency      string
	Description   string
	ReturnURL     string
	CancelURL     string
}

// Order is a provider order awaiting capture.  ApprovalURL is empty for
// providers that need no payer redirect.
type Order struct {
	TransactionID string
	ApprovalURL   string
	Status        string
}

// Capture is a settled provider order.
type Capture struct {
	TransactionID string
	CaptureID     string
	Status        string
}

// Provider is an external payment service.  Implementations make exactly
// one remote call per method and never retry on their own.
type Provider interface {
	Method() model.PaymentMethod
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CaptureOrder(ctx context.Context, transactionID string) (*Capture, error)
}
