package network

import (
	"context"

	"stellar-tipbot-go/internal/models"
)

// PaymentHandler receives payments in stream order. Returning an error ends
// the stream with that error so the caller can resume from its own cursor.
type PaymentHandler func(ctx context.Context, payment models.Payment) error

// Network is a settlement network the ledger deposits from and withdraws to.
type Network interface {
	// Address is the public address of the service wallet.
	Address() string

	// ValidateAddress reports whether address can receive a withdrawal.
	ValidateAddress(address string) bool

	// SubmitPayment sends funds out of the service wallet. Failures wrap
	// models.ErrSelfReference, models.ErrDestinationMissing or
	// models.ErrSubmissionFailed.
	SubmitPayment(ctx context.Context, request models.PaymentRequest) (*models.SubmitResult, error)

	// StreamPayments delivers payments touching the service wallet starting
	// after cursor ("" means from now) until ctx is cancelled.
	StreamPayments(ctx context.Context, cursor string, handler PaymentHandler) error
}
