package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is an inbound or outbound payment observed on the settlement network
type Payment struct {
	Id        string
	From      string
	To        string
	Amount    decimal.Decimal
	AssetType string // "native" for XLM
	AssetCode string
	Memo      string
	Hash      string
	Cursor    string
	CreatedAt time.Time
}

// IsNative reports whether the payment moved the native asset.
func (p Payment) IsNative() bool {
	return p.AssetType == NativeAsset
}

// PaymentRequest asks the settlement network to send funds out of the service wallet
type PaymentRequest struct {
	Destination    string
	Amount         decimal.Decimal
	Memo           string
	IdempotencyKey string
}

// SubmitResult describes an accepted network submission
type SubmitResult struct {
	NetworkId string // network transaction hash or custodian activity id
	Ledger    int32
}
