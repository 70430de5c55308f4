package models

import "errors"

// Sentinel errors shared by the ledger, settlement networks and adapters.
var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrSelfReference          = errors.New("source and target are the same")
	ErrDuplicateAction        = errors.New("duplicate action")
	ErrDuplicateSubmission    = errors.New("withdrawal already submitted")
	ErrInvalidAddress         = errors.New("invalid wallet address")
	ErrDestinationMissing     = errors.New("destination account does not exist")
	ErrSubmissionFailed       = errors.New("withdrawal submission failed")
	ErrMalformedRoutingInfo   = errors.New("malformed deposit routing memo")
	ErrUnsupportedAsset       = errors.New("unsupported asset")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrAccountNotFound        = errors.New("account not found")
	ErrAddressInUse           = errors.New("wallet address already registered")
	ErrReservationNotOpen     = errors.New("withdrawal reservation is not open")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrSelfReference, "self_reference"},
	{ErrDuplicateAction, "duplicate_action"},
	{ErrDuplicateSubmission, "duplicate_submission"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrDestinationMissing, "destination_missing"},
	{ErrSubmissionFailed, "submission_failed"},
	{ErrMalformedRoutingInfo, "malformed_routing_info"},
	{ErrUnsupportedAsset, "unsupported_asset"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrDuplicateTransaction, "duplicate_transaction"},
	{ErrConcurrentModification, "concurrent_modification"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrAddressInUse, "address_in_use"},
	{ErrReservationNotOpen, "reservation_not_open"},
}

// ErrorKind maps err to a stable identifier for notifications.
// Unknown errors map to "internal".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
