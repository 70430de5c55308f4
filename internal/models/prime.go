package models

import "time"

// Portfolio represents a Prime portfolio
type Portfolio struct {
	Id   string
	Name string
}

// Wallet represents a Prime wallet
type Wallet struct {
	Id     string
	Name   string
	Symbol string
	Type   string
}

// Withdrawal is a Prime withdrawal activity created for a settlement
type Withdrawal struct {
	ActivityId  string
	Amount      string
	Destination string
}

// PrimeTransferInfo is the transfer_from or transfer_to side of a wallet
// transaction. On Stellar deposits AccountIdentifier carries the memo.
type PrimeTransferInfo struct {
	Type              string
	Value             string
	Address           string
	AccountIdentifier string
}

// PrimeTransaction is a wallet transaction polled from Prime
type PrimeTransaction struct {
	Id            string
	Type          string
	Status        string
	Symbol        string
	Amount        string
	CreatedAt     time.Time
	TransactionId string
	TransferFrom  PrimeTransferInfo
	TransferTo    PrimeTransferInfo
}

// DepositAddress represents a receive address provisioned on a Prime wallet
type DepositAddress struct {
	Id      string
	Address string
	Network string
	Asset   string
}
