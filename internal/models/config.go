package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Listener   ListenerConfig
	Settlement SettlementConfig
	Stellar    StellarConfig
	Prime      PrimeConfig
	Formance   FormanceConfig
	Events     EventsConfig
	HTTP       HTTPConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// ListenerConfig holds deposit ingestor settings
type ListenerConfig struct {
	PollingInterval time.Duration
	SweepInterval   time.Duration
	CleanupInterval time.Duration
	ReconnectDelay  time.Duration
	// Reservations open longer than this are reported as stale
	ReservationAlertAge time.Duration
	AdaptersFile        string
}

// SettlementConfig selects the settlement network backend
type SettlementConfig struct {
	Backend        string // "stellar" or "prime"
	WithdrawalMemo string
}

// StellarConfig holds Horizon connection and signing settings
type StellarConfig struct {
	HorizonURL string
	Network    string // "testnet" or "public"
	SecretSeed string
	BaseFee    int64
	TxTimeout  time.Duration
}

// PrimeConfig holds Coinbase Prime custody settings
type PrimeConfig struct {
	AccessKey      string
	Passphrase     string
	SigningKey     string
	PortfolioId    string
	WalletId       string
	DepositAddress string
}

// FormanceConfig holds settings of the optional Formance ledger mirror
type FormanceConfig struct {
	Enabled      bool
	ServerURL    string
	ClientID     string
	ClientSecret string
	Ledger       string
}

// EventsConfig holds notification delivery settings
type EventsConfig struct {
	BufferSize int
}

// HTTPConfig holds settings of the adapter-facing HTTP API
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}
