package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"stellar-tipbot-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	xlmSymbol           = "XLM"
	stellarNetworkId    = "stellar"
	stellarNetworkType  = "mainnet"
	tradingWalletType   = "TRADING"
	defaultPollInterval = 30 * time.Second
)

// transactionsAPI is the part of the Prime transactions service used here
type transactionsAPI interface {
	CreateWalletWithdrawal(ctx context.Context, request *transactions.CreateWalletWithdrawalRequest) (*transactions.CreateWalletWithdrawalResponse, error)
	ListWalletTransactions(ctx context.Context, request *transactions.ListWalletTransactionsRequest) (*transactions.ListWalletTransactionsResponse, error)
}

// Service settles XLM through a Coinbase Prime custodial wallet. Deposits are
// discovered by polling the wallet's transactions.
type Service struct {
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactionsAPI

	portfolioId    string
	walletId       string
	depositAddress string
	pollInterval   time.Duration
}

func NewService(cfg models.PrimeConfig, pollInterval time.Duration) (*Service, error) {
	if cfg.AccessKey == "" || cfg.Passphrase == "" || cfg.SigningKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	creds := &credentials.Credentials{
		AccessKey:  cfg.AccessKey,
		Passphrase: cfg.Passphrase,
		SigningKey: cfg.SigningKey,
	}
	restClient := client.NewRestClient(creds, httpClient)

	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Service{
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
		portfolioId:     cfg.PortfolioId,
		walletId:        cfg.WalletId,
		depositAddress:  cfg.DepositAddress,
		pollInterval:    pollInterval,
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// Resolve fills in the portfolio and XLM wallet when they were not configured
// and checks that a deposit address is known.
func (s *Service) Resolve(ctx context.Context) error {
	if s.portfolioId == "" {
		zap.L().Info("Finding default portfolio")
		portfolio, err := s.FindDefaultPortfolio(ctx)
		if err != nil {
			return err
		}
		s.portfolioId = portfolio.Id
		zap.L().Info("Using default portfolio",
			zap.String("name", portfolio.Name),
			zap.String("id", portfolio.Id))
	}

	if s.walletId == "" {
		walletList, err := s.ListWallets(ctx, s.portfolioId, tradingWalletType, []string{xlmSymbol})
		if err != nil {
			return err
		}
		if len(walletList) == 0 {
			return fmt.Errorf("no %s wallet found in portfolio %s", xlmSymbol, s.portfolioId)
		}
		s.walletId = walletList[0].Id
		zap.L().Info("Using XLM wallet",
			zap.String("wallet_id", s.walletId),
			zap.String("name", walletList[0].Name))
	}

	if s.depositAddress == "" {
		return fmt.Errorf("PRIME_DEPOSIT_ADDRESS is required; create one with the wallet command")
	}
	return nil
}

func (s *Service) PortfolioId() string { return s.portfolioId }

func (s *Service) WalletId() string { return s.walletId }

func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	request := &portfolios.ListPortfoliosRequest{}

	response, err := s.portfoliosSvc.ListPortfolios(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]models.Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = models.Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}

	return portfolioList, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == "Default Portfolio" {
			return &portfolio, nil
		}
	}

	return nil, fmt.Errorf("default portfolio not found")
}

func (s *Service) ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]models.Wallet, error) {
	request := &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     symbols,
	}

	response, err := s.walletsSvc.ListWallets(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}

	walletList := make([]models.Wallet, len(response.Wallets))
	for i, w := range response.Wallets {
		walletList[i] = models.Wallet{
			Id:     w.Id,
			Name:   w.Name,
			Symbol: w.Symbol,
			Type:   w.Type,
		}
	}

	return walletList, nil
}

// CreateDepositAddress provisions a Stellar receive address on the XLM wallet.
func (s *Service) CreateDepositAddress(ctx context.Context) (*models.DepositAddress, error) {
	request := &wallets.CreateWalletAddressRequest{
		PortfolioId: s.portfolioId,
		WalletId:    s.walletId,
		NetworkId:   stellarNetworkId,
	}

	response, err := s.walletsSvc.CreateWalletAddress(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet address: %w", err)
	}

	return &models.DepositAddress{
		Id:      response.AccountIdentifier,
		Address: response.Address,
		Network: stellarNetworkId,
		Asset:   xlmSymbol,
	}, nil
}

// CreateWithdrawal asks Prime to send XLM from the wallet to an external address.
func (s *Service) CreateWithdrawal(ctx context.Context, destination, memo, amount, idempotencyKey string) (*models.Withdrawal, error) {
	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("portfolio_id", s.portfolioId),
		zap.String("wallet_id", s.walletId),
		zap.String("amount", amount),
		zap.String("destination", destination))

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:     s.portfolioId,
		SourceWalletId:  s.walletId,
		Amount:          amount,
		IdempotencyKey:  idempotencyKey,
		Symbol:          xlmSymbol,
		DestinationType: "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: &model.BlockchainAddress{
			Address:           destination,
			AccountIdentifier: memo,
			Network: &model.NetworkDetails{
				Id:   stellarNetworkId,
				Type: stellarNetworkType,
			},
		},
	}

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create withdrawal",
			zap.String("wallet_id", s.walletId),
			zap.String("amount", amount),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("wallet_id", s.walletId),
		zap.String("amount", amount))

	return &models.Withdrawal{
		ActivityId:  response.ActivityId,
		Amount:      amount,
		Destination: destination,
	}, nil
}

// ListWalletTransactions fetches deposits to the XLM wallet created since startTime
func (s *Service) ListWalletTransactions(ctx context.Context, startTime time.Time) ([]models.PrimeTransaction, error) {
	request := &transactions.ListWalletTransactionsRequest{
		PortfolioId: s.portfolioId,
		WalletId:    s.walletId,
		Start:       startTime,
		Types:       []string{"DEPOSIT"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	}

	response, err := s.transactionsSvc.ListWalletTransactions(ctx, request)
	if err != nil {
		zap.L().Error("Failed to list wallet transactions",
			zap.String("wallet_id", s.walletId),
			zap.Error(err))
		return nil, fmt.Errorf("unable to list wallet transactions: %w", err)
	}

	result := make([]models.PrimeTransaction, 0, len(response.Transactions))
	for _, tx := range response.Transactions {
		converted := models.PrimeTransaction{
			Id:            tx.Id,
			Type:          tx.Type,
			Status:        tx.Status,
			Symbol:        tx.Symbol,
			Amount:        tx.Amount,
			CreatedAt:     tx.Created,
			TransactionId: tx.TransactionId,
		}
		if tx.TransferFrom != nil {
			converted.TransferFrom = models.PrimeTransferInfo{
				Type:              tx.TransferFrom.Type,
				Value:             tx.TransferFrom.Value,
				Address:           tx.TransferFrom.Address,
				AccountIdentifier: tx.TransferFrom.AccountIdentifier,
			}
		}
		if tx.TransferTo != nil {
			converted.TransferTo = models.PrimeTransferInfo{
				Type:              tx.TransferTo.Type,
				Value:             tx.TransferTo.Value,
				Address:           tx.TransferTo.Address,
				AccountIdentifier: tx.TransferTo.AccountIdentifier,
			}
		}
		result = append(result, converted)
	}

	zap.L().Debug("Prime API response received",
		zap.String("wallet_id", s.walletId),
		zap.Int("count", len(result)))

	return result, nil
}
