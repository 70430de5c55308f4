package stellar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/network"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	stellarnet "github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	// Text memos are limited to 28 bytes on the network
	maxMemoBytes = 28

	opNoDestination = "op_no_destination"
)

// horizonAPI is the part of horizonclient.ClientInterface the service uses
type horizonAPI interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	SubmitTransaction(transaction *txnbuild.Transaction) (hProtocol.Transaction, error)
	TransactionDetail(txHash string) (hProtocol.Transaction, error)
	StreamPayments(ctx context.Context, request horizonclient.OperationRequest, handler horizonclient.OperationHandler) error
}

// Service settles withdrawals and streams deposits on the Stellar network
// through a Horizon server.
type Service struct {
	client     horizonAPI
	keypair    *keypair.Full
	passphrase string
	baseFee    int64
	txTimeout  time.Duration
}

var _ network.Network = (*Service)(nil)

func NewService(cfg models.StellarConfig) (*Service, error) {
	kp, err := keypair.ParseFull(cfg.SecretSeed)
	if err != nil {
		return nil, fmt.Errorf("invalid stellar secret seed: %w", err)
	}

	passphrase, err := networkPassphrase(cfg.Network)
	if err != nil {
		return nil, err
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	client := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       httpClient,
	}

	zap.L().Info("Stellar service initialized",
		zap.String("horizon_url", cfg.HorizonURL),
		zap.String("network", cfg.Network),
		zap.String("address", kp.Address()))

	return newService(client, kp, passphrase, cfg.BaseFee, cfg.TxTimeout), nil
}

func newService(client horizonAPI, kp *keypair.Full, passphrase string, baseFee int64, txTimeout time.Duration) *Service {
	if baseFee < txnbuild.MinBaseFee {
		baseFee = txnbuild.MinBaseFee
	}
	if txTimeout <= 0 {
		txTimeout = 5 * time.Minute
	}
	return &Service{
		client:     client,
		keypair:    kp,
		passphrase: passphrase,
		baseFee:    baseFee,
		txTimeout:  txTimeout,
	}
}

func networkPassphrase(name string) (string, error) {
	switch strings.ToLower(name) {
	case "", "testnet", "test":
		return stellarnet.TestNetworkPassphrase, nil
	case "public", "pubnet", "mainnet":
		return stellarnet.PublicNetworkPassphrase, nil
	default:
		return "", fmt.Errorf("unknown stellar network %q", name)
	}
}

// Horizon streams are long-lived; no client-wide timeout is set.
func createCustomHttpClient() (*http.Client, error) {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
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
		return nil, err
	}

	return &http.Client{Transport: tr}, nil
}

func (s *Service) Address() string {
	return s.keypair.Address()
}

func (s *Service) ValidateAddress(address string) bool {
	return strkey.IsValidEd25519PublicKey(address)
}

// SubmitPayment sends a native payment from the service wallet. The
// destination must already exist on the network.
func (s *Service) SubmitPayment(ctx context.Context, request models.PaymentRequest) (*models.SubmitResult, error) {
	if request.Destination == s.Address() {
		return nil, models.ErrSelfReference
	}
	if !s.ValidateAddress(request.Destination) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAddress, request.Destination)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSubmissionFailed, err)
	}

	if _, err := s.client.AccountDetail(horizonclient.AccountRequest{AccountID: request.Destination}); err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrDestinationMissing, request.Destination)
		}
		return nil, fmt.Errorf("%w: unable to load destination: %w", models.ErrSubmissionFailed, err)
	}

	source, err := s.client.AccountDetail(horizonclient.AccountRequest{AccountID: s.Address()})
	if err != nil {
		return nil, fmt.Errorf("%w: unable to load service account: %w", models.ErrSubmissionFailed, err)
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &source,
		IncrementSequenceNum: true,
		BaseFee:              s.baseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(s.txTimeout.Seconds())),
		},
		Memo: txnbuild.MemoText(truncateMemo(request.Memo)),
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: request.Destination,
				Amount:      models.FormatAmount(request.Amount),
				Asset:       txnbuild.NativeAsset{},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: unable to build transaction: %w", models.ErrSubmissionFailed, err)
	}

	tx, err = tx.Sign(s.passphrase, s.keypair)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to sign transaction: %w", models.ErrSubmissionFailed, err)
	}

	zap.L().Info("Submitting payment",
		zap.String("destination", request.Destination),
		zap.String("amount", models.FormatAmount(request.Amount)),
		zap.String("idempotency_key", request.IdempotencyKey))

	resp, err := s.client.SubmitTransaction(tx)
	if err != nil {
		return nil, classifySubmitError(err)
	}

	zap.L().Info("Payment submitted",
		zap.String("network_hash", resp.Hash),
		zap.Int32("ledger", resp.Ledger),
		zap.String("idempotency_key", request.IdempotencyKey))

	return &models.SubmitResult{NetworkId: resp.Hash, Ledger: resp.Ledger}, nil
}

func classifySubmitError(err error) error {
	hErr := horizonclient.GetError(err)
	if hErr == nil {
		return fmt.Errorf("%w: %w", models.ErrSubmissionFailed, err)
	}

	codes, codesErr := hErr.ResultCodes()
	if codesErr != nil || codes == nil {
		return fmt.Errorf("%w: %s", models.ErrSubmissionFailed, hErr.Problem.Title)
	}

	for _, op := range codes.OperationCodes {
		if op == opNoDestination {
			return fmt.Errorf("%w: %s", models.ErrDestinationMissing, op)
		}
	}

	zap.L().Warn("Horizon rejected transaction",
		zap.String("transaction_code", codes.TransactionCode),
		zap.Strings("operation_codes", codes.OperationCodes))
	return fmt.Errorf("%w: %s %s", models.ErrSubmissionFailed, codes.TransactionCode, strings.Join(codes.OperationCodes, ","))
}

func truncateMemo(memo string) string {
	if len(memo) <= maxMemoBytes {
		return memo
	}
	cut := memo[:maxMemoBytes]
	// Do not split a multi-byte character
	for len(cut) > 0 && !isRuneStart(memo[len(cut)]) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// StreamPayments follows payments of the service account from cursor. A
// handler error cancels the stream and is returned.
func (s *Service) StreamPayments(ctx context.Context, cursor string, handler network.PaymentHandler) error {
	if cursor == "" {
		cursor = "now"
	} else if _, err := strconv.ParseUint(cursor, 10, 64); err != nil {
		// Cursors written by another backend are not paging tokens
		zap.L().Warn("Ignoring non-paging-token cursor, streaming from now",
			zap.String("cursor", cursor))
		cursor = "now"
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var handlerErr error
	request := horizonclient.OperationRequest{
		ForAccount: s.Address(),
		Cursor:     cursor,
		Join:       "transactions",
	}

	err := s.client.StreamPayments(streamCtx, request, func(op operations.Operation) {
		if handlerErr != nil {
			return
		}

		payment, ok := op.(operations.Payment)
		if !ok {
			zap.L().Debug("Skipping non-payment operation",
				zap.String("type", op.GetType()),
				zap.String("paging_token", op.PagingToken()))
			return
		}

		converted, err := s.toPayment(payment)
		if err == nil {
			err = handler(streamCtx, converted)
		}
		if err != nil {
			handlerErr = err
			cancel()
		}
	})

	if handlerErr != nil {
		return handlerErr
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("payment stream failed: %w", err)
	}
	return ctx.Err()
}

func (s *Service) toPayment(p operations.Payment) (models.Payment, error) {
	amount, err := models.ParseAmount(p.Amount)
	if err != nil {
		return models.Payment{}, err
	}

	memo, err := s.memoFor(p)
	if err != nil {
		return models.Payment{}, err
	}

	return models.Payment{
		Id:        p.ID,
		From:      p.From,
		To:        p.To,
		Amount:    amount,
		AssetType: p.Asset.Type,
		AssetCode: p.Asset.Code,
		Memo:      memo,
		Hash:      p.TransactionHash,
		Cursor:    p.PagingToken(),
		CreatedAt: p.LedgerCloseTime,
	}, nil
}

// memoFor reads the memo from the joined transaction, loading it when the
// server did not embed it.
func (s *Service) memoFor(p operations.Payment) (string, error) {
	if p.Transaction != nil {
		return p.Transaction.Memo, nil
	}
	tx, err := s.client.TransactionDetail(p.TransactionHash)
	if err != nil {
		return "", fmt.Errorf("unable to load transaction %s: %w", p.TransactionHash, err)
	}
	return tx.Memo, nil
}
