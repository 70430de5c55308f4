package formance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stellar-tipbot-go/internal/events"
	"stellar-tipbot-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

const (
	defaultLedgerName = "stellar-tipbot"

	// XLM in Formance UMN notation, amounts in stroops
	xlmAsset     = "XLM/7"
	xlmPrecision = 7

	postTimeout = 15 * time.Second
)

var _ events.Notifier = (*Mirror)(nil)

// Mirror copies committed ledger movements to a Formance ledger. The local
// SQLite store stays authoritative; a failed post is logged and dropped.
type Mirror struct {
	client *v3.Formance
	ledger string
}

// NewMirror connects to the stack and creates the ledger if it doesn't
// already exist.
func NewMirror(ctx context.Context, cfg models.FormanceConfig) (*Mirror, error) {
	if cfg.ServerURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance mirror requires FORMANCE_SERVER_URL, FORMANCE_CLIENT_ID and FORMANCE_CLIENT_SECRET")
	}
	if cfg.Ledger == "" {
		cfg.Ledger = defaultLedgerName
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("server_url", cfg.ServerURL),
		zap.String("ledger", cfg.Ledger))

	client := v3.New(
		v3.WithServerURL(cfg.ServerURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	m := &Mirror{client: client, ledger: cfg.Ledger}
	if err := m.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance mirror initialized", zap.String("ledger", cfg.Ledger))
	return m, nil
}

func (m *Mirror) ensureLedger(ctx context.Context) error {
	_, err := m.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: m.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "stellar-tipbot",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", m.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", m.ledger))
	return nil
}

// Notify posts deposits, transfers and withdrawals. Other events move no
// funds and are ignored.
func (m *Mirror) Notify(ctx context.Context, event models.Event) {
	p, ok := postingFor(event)
	if !ok {
		return
	}

	postCtx, cancel := context.WithTimeout(ctx, postTimeout)
	defer cancel()

	if err := m.post(postCtx, p); err != nil {
		zap.L().Error("Failed to mirror ledger event",
			zap.String("event", string(event.Type)),
			zap.String("reference", p.reference),
			zap.Error(err))
	}
}

func (m *Mirror) post(ctx context.Context, p *posting) error {
	_, err := m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: m.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(p.reference),
			Timestamp: p.timestamp,
			Script: &shared.V2PostTransactionScript{
				Plain: p.script,
				Vars:  p.vars,
			},
		},
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Ledger event already mirrored", zap.String("reference", p.reference))
			return nil
		}
		return err
	}

	zap.L().Debug("Ledger event mirrored", zap.String("reference", p.reference))
	return nil
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func strPtr(s string) *string { return &s }
