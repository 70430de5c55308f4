package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Balance returns the mirrored XLM balance of a local account. Accounts never
// touched by a posting report zero.
func (m *Mirror) Balance(ctx context.Context, accountId string) (decimal.Decimal, error) {
	address := "users:" + accountId
	zap.L().Debug("Getting mirrored balance from Formance", zap.String("address", address))

	resp, err := m.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  m.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("unable to get account %s: %w", address, err)
	}

	bal := volumeBalance(resp.V2AccountResponse.Data.Volumes, xlmAsset)
	return bigIntToDecimal(bal), nil
}

// WithdrawnTotal returns the total amount mirrored into settlement:withdrawals.
func (m *Mirror) WithdrawnTotal(ctx context.Context) (decimal.Decimal, error) {
	resp, err := m.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  m.ledger,
		Address: "settlement:withdrawals",
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("unable to get settlement account: %w", err)
	}
	return bigIntToDecimal(volumeBalance(resp.V2AccountResponse.Data.Volumes, xlmAsset)), nil
}

func isNotFoundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumNotFound
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// bigIntToDecimal converts stroops to XLM.
func bigIntToDecimal(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -xlmPrecision)
}
