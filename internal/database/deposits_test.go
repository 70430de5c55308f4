package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"github.com/shopspring/decimal"
)

func newDeposit(t *testing.T, hash, amount, memo, cursor string, createdAt time.Time) *models.Transaction {
	t.Helper()
	deposit, err := models.NewDepositTransaction(models.Payment{
		From:      testAddressB,
		To:        testAddressA,
		Amount:    decimal.RequireFromString(amount),
		AssetType: models.NativeAsset,
		Memo:      memo,
		Hash:      hash,
		Cursor:    cursor,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("NewDepositTransaction failed: %v", err)
	}
	return deposit
}

func TestInsertDeposit_Duplicate(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if err := service.InsertDeposit(ctx, newDeposit(t, "hash-1", "5", "testing/alice", "100", time.Now())); err != nil {
		t.Fatalf("InsertDeposit failed: %v", err)
	}

	err := service.InsertDeposit(ctx, newDeposit(t, "hash-1", "5", "testing/alice", "100", time.Now()))
	if !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Fatalf("Expected ErrDuplicateTransaction, got %v", err)
	}
}

func TestCreditDeposit_AppliesOnce(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := mustAccount(t, service, "testing", "1", "1")

	if err := service.InsertDeposit(ctx, newDeposit(t, "dep-1", "5", "testing/1", "200", time.Now())); err != nil {
		t.Fatalf("InsertDeposit failed: %v", err)
	}

	result, err := service.CreditDeposit(ctx, store.CreditDepositParams{Hash: "dep-1", AccountId: account.Id})
	if err != nil {
		t.Fatalf("CreditDeposit failed: %v", err)
	}
	if !result.Credited {
		t.Error("Expected first credit to change the balance")
	}
	if got := models.FormatAmount(result.NewBalance); got != "6.0000000" {
		t.Errorf("Expected new balance 6.0000000, got %s", got)
	}

	again, err := service.CreditDeposit(ctx, store.CreditDepositParams{Hash: "dep-1", AccountId: account.Id})
	if err != nil {
		t.Fatalf("Second CreditDeposit failed: %v", err)
	}
	if again.Credited {
		t.Error("Expected second credit to be a no-op")
	}
	assertBalance(t, service, account.Id, "6.0000000")

	stored, err := service.GetTransactionByHash(ctx, "dep-1")
	if err != nil {
		t.Fatalf("GetTransactionByHash failed: %v", err)
	}
	if stored == nil || !stored.Credited {
		t.Errorf("Expected stored deposit to be marked credited, got %+v", stored)
	}

	if err := service.ReconcileAccount(ctx, account.Id); err != nil {
		t.Errorf("Reconcile failed: %v", err)
	}
}

func TestGetUncreditedDeposits(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := mustAccount(t, service, "testing", "alice", "")
	now := time.Now()

	for _, d := range []*models.Transaction{
		newDeposit(t, "u-1", "1", "garbage", "1", now.Add(-2*time.Minute)),
		newDeposit(t, "u-2", "2", "testing/alice", "2", now.Add(-time.Minute)),
	} {
		if err := service.InsertDeposit(ctx, d); err != nil {
			t.Fatalf("InsertDeposit failed: %v", err)
		}
	}

	if _, err := service.CreditDeposit(ctx, store.CreditDepositParams{Hash: "u-2", AccountId: account.Id}); err != nil {
		t.Fatalf("CreditDeposit failed: %v", err)
	}

	pending, err := service.GetUncreditedDeposits(ctx, 10)
	if err != nil {
		t.Fatalf("GetUncreditedDeposits failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Hash != "u-1" {
		t.Errorf("Expected only u-1 pending, got %+v", pending)
	}
}

func TestLatestDepositCursor(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	cursor, err := service.LatestDepositCursor(ctx)
	if err != nil {
		t.Fatalf("LatestDepositCursor failed: %v", err)
	}
	if cursor != "" {
		t.Errorf("Expected empty cursor on fresh database, got %q", cursor)
	}

	now := time.Now()
	deposits := []*models.Transaction{
		newDeposit(t, "c-1", "1", "testing/a", "300", now.Add(-3*time.Minute)),
		newDeposit(t, "c-3", "1", "testing/a", "500", now.Add(-1*time.Minute)),
		newDeposit(t, "c-2", "1", "testing/a", "400", now.Add(-2*time.Minute)),
	}
	for _, d := range deposits {
		if err := service.InsertDeposit(ctx, d); err != nil {
			t.Fatalf("InsertDeposit failed: %v", err)
		}
	}

	cursor, err = service.LatestDepositCursor(ctx)
	if err != nil {
		t.Fatalf("LatestDepositCursor failed: %v", err)
	}
	if cursor != "500" {
		t.Errorf("Expected cursor of newest deposit 500, got %q", cursor)
	}
}
