package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stellar-tipbot-go/internal/models"
	"stellar-tipbot-go/internal/store"

	"github.com/shopspring/decimal"
)

const (
	testAddressA = "GBJHSBKCRLBCUGN2E7QUIR6BBEPEHZNIEBBKQSG7QVFZX437NAT4W34X"
	testAddressB = "GDCB3KWETUBA5G2LF4BNJWMFLJVK5UQAANG4W4FBBL272TXGEIRGSGOL"
	testAddressC = "GBAMNIYGXP5SGKLQZBVN4LZDLO3GS4N37T3O4EUI2UFUKIFJIKFS4EUC"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:            filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns:    8,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		PingTimeout:     5 * time.Second,
		BusyTimeout:     10 * time.Second,
	}

	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	return service, service.Close
}

func mustAccount(t *testing.T, s *Service, adapter, externalId, opening string) *models.Account {
	t.Helper()
	var defaults *models.AccountDefaults
	if opening != "" {
		defaults = &models.AccountDefaults{OpeningBalance: decimal.RequireFromString(opening)}
	}
	account, err := s.GetOrCreateAccount(context.Background(), adapter, externalId, defaults)
	if err != nil {
		t.Fatalf("GetOrCreateAccount(%s, %s) failed: %v", adapter, externalId, err)
	}
	return account
}

func assertBalance(t *testing.T, s *Service, accountId, expected string) {
	t.Helper()
	account, err := s.GetAccount(context.Background(), accountId)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if got := models.FormatAmount(account.Balance); got != expected {
		t.Errorf("Expected balance %s, got %s", expected, got)
	}
}

func TestNewService_InvalidConfig(t *testing.T) {
	_, err := NewService(context.Background(), models.DatabaseConfig{Path: "", MaxOpenConns: 1, PingTimeout: time.Second})
	if err == nil {
		t.Fatal("Expected error for empty path")
	}

	_, err = NewService(context.Background(), models.DatabaseConfig{Path: "x.db", MaxOpenConns: 0, PingTimeout: time.Second})
	if err == nil {
		t.Fatal("Expected error for zero max open connections")
	}
}

func TestGetOrCreateAccount_CreatesOnce(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	first, err := service.GetOrCreateAccount(ctx, "testing", "alice", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAccount failed: %v", err)
	}
	if got := models.FormatAmount(first.Balance); got != "0.0000000" {
		t.Errorf("Expected default balance 0.0000000, got %s", got)
	}

	second, err := service.GetOrCreateAccount(ctx, "testing", "alice", &models.AccountDefaults{OpeningBalance: decimal.NewFromInt(99)})
	if err != nil {
		t.Fatalf("Second GetOrCreateAccount failed: %v", err)
	}
	if second.Id != first.Id {
		t.Errorf("Expected same account id %s, got %s", first.Id, second.Id)
	}
	if !second.Balance.IsZero() {
		t.Errorf("Defaults must not apply to existing accounts, got balance %s", second.Balance)
	}

	other, err := service.GetOrCreateAccount(ctx, "reddit", "alice", nil)
	if err != nil {
		t.Fatalf("GetOrCreateAccount for second adapter failed: %v", err)
	}
	if other.Id == first.Id {
		t.Error("Accounts on different adapters must be distinct")
	}
}

func TestGetOrCreateAccount_OpeningBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	account := mustAccount(t, service, "testing", "bob", "5")
	assertBalance(t, service, account.Id, "5.0000000")

	if err := service.ReconcileAccount(context.Background(), account.Id); err != nil {
		t.Errorf("Expected opening balance to reconcile, got %v", err)
	}
}

func TestGetOrCreateAccount_Concurrent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			account, err := service.GetOrCreateAccount(context.Background(), "testing", "race", nil)
			errs[i] = err
			if account != nil {
				ids[i] = account.Id
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("worker %d got account %s, expected %s", i, ids[i], ids[0])
		}
	}

	accounts, err := service.GetAccounts(context.Background(), "testing")
	if err != nil {
		t.Fatalf("GetAccounts failed: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("Expected exactly one account, got %d", len(accounts))
	}
}

func TestSetWalletAddress(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	alice := mustAccount(t, service, "testing", "alice", "")
	bob := mustAccount(t, service, "testing", "bob", "")

	if _, err := service.SetWalletAddress(ctx, alice.Id, "not-an-address"); !errors.Is(err, models.ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}

	updated, err := service.SetWalletAddress(ctx, alice.Id, testAddressA)
	if err != nil {
		t.Fatalf("SetWalletAddress failed: %v", err)
	}
	if updated.WalletAddress != testAddressA {
		t.Errorf("Expected wallet %s, got %s", testAddressA, updated.WalletAddress)
	}

	if _, err := service.SetWalletAddress(ctx, bob.Id, testAddressA); !errors.Is(err, models.ErrAddressInUse) {
		t.Errorf("Expected ErrAddressInUse, got %v", err)
	}

	found, err := service.FindAccountByWallet(ctx, testAddressA)
	if err != nil {
		t.Fatalf("FindAccountByWallet failed: %v", err)
	}
	if found.Id != alice.Id {
		t.Errorf("Expected account %s, got %s", alice.Id, found.Id)
	}

	if _, err := service.SetWalletAddress(ctx, "missing", testAddressB); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestCanPay(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := mustAccount(t, service, "testing", "carol", "1.5")

	cases := []struct {
		amount string
		want   bool
	}{
		{"1.5", true},
		{"1.4999999", true},
		{"1.5000001", false},
		{"0", true},
	}
	for _, c := range cases {
		ok, err := service.CanPay(ctx, account.Id, decimal.RequireFromString(c.amount))
		if err != nil {
			t.Fatalf("CanPay failed: %v", err)
		}
		if ok != c.want {
			t.Errorf("CanPay(%s) = %v, want %v", c.amount, ok, c.want)
		}
	}
}
