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

func TestReserveAndConfirmWithdrawal(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := mustAccount(t, service, "testing", "alice", "5")

	reservation, err := service.ReserveWithdrawal(ctx, store.ReserveWithdrawalParams{
		AccountId: account.Id, Address: testAddressB, Amount: decimal.NewFromInt(2), Hash: "w-1",
	})
	if err != nil {
		t.Fatalf("ReserveWithdrawal failed: %v", err)
	}
	assertBalance(t, service, account.Id, "3.0000000")

	// Funds held by an open reservation still reconcile
	if err := service.ReconcileAccount(ctx, account.Id); err != nil {
		t.Errorf("Reconcile with open reservation failed: %v", err)
	}

	result, err := service.ConfirmWithdrawal(ctx, store.ConfirmWithdrawalParams{
		ReservationId: reservation.Id, SourceAddress: testAddressA, Memo: "XLM Tipping bot", NetworkId: "net-1",
	})
	if err != nil {
		t.Fatalf("ConfirmWithdrawal failed: %v", err)
	}
	if result.Transaction.Type != models.TransactionWithdrawal || result.Transaction.Target != testAddressB {
		t.Errorf("Unexpected withdrawal transaction %+v", result.Transaction)
	}
	if result.Reservation.Status != models.ReservationConfirmed {
		t.Errorf("Expected confirmed reservation, got %s", result.Reservation.Status)
	}
	assertBalance(t, service, account.Id, "3.0000000")

	found, err := service.HasWithdrawal(ctx, "w-1", testAddressB, "")
	if err != nil {
		t.Fatalf("HasWithdrawal failed: %v", err)
	}
	if !found {
		t.Error("Expected confirmed withdrawal to be detected")
	}

	if err := service.ReconcileAccount(ctx, account.Id); err != nil {
		t.Errorf("Reconcile after confirm failed: %v", err)
	}

	if _, err := service.RefundWithdrawal(ctx, reservation.Id, "late"); !errors.Is(err, store.ErrReservationNotOpen) {
		t.Errorf("Expected ErrReservationNotOpen for refund after confirm, got %v", err)
	}
}

func TestReserveWithdrawal_InsufficientBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	account := mustAccount(t, service, "testing", "alice", "1")
	_, err := service.ReserveWithdrawal(context.Background(), store.ReserveWithdrawalParams{
		AccountId: account.Id, Address: testAddressB, Amount: decimal.NewFromInt(2), Hash: "w-2",
	})
	if !errors.Is(err, models.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	assertBalance(t, service, account.Id, "1.0000000")
}

func TestRefundWithdrawal_RestoresBalance(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := mustAccount(t, service, "testing", "alice", "2.5")

	reservation, err := service.ReserveWithdrawal(ctx, store.ReserveWithdrawalParams{
		AccountId: account.Id, Address: testAddressB, Amount: decimal.RequireFromString("2.5"), Hash: "w-3",
	})
	if err != nil {
		t.Fatalf("ReserveWithdrawal failed: %v", err)
	}
	assertBalance(t, service, account.Id, "0.0000000")

	refunded, err := service.RefundWithdrawal(ctx, reservation.Id, "destination_missing")
	if err != nil {
		t.Fatalf("RefundWithdrawal failed: %v", err)
	}
	if got := models.FormatAmount(refunded.Balance); got != "2.5000000" {
		t.Errorf("Expected refunded balance 2.5000000, got %s", got)
	}

	if _, err := service.RefundWithdrawal(ctx, reservation.Id, "again"); !errors.Is(err, store.ErrReservationNotOpen) {
		t.Errorf("Expected ErrReservationNotOpen on double refund, got %v", err)
	}
	assertBalance(t, service, account.Id, "2.5000000")

	found, err := service.HasWithdrawal(ctx, "w-3", testAddressB, "")
	if err != nil {
		t.Fatalf("HasWithdrawal failed: %v", err)
	}
	if found {
		t.Error("A refunded reservation must not count as a submitted withdrawal")
	}

	if err := service.ReconcileAccount(ctx, account.Id); err != nil {
		t.Errorf("Reconcile after refund failed: %v", err)
	}
}

func TestReserveWithdrawal_DuplicateHash(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	account := mustAccount(t, service, "testing", "alice", "5")
	params := store.ReserveWithdrawalParams{
		AccountId: account.Id, Address: testAddressB, Amount: decimal.NewFromInt(1), Hash: "w-4",
	}

	first, err := service.ReserveWithdrawal(ctx, params)
	if err != nil {
		t.Fatalf("ReserveWithdrawal failed: %v", err)
	}

	// An in-flight reservation blocks the hash before any debit
	if _, err := service.ReserveWithdrawal(ctx, params); !errors.Is(err, models.ErrDuplicateSubmission) {
		t.Fatalf("Expected ErrDuplicateSubmission, got %v", err)
	}
	assertBalance(t, service, account.Id, "4.0000000")

	open, err := service.GetOpenReservations(ctx, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("GetOpenReservations failed: %v", err)
	}
	if len(open) != 1 || open[0].Id != first.Id {
		t.Errorf("Expected only the first reservation open, got %+v", open)
	}

	older, err := service.GetOpenReservations(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetOpenReservations failed: %v", err)
	}
	if len(older) != 0 {
		t.Errorf("Expected no reservations older than an hour, got %d", len(older))
	}

	// A failed attempt frees the hash for a retry
	if _, err := service.RefundWithdrawal(ctx, first.Id, "submission_failed"); err != nil {
		t.Fatalf("RefundWithdrawal failed: %v", err)
	}
	retry, err := service.ReserveWithdrawal(ctx, params)
	if err != nil {
		t.Fatalf("Retry after refund failed: %v", err)
	}

	// A confirmed withdrawal keeps the hash taken
	if _, err := service.ConfirmWithdrawal(ctx, store.ConfirmWithdrawalParams{
		ReservationId: retry.Id, SourceAddress: testAddressA, NetworkId: "net-4",
	}); err != nil {
		t.Fatalf("ConfirmWithdrawal failed: %v", err)
	}
	if _, err := service.ReserveWithdrawal(ctx, params); !errors.Is(err, models.ErrDuplicateSubmission) {
		t.Fatalf("Expected ErrDuplicateSubmission after confirm, got %v", err)
	}
	assertBalance(t, service, account.Id, "4.0000000")

	if err := service.ReconcileAccount(ctx, account.Id); err != nil {
		t.Errorf("ReconcileAccount failed: %v", err)
	}
}
