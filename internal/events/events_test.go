package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"stellar-tipbot-go/internal/models"

	"github.com/shopspring/decimal"
)

func TestChannel_DeliversStampedEvents(t *testing.T) {
	ch := NewChannel(1)
	defer ch.Close()

	ch.Notify(context.Background(), models.Event{
		Type:   models.EventWithdrawalFailed,
		Amount: decimal.NewFromInt(1),
		Err:    fmt.Errorf("wrapped: %w", models.ErrDestinationMissing),
	})

	select {
	case event := <-ch.Events():
		if event.Kind != "destination_missing" {
			t.Errorf("Expected kind destination_missing, got %q", event.Kind)
		}
		if event.OccurredAt.IsZero() {
			t.Error("Expected OccurredAt to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestChannel_DropsWhenContextDone(t *testing.T) {
	ch := NewChannel(0)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		ch.Notify(ctx, models.Event{Type: models.EventDeposited})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked past context cancellation")
	}
}

func TestChannel_NotifyAfterClose(t *testing.T) {
	ch := NewChannel(1)
	ch.Close()
	ch.Close()

	ch.Notify(context.Background(), models.Event{Type: models.EventDeposited})

	if _, ok := <-ch.Events(); ok {
		t.Error("Expected closed channel")
	}
}

func TestChannel_CloseReleasesBlockedNotify(t *testing.T) {
	ch := NewChannel(1)
	ch.Notify(context.Background(), models.Event{Type: models.EventDeposited})

	// The buffer is full and nobody reads, so this Notify blocks
	notified := make(chan struct{})
	go func() {
		ch.Notify(context.Background(), models.Event{Type: models.EventTransferred})
		close(notified)
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		ch.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked behind a pending Notify")
	}
	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify was not released by Close")
	}

	var got []models.EventType
	for event := range ch.Events() {
		got = append(got, event.Type)
	}
	if len(got) != 1 || got[0] != models.EventDeposited {
		t.Errorf("Expected only the buffered event, got %v", got)
	}
}

func TestFanout(t *testing.T) {
	var got []models.EventType
	record := NotifierFunc(func(_ context.Context, e models.Event) {
		got = append(got, e.Type)
	})

	Fanout{record, nil, LogNotifier{}, record}.Notify(context.Background(), models.Event{Type: models.EventTransferred})

	if len(got) != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", len(got))
	}
}
