package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/whatsapp"
)

func TestWhatsAppServiceSendEmitsReceipt(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	if err := svc.SendMessage(context.Background(), "+639171234567", "Kamusta!"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("got %d sent messages, want 1", len(mock.SentMessages))
	}

	select {
	case r := <-svc.Receipts():
		if r.To != "+639171234567" {
			t.Errorf("receipt to %q, want +639171234567", r.To)
		}
	case <-time.After(time.Second):
		t.Fatalf("no receipt emitted")
	}
}

func TestWhatsAppServiceSendDoesNotStallWhenReceiptsUnread(t *testing.T) {
	mock := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mock)

	// Fill the receipts buffer past capacity without ever draining it. Every
	// send must still return so the outbox sender keeps making progress.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultChannelBufferSize+1; i++ {
			if err := svc.SendMessage(context.Background(), "+639171234567", "Kamusta!"); err != nil {
				t.Errorf("SendMessage %d: %v", i, err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("SendMessage blocked with a full receipts channel")
	}

	if len(mock.SentMessages) != DefaultChannelBufferSize+1 {
		t.Fatalf("got %d sent messages, want %d", len(mock.SentMessages), DefaultChannelBufferSize+1)
	}
}

func TestWhatsAppServiceCanonicalizesRecipient(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	got, err := svc.ValidateAndCanonicalizeRecipient("0917 123 4567")
	if err != nil {
		t.Fatalf("ValidateAndCanonicalizeRecipient: %v", err)
	}
	if got != "+639171234567" {
		t.Errorf("canonical = %q, want +639171234567", got)
	}

	if _, err := svc.ValidateAndCanonicalizeRecipient("landline"); err == nil {
		t.Errorf("expected error for non-mobile input")
	}
}

func TestWhatsAppServiceStartWithMockSkipsEvents(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
