package messaging

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/twiliosms"
)

func TestTwilioServiceSendCanonicalizesAndEmitsReceipt(t *testing.T) {
	mock := twiliosms.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "09171234567", "Kamusta!"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("got %d sent messages, want 1", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "+639171234567" {
		t.Errorf("sent to %q, want canonical +639171234567", mock.SentMessages[0].To)
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

func TestTwilioServiceRejectsInvalidRecipient(t *testing.T) {
	svc := NewTwilioService(twiliosms.NewMockClient())

	if err := svc.SendMessage(context.Background(), "12345", "hi"); err == nil {
		t.Fatalf("expected error for invalid recipient")
	}
}

func TestTwilioServiceSendAfterStop(t *testing.T) {
	svc := NewTwilioService(twiliosms.NewMockClient())

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	if err := svc.SendMessage(context.Background(), "09171234567", "hi"); err != ErrServiceStopped {
		t.Errorf("got %v, want ErrServiceStopped", err)
	}
}

func TestTwilioWebhookEmitsResponse(t *testing.T) {
	svc := NewTwilioService(twiliosms.NewMockClient())

	form := url.Values{}
	form.Set("From", "+639171234567")
	form.Set("Body", "check in")

	req := httptest.NewRequest("POST", "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	svc.TwilioWebhookHandler(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	select {
	case resp := <-svc.Responses():
		if resp.From != "+639171234567" || resp.Body != "check in" {
			t.Errorf("response = %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatalf("no response emitted")
	}
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliosms.NewMockClient())

	req := httptest.NewRequest("POST", "/webhook/twilio", strings.NewReader("From=%2B639171234567"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	svc.TwilioWebhookHandler(w, req)

	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
