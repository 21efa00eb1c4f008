package twiliosms

import (
	"context"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without credentials")
	}

	if _, err := NewClient(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
	); err == nil {
		t.Fatalf("expected error without from number")
	}

	c, err := NewClient(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
		WithFromNumber("+15005550006"),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.fromNumber != "+15005550006" {
		t.Errorf("fromNumber = %q", c.fromNumber)
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	m := NewMockClient()

	if err := m.SendMessage(context.Background(), "+639171234567", "Salamat po!"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(m.SentMessages) != 1 {
		t.Fatalf("got %d sent messages, want 1", len(m.SentMessages))
	}
	if m.SentMessages[0].To != "+639171234567" || m.SentMessages[0].Body != "Salamat po!" {
		t.Errorf("recorded message = %+v", m.SentMessages[0])
	}
}
