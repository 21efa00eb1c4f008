package whatsapp

import (
	"context"
	"testing"
)

func TestWithDBDSNOption(t *testing.T) {
	opts := &Opts{}

	testDSN := "/var/lib/kamustabot/test.db"
	WithDBDSN(testDSN)(opts)

	if opts.DBDSN != testDSN {
		t.Errorf("Expected DBDSN to be %q, got %q", testDSN, opts.DBDSN)
	}
}

func TestWithQRCodeOutputOption(t *testing.T) {
	opts := &Opts{}

	testPath := "/tmp/qr.txt"
	WithQRCodeOutput(testPath)(opts)

	if opts.QRPath != testPath {
		t.Errorf("Expected QRPath to be %q, got %q", testPath, opts.QRPath)
	}
}

func TestWithNumericCodeOption(t *testing.T) {
	opts := &Opts{}

	WithNumericCode()(opts)

	if !opts.NumericCode {
		t.Errorf("Expected NumericCode to be true, got false")
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	m := NewMockClient()

	if err := m.SendMessage(context.Background(), "+639171234567", "Kamusta!"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(m.SentMessages) != 1 {
		t.Fatalf("got %d sent messages, want 1", len(m.SentMessages))
	}
	if m.SentMessages[0].To != "+639171234567" || m.SentMessages[0].Body != "Kamusta!" {
		t.Errorf("recorded message = %+v", m.SentMessages[0])
	}
}
