package messaging

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/field"
	"github.com/kapwa-labs/KamustaBot/internal/flow"
	"github.com/kapwa-labs/KamustaBot/internal/models"
	"github.com/kapwa-labs/KamustaBot/internal/store"
)

type sentMessage struct {
	To   string
	Body string
}

// mockService is an in-memory Service for handler tests.
type mockService struct {
	mu        sync.Mutex
	sent      []sentMessage
	receipts  chan models.Receipt
	responses chan models.Response
}

func newMockService() *mockService {
	return &mockService{
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
	}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return field.Phone(recipient)
}

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { return nil }

func (m *mockService) Receipts() <-chan models.Receipt   { return m.receipts }
func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

const testSender = "09171234567"

// canonical form of testSender
const testSenderCanonical = "+639171234567"

func newChatFixture(now time.Time) (*ResponseHandler, *store.InMemoryStore, *mockService) {
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(
		flow.WithDirectory(store.NewDirectory(st)),
		flow.WithClock(func() time.Time { return now }),
	)
	svc := newMockService()
	return NewResponseHandler(engine, st, svc), st, svc
}

// drainOutbox claims every due outbox message, marks it sent, and returns
// the batch in claim order.
func drainOutbox(t *testing.T, st *store.InMemoryStore) []store.OutboxMessage {
	t.Helper()
	msgs, err := st.ClaimDueOutboxMessages(time.Now().Add(time.Second), 100)
	if err != nil {
		t.Fatalf("claim outbox: %v", err)
	}
	for _, msg := range msgs {
		if err := st.MarkOutboxMessageSent(msg.ID); err != nil {
			t.Fatalf("mark sent: %v", err)
		}
	}
	return msgs
}

func replyTexts(t *testing.T, msgs []store.OutboxMessage) []string {
	t.Helper()
	var texts []string
	for _, msg := range msgs {
		if msg.Kind != OutboxKindReply {
			continue
		}
		var p replyPayload
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &p); err != nil {
			t.Fatalf("decode reply payload: %v", err)
		}
		texts = append(texts, p.Text)
	}
	return texts
}

// say processes one inbound message and returns the reply texts it produced.
func say(t *testing.T, rh *ResponseHandler, st *store.InMemoryStore, body string) []string {
	t.Helper()
	err := rh.ProcessResponse(context.Background(), models.Response{
		From: testSender,
		Body: body,
		Time: time.Now().Unix(),
	})
	if err != nil {
		t.Fatalf("ProcessResponse(%q): %v", body, err)
	}
	return replyTexts(t, drainOutbox(t, st))
}

func TestFlowForKeyword(t *testing.T) {
	cases := []struct {
		body string
		want models.FlowType
		ok   bool
	}{
		{"I want to sign up po", models.FlowTypeSignup, true},
		{"SIGNUP", models.FlowTypeSignup, true},
		{"register me please", models.FlowTypeSignup, true},
		{"check in", models.FlowTypeCheckin, true},
		{"Check-in po", models.FlowTypeCheckin, true},
		{"add an event", models.FlowTypeEventCreate, true},
		{"kamusta", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := flowForKeyword(c.body)
		if ok != c.ok || got != c.want {
			t.Errorf("flowForKeyword(%q) = (%q, %v), want (%q, %v)", c.body, got, ok, c.want, c.ok)
		}
	}
}

func TestMenuWhenNoKeywordMatches(t *testing.T) {
	rh, st, _ := newChatFixture(time.Now())

	replies := say(t, rh, st, "kamusta po")
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if replies[0] != DefaultMenuMessage {
		t.Errorf("expected menu, got %q", replies[0])
	}

	if sess, _ := st.GetSession(ChatSessionID(testSenderCanonical)); sess != nil {
		t.Errorf("menu message should not create a session")
	}
}

func TestSetMenuMessageOverridesDefault(t *testing.T) {
	rh, st, _ := newChatFixture(time.Now())
	rh.SetMenuMessage("Mabuhay! Text SIGN UP, EVENT, or CHECK IN.")

	replies := say(t, rh, st, "kamusta po")
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if replies[0] != "Mabuhay! Text SIGN UP, EVENT, or CHECK IN." {
		t.Errorf("expected custom menu, got %q", replies[0])
	}
}

func TestSignupOverChat(t *testing.T) {
	rh, st, _ := newChatFixture(time.Now())

	replies := say(t, rh, st, "sign up")
	if len(replies) != 1 {
		t.Fatalf("got %d greeting replies, want 1", len(replies))
	}

	inputs := []string{
		"Juan", "Dela Cruz", "none", "none", "Jun",
		"ME", "Cebu City", "1801",
		"09171234567", "yes", "secret1", "secret1",
	}
	for _, in := range inputs {
		replies = say(t, rh, st, in)
		if len(replies) != 1 {
			t.Fatalf("input %q produced %d replies, want 1", in, len(replies))
		}
	}

	// Confirming the review completes the flow: the completion turn plus
	// the welcome that follows the recorded registration.
	if err := rh.ProcessResponse(context.Background(), models.Response{
		From: testSender,
		Body: "yes",
		Time: time.Now().Unix(),
	}); err != nil {
		t.Fatalf("ProcessResponse(confirm): %v", err)
	}
	msgs := drainOutbox(t, st)
	if replies = replyTexts(t, msgs); len(replies) != 2 {
		t.Fatalf("confirmation produced %d replies, want 2", len(replies))
	}

	sessID := ChatSessionID(testSenderCanonical)
	sess, err := st.GetSession(sessID)
	if err != nil || sess == nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if !sess.Completed {
		t.Errorf("session should be completed after welcome")
	}

	// The registration record must be waiting on the outbox, deduped on
	// the session id.
	var record *store.OutboxMessage
	for i := range msgs {
		if msgs[i].Kind == OutboxKindSignupRecord {
			record = &msgs[i]
		}
	}
	if record == nil {
		t.Fatalf("no signup record on the outbox")
	}
	if record.DedupeKey != sessID {
		t.Errorf("dedupe key = %q, want %q", record.DedupeKey, sessID)
	}
	if record.Recipient != testSenderCanonical {
		t.Errorf("recipient = %q, want %q", record.Recipient, testSenderCanonical)
	}
	var p models.SignupPayload
	if err := json.Unmarshal([]byte(record.PayloadJSON), &p); err != nil {
		t.Fatalf("decode signup record: %v", err)
	}
	if p.FirstName != "Juan" || p.Nickname != "Jun" {
		t.Errorf("record = %+v, want Juan/Jun", p)
	}
}

func TestCheckinOverChat(t *testing.T) {
	now := time.Date(2026, 2, 15, 10, 0, 0, 0, time.Local)
	rh, st, _ := newChatFixture(now)

	if err := st.SaveEvent(models.Event{
		ID:        "ev_feast",
		Title:     "Feast Cebu",
		Category:  models.CategorySpecial,
		StartDate: "2026-02-15",
		EndDate:   "2026-02-15",
		Location:  "Cebu City",
	}); err != nil {
		t.Fatalf("save event: %v", err)
	}

	say(t, rh, st, "check in")
	say(t, rh, st, "special")

	replies := say(t, rh, st, "today")
	if len(replies) != 1 || !strings.Contains(replies[0], "Feast Cebu") {
		t.Fatalf("expected confirm prompt naming the event, got %v", replies)
	}

	replies = say(t, rh, st, "yes")
	if len(replies) != 2 {
		t.Fatalf("confirmation produced %d replies, want 2", len(replies))
	}

	recs, err := st.GetCheckins("ev_feast")
	if err != nil {
		t.Fatalf("get checkins: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d check-ins, want 1", len(recs))
	}
	if recs[0].MemberRef != testSenderCanonical {
		t.Errorf("member ref = %q, want %q", recs[0].MemberRef, testSenderCanonical)
	}
}

func TestCompletedSessionStartsNewFlow(t *testing.T) {
	rh, st, _ := newChatFixture(time.Now())

	// Plant a finished session in the sender's slot.
	sessID := ChatSessionID(testSenderCanonical)
	if err := st.SaveSession(&models.Session{
		ID:        sessID,
		Flow:      models.FlowTypeSignup,
		Collected: map[models.FieldKey]string{},
		Completed: true,
	}); err != nil {
		t.Fatalf("save session: %v", err)
	}

	replies := say(t, rh, st, "event")
	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}

	sess, err := st.GetSession(sessID)
	if err != nil || sess == nil {
		t.Fatalf("session lookup failed: %v", err)
	}
	if sess.Flow != models.FlowTypeEventCreate {
		t.Errorf("flow = %q, want %q", sess.Flow, models.FlowTypeEventCreate)
	}
	if sess.Completed {
		t.Errorf("fresh session should not be completed")
	}
}

func TestInvalidSenderRejected(t *testing.T) {
	rh, _, _ := newChatFixture(time.Now())

	err := rh.ProcessResponse(context.Background(), models.Response{
		From: "not-a-number",
		Body: "sign up",
		Time: time.Now().Unix(),
	})
	if err == nil {
		t.Fatalf("expected error for invalid sender")
	}
}

func TestOutboxSendFuncDeliversReplies(t *testing.T) {
	svc := newMockService()
	send := NewOutboxSendFunc(svc, nil)
	ctx := context.Background()

	payload, _ := json.Marshal(replyPayload{Text: "Salamat!"})
	err := send(ctx, store.OutboxMessage{
		ID:          "outbox_1",
		Recipient:   testSenderCanonical,
		Kind:        OutboxKindReply,
		PayloadJSON: string(payload),
	})
	if err != nil {
		t.Fatalf("send reply: %v", err)
	}
	sent := svc.sentMessages()
	if len(sent) != 1 || sent[0].To != testSenderCanonical || sent[0].Body != "Salamat!" {
		t.Errorf("sent = %v, want one message to %s", sent, testSenderCanonical)
	}

	// Signup records are journaled, not sent through the chat channel.
	if err := send(ctx, store.OutboxMessage{
		ID:   "outbox_2",
		Kind: OutboxKindSignupRecord,
	}); err != nil {
		t.Errorf("signup record should succeed, got %v", err)
	}
	if len(svc.sentMessages()) != 1 {
		t.Errorf("signup record should not produce a chat message")
	}

	if err := send(ctx, store.OutboxMessage{ID: "outbox_3", Kind: "mystery"}); err == nil {
		t.Errorf("unknown kind should fail")
	}
	if err := send(ctx, store.OutboxMessage{
		ID:          "outbox_4",
		Kind:        OutboxKindReply,
		PayloadJSON: "{",
	}); err == nil {
		t.Errorf("malformed payload should fail")
	}
}

type upperPolisher struct{ err error }

func (p upperPolisher) Polish(ctx context.Context, text string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return strings.ToUpper(text), nil
}

func TestOutboxSendFuncPolishesReplies(t *testing.T) {
	svc := newMockService()
	ctx := context.Background()
	payload, _ := json.Marshal(replyPayload{Text: "salamat"})
	msg := store.OutboxMessage{
		ID:          "outbox_1",
		Recipient:   testSenderCanonical,
		Kind:        OutboxKindReply,
		PayloadJSON: string(payload),
	}

	if err := NewOutboxSendFunc(svc, upperPolisher{})(ctx, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent := svc.sentMessages(); len(sent) != 1 || sent[0].Body != "SALAMAT" {
		t.Errorf("sent = %v, want polished text", sent)
	}

	// A failing polisher must not block delivery.
	svc = newMockService()
	if err := NewOutboxSendFunc(svc, upperPolisher{err: context.DeadlineExceeded})(ctx, msg); err != nil {
		t.Fatalf("send with failing polisher: %v", err)
	}
	if sent := svc.sentMessages(); len(sent) != 1 || sent[0].Body != "salamat" {
		t.Errorf("sent = %v, want original text", sent)
	}
}

func TestStartProcessesChannelMessages(t *testing.T) {
	rh, st, svc := newChatFixture(time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rh.Start(ctx)

	svc.responses <- models.Response{From: testSender, Body: "hello", Time: time.Now().Unix()}

	deadline := time.After(2 * time.Second)
	for {
		msgs, err := st.ClaimDueOutboxMessages(time.Now().Add(time.Second), 10)
		if err != nil {
			t.Fatalf("claim outbox: %v", err)
		}
		if len(msgs) > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no reply enqueued within deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
