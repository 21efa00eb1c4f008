package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/flow"
	"github.com/kapwa-labs/KamustaBot/internal/models"
	"github.com/kapwa-labs/KamustaBot/internal/store"
	"github.com/kapwa-labs/KamustaBot/internal/util"
)

// Outbox message kinds produced by the chat layer.
const (
	// OutboxKindReply is an outbound chat reply, payload {"text": "..."}.
	OutboxKindReply = "reply"
	// OutboxKindSignupRecord is a completed registration awaiting the
	// account system, payload is the signup record itself.
	OutboxKindSignupRecord = "signup_record"
)

// DefaultMenuMessage is sent when a sender has no active conversation and
// their message matches no flow keyword.
const DefaultMenuMessage = "Kamusta! I can help you with:\n" +
	"1. sign up - register as a member\n" +
	"2. event - add a church event\n" +
	"3. check in - record your attendance at an event\n" +
	"Reply with one of those words to begin."

// replyPayload is the JSON body of an OutboxKindReply message.
type replyPayload struct {
	Text string `json:"text"`
}

// ChatSessionID derives the session id for a chat sender. Each canonical
// phone number maps to at most one active session.
func ChatSessionID(phone string) string {
	return "chat_" + phone
}

// ResponseHandler routes inbound chat messages to flow sessions keyed by the
// sender's canonical phone number. Replies are enqueued to the durable
// outbox rather than sent inline, so a crash between processing and delivery
// never loses a message.
type ResponseHandler struct {
	engine      *flow.Engine
	st          store.Store
	msgService  Service
	menuMessage string

	// mu protects senderLocks and menuMessage
	mu          sync.Mutex
	senderLocks map[string]*sync.Mutex
}

// NewResponseHandler creates a new ResponseHandler over the given engine,
// store, and messaging service.
func NewResponseHandler(engine *flow.Engine, st store.Store, msgService Service) *ResponseHandler {
	return &ResponseHandler{
		engine:      engine,
		st:          st,
		msgService:  msgService,
		menuMessage: DefaultMenuMessage,
		senderLocks: make(map[string]*sync.Mutex),
	}
}

// SetMenuMessage overrides the message sent when no flow keyword matches.
func (rh *ResponseHandler) SetMenuMessage(message string) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.menuMessage = message
}

// lockSender serializes processing per sender so two messages from the same
// phone cannot interleave turns. Returns the unlock function.
func (rh *ResponseHandler) lockSender(phone string) func() {
	rh.mu.Lock()
	l, ok := rh.senderLocks[phone]
	if !ok {
		l = &sync.Mutex{}
		rh.senderLocks[phone] = l
	}
	rh.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// flowForKeyword maps a first message onto a flow type. Matching is loose:
// any message containing a flow word selects that flow.
func flowForKeyword(body string) (models.FlowType, bool) {
	text := strings.ToLower(body)
	switch {
	case strings.Contains(text, "sign up") || strings.Contains(text, "signup") || strings.Contains(text, "register"):
		return models.FlowTypeSignup, true
	case strings.Contains(text, "check in") || strings.Contains(text, "checkin") || strings.Contains(text, "check-in") || strings.Contains(text, "attend"):
		return models.FlowTypeCheckin, true
	case strings.Contains(text, "event"):
		return models.FlowTypeEventCreate, true
	default:
		return "", false
	}
}

// ProcessResponse processes one inbound message: it finds or starts the
// sender's session, advances it by one turn, and enqueues the replies.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: invalid sender", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	unlock := rh.lockSender(canonicalFrom)
	defer unlock()

	slog.Debug("ResponseHandler.ProcessResponse: processing", "from", canonicalFrom, "body_length", len(response.Body))

	sessID := ChatSessionID(canonicalFrom)
	sess, err := rh.st.GetSession(sessID)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: session lookup failed", "error", err, "from", canonicalFrom)
		return fmt.Errorf("failed to load session: %w", err)
	}

	if sess == nil || sess.Completed {
		return rh.startFlow(canonicalFrom, sessID, response.Body)
	}

	turn, err := rh.engine.ProcessTurn(ctx, sess, response.Body)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: turn failed", "error", err, "from", canonicalFrom, "session", sess.ID)
		return fmt.Errorf("failed to process turn: %w", err)
	}

	texts := []string{turn.Text}
	if turn.Completion != nil {
		followups, err := rh.applyCompletion(sess, canonicalFrom, turn.Completion)
		if err != nil {
			slog.Error("ResponseHandler.ProcessResponse: completion failed", "error", err, "from", canonicalFrom, "session", sess.ID)
		}
		texts = append(texts, followups...)
	}

	if err := rh.st.SaveSession(sess); err != nil {
		slog.Error("ResponseHandler.ProcessResponse: session save failed", "error", err, "session", sess.ID)
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, text := range texts {
		rh.enqueueReply(canonicalFrom, text)
	}

	slog.Info("ResponseHandler.ProcessResponse: replied", "from", canonicalFrom, "session", sess.ID, "replies", len(texts))
	return nil
}

// startFlow handles a message from a sender with no active session. A flow
// keyword starts that flow; anything else gets the menu.
func (rh *ResponseHandler) startFlow(phone, sessID, body string) error {
	ft, ok := flowForKeyword(body)
	if !ok {
		slog.Debug("ResponseHandler.startFlow: no keyword match, sending menu", "from", phone)
		rh.mu.Lock()
		menu := rh.menuMessage
		rh.mu.Unlock()
		rh.enqueueReply(phone, menu)
		return nil
	}

	sess, err := rh.engine.NewSession(ft)
	if err != nil {
		slog.Error("ResponseHandler.startFlow: session create failed", "error", err, "from", phone, "flow", ft)
		return fmt.Errorf("failed to create session: %w", err)
	}
	// One session slot per sender; a new flow replaces the finished one.
	sess.ID = sessID

	if err := rh.st.SaveSession(sess); err != nil {
		slog.Error("ResponseHandler.startFlow: session save failed", "error", err, "session", sess.ID)
		return fmt.Errorf("failed to save session: %w", err)
	}

	greeting := sess.Transcript[len(sess.Transcript)-1]
	rh.enqueueReply(phone, greeting.Text)

	slog.Info("ResponseHandler.startFlow: flow started", "from", phone, "flow", ft, "session", sess.ID)
	return nil
}

// applyCompletion performs the store-side action a finished flow asks for and
// reports the outcome back to the engine. The returned texts are the
// follow-up assistant turns produced by the outcome.
func (rh *ResponseHandler) applyCompletion(sess *models.Session, phone string, comp *models.Completion) ([]string, error) {
	switch comp.Flow {
	case models.FlowTypeEventCreate:
		ev := comp.Event.ToEvent(util.GenerateEventID())
		result := models.ExternalResultSuccess
		if err := rh.st.SaveEvent(ev); err != nil {
			slog.Error("ResponseHandler.applyCompletion: event save failed", "error", err, "session", sess.ID)
			result = models.ExternalResultGenericFailure
		}
		turn, err := rh.engine.ReportExternalResult(sess, result)
		if err != nil {
			return nil, err
		}
		return []string{turn.Text}, nil

	case models.FlowTypeCheckin:
		rec := models.CheckinRecord{
			ID:          util.GenerateCheckinID(),
			EventID:     comp.Checkin.EventID,
			MemberRef:   phone,
			CheckedInAt: time.Now(),
		}
		result := models.ExternalResultSuccess
		if err := rh.st.AddCheckin(rec); err != nil {
			slog.Error("ResponseHandler.applyCompletion: checkin save failed", "error", err, "session", sess.ID)
			result = models.ExternalResultGenericFailure
		}
		turn, err := rh.engine.ReportExternalResult(sess, result)
		if err != nil {
			return nil, err
		}
		return []string{turn.Text}, nil

	case models.FlowTypeSignup:
		// The account system consumes registrations from the outbox. The
		// session id doubles as the dedupe key so a retried completion
		// cannot enqueue the record twice.
		b, err := json.Marshal(comp.Signup)
		if err != nil {
			return nil, fmt.Errorf("failed to encode signup record: %w", err)
		}
		result := models.ExternalResultSuccess
		if _, err := rh.st.EnqueueOutboxMessage(phone, OutboxKindSignupRecord, string(b), sess.ID); err != nil {
			slog.Error("ResponseHandler.applyCompletion: signup enqueue failed", "error", err, "session", sess.ID)
			result = models.ExternalResultGenericFailure
		}
		turn, err := rh.engine.ReportExternalResult(sess, result)
		if err != nil {
			return nil, err
		}
		return []string{turn.Text}, nil

	default:
		return nil, models.ErrUnknownFlow
	}
}

// enqueueReply stores an outbound chat reply on the durable outbox. Delivery
// failures surface through the outbox sender's retry loop, not here.
func (rh *ResponseHandler) enqueueReply(phone, text string) {
	b, err := json.Marshal(replyPayload{Text: text})
	if err != nil {
		slog.Error("ResponseHandler.enqueueReply: encode failed", "error", err, "to", phone)
		return
	}
	if _, err := rh.st.EnqueueOutboxMessage(phone, OutboxKindReply, string(b), ""); err != nil {
		slog.Error("ResponseHandler.enqueueReply: enqueue failed", "error", err, "to", phone)
	}
}

// Start begins processing responses from the messaging service. It returns
// after launching the processing goroutine.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler.Start: starting response processing")

	go func() {
		defer slog.Info("ResponseHandler.Start: stopped response processing")

		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler.Start: responses channel closed")
					return
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler.Start: failed to process response", "error", err, "from", response.From)
				}

			case <-ctx.Done():
				slog.Debug("ResponseHandler.Start: stopping due to context cancellation")
				return
			}
		}
	}()
}

// TextPolisher rewrites outbound reply wording. Implementations must keep
// the meaning, numbers, and options of the text intact.
type TextPolisher interface {
	Polish(ctx context.Context, text string) (string, error)
}

// NewOutboxSendFunc returns the delivery callback the outbox sender runs for
// each claimed message. Replies go out through the messaging service; signup
// records are journaled for the account system. A nil polisher sends reply
// text as the engine produced it; polish failures fall back to the original
// text rather than blocking delivery.
func NewOutboxSendFunc(msgService Service, polisher TextPolisher) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		switch msg.Kind {
		case OutboxKindReply:
			var p replyPayload
			if err := json.Unmarshal([]byte(msg.PayloadJSON), &p); err != nil {
				return fmt.Errorf("malformed reply payload: %w", err)
			}
			text := p.Text
			if polisher != nil {
				polished, err := polisher.Polish(ctx, text)
				if err != nil {
					slog.Warn("outbox: polish failed, sending original text", "id", msg.ID, "error", err)
				} else {
					text = polished
				}
			}
			return msgService.SendMessage(ctx, msg.Recipient, text)
		case OutboxKindSignupRecord:
			// The sent row is the durable hand-off record until the
			// account system pulls directly.
			slog.Info("outbox: signup record ready for account system", "id", msg.ID, "recipient", msg.Recipient)
			return nil
		default:
			return fmt.Errorf("unknown outbox kind %q", msg.Kind)
		}
	}
}
