package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kapwa-labs/KamustaBot/internal/flow"
	"github.com/kapwa-labs/KamustaBot/internal/models"
	"github.com/kapwa-labs/KamustaBot/internal/store"
)

var signupInputs = []string{
	"Juan", "Dela Cruz", "none", "none", "Jun", "ME", "Cebu City", "1801",
	"09171234567", "yes", "secret1", "secret1", "yes",
}

var eventInputs = []string{
	"Youth Night", "regular", "weekly", "Wed", "1",
	"2026-03-04", "2026-12-30", "7:00 PM", "9:00 PM",
	"Cebu City", "none", "Weekly youth gathering", "no", "create",
}

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(flow.WithDirectory(store.NewDirectory(st)))
	return NewServer(engine, st), st
}

// envelope mirrors the JSON response wrapper for decoding in tests.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("failed to decode response envelope: %v (body %q)", err, rec.Body.String())
		}
	}
	return rec, env
}

func createSession(t *testing.T, s *Server, ft models.FlowType) (string, []models.Turn) {
	t.Helper()
	rec, env := doRequest(t, s, http.MethodPost, "/sessions", map[string]string{"flow": string(ft)})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session returned %d: %s", rec.Code, rec.Body.String())
	}
	var result sessionResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("failed to decode session result: %v", err)
	}
	if result.SessionID == "" {
		t.Fatal("create session returned empty session id")
	}
	return result.SessionID, result.Turns
}

func postTurn(t *testing.T, s *Server, sessionID, text string) (int, sessionResult) {
	t.Helper()
	rec, env := doRequest(t, s, http.MethodPost, "/sessions/"+sessionID+"/turns", map[string]string{"text": text})
	var result sessionResult
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(env.Result, &result); err != nil {
			t.Fatalf("failed to decode turn result: %v", err)
		}
	}
	return rec.Code, result
}

func TestCreateSessionReturnsGreeting(t *testing.T) {
	s, _ := newTestServer(t)
	_, turns := createSession(t, s, models.FlowTypeSignup)
	if len(turns) != 1 {
		t.Fatalf("expected one greeting turn, got %d", len(turns))
	}
	if turns[0].Speaker != models.SpeakerAssistant || turns[0].Text == "" {
		t.Errorf("unexpected greeting turn: %+v", turns[0])
	}
}

func TestCreateSessionUnknownFlow(t *testing.T) {
	s, _ := newTestServer(t)
	rec, env := doRequest(t, s, http.MethodPost, "/sessions", map[string]string{"flow": "lottery"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if env.Status != "error" {
		t.Errorf("envelope status = %q, want error", env.Status)
	}
}

func TestCreateSessionMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := doRequest(t, s, http.MethodGet, "/sessions", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := doRequest(t, s, http.MethodGet, "/sessions/s_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	code, _ := postTurn(t, s, "s_missing", "hello")
	if code != http.StatusNotFound {
		t.Errorf("turn on missing session = %d, want 404", code)
	}
}

func TestSignupFlowOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	id, _ := createSession(t, s, models.FlowTypeSignup)

	var last sessionResult
	for _, input := range signupInputs {
		code, result := postTurn(t, s, id, input)
		if code != http.StatusOK {
			t.Fatalf("turn %q returned %d", input, code)
		}
		last = result
	}
	if !last.Completed {
		t.Fatalf("session not completed after full sign-up: %+v", last)
	}
	if len(last.Turns) != 1 || last.Turns[0].Completion == nil || last.Turns[0].Completion.Signup == nil {
		t.Fatalf("expected sign-up completion turn, got %+v", last.Turns)
	}
	if last.Turns[0].Completion.Signup.Nickname != "Jun" {
		t.Errorf("payload nickname = %q, want Jun", last.Turns[0].Completion.Signup.Nickname)
	}

	// The account system's outcome arrives via the result endpoint.
	rec, env := doRequest(t, s, http.MethodPost, "/sessions/"+id+"/result", map[string]string{"result": "success"})
	if rec.Code != http.StatusOK {
		t.Fatalf("result returned %d: %s", rec.Code, rec.Body.String())
	}
	var result sessionResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if len(result.Turns) != 1 || result.Turns[0].Text == "" {
		t.Errorf("expected a welcome turn, got %+v", result.Turns)
	}
	if !result.Completed {
		t.Error("session should stay completed after success")
	}
}

func TestTurnOnCompletedSession(t *testing.T) {
	s, _ := newTestServer(t)
	id, _ := createSession(t, s, models.FlowTypeSignup)
	for _, input := range signupInputs {
		if code, _ := postTurn(t, s, id, input); code != http.StatusOK {
			t.Fatalf("turn %q failed", input)
		}
	}
	code, _ := postTurn(t, s, id, "hello")
	if code != http.StatusConflict {
		t.Errorf("turn on completed session = %d, want 409", code)
	}
}

func TestDuplicateEmailResultReopensSession(t *testing.T) {
	s, st := newTestServer(t)
	id, _ := createSession(t, s, models.FlowTypeSignup)
	inputs := []string{
		"Juan", "Dela Cruz", "none", "none", "Jun", "ME", "Cebu City", "1801",
		"email", "juan@example.com", "secret1", "secret1", "yes",
	}
	for _, input := range inputs {
		if code, _ := postTurn(t, s, id, input); code != http.StatusOK {
			t.Fatalf("turn %q failed", input)
		}
	}

	rec, _ := doRequest(t, s, http.MethodPost, "/sessions/"+id+"/result", map[string]string{"result": "duplicate_email"})
	if rec.Code != http.StatusOK {
		t.Fatalf("result returned %d", rec.Code)
	}
	sess, err := st.GetSession(id)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.Completed {
		t.Error("duplicate email should reopen the session")
	}
	if _, ok := sess.Collected[models.FieldEmail]; ok {
		t.Error("duplicate email should clear the email field")
	}

	// A fresh address completes the record again.
	code, result := postTurn(t, s, id, "juan.dc@example.com")
	if code != http.StatusOK {
		t.Fatalf("replacement email turn returned %d", code)
	}
	if len(result.Turns) != 1 {
		t.Fatalf("expected one turn, got %d", len(result.Turns))
	}
}

func TestEventFlowPersistsRecord(t *testing.T) {
	s, st := newTestServer(t)
	id, _ := createSession(t, s, models.FlowTypeEventCreate)

	var last sessionResult
	for _, input := range eventInputs {
		code, result := postTurn(t, s, id, input)
		if code != http.StatusOK {
			t.Fatalf("turn %q returned %d", input, code)
		}
		last = result
	}
	if !last.Completed {
		t.Fatalf("event session not completed: %+v", last)
	}
	// The completion turn plus the follow-up from storing the event.
	if len(last.Turns) != 2 {
		t.Fatalf("expected completion and result turns, got %d", len(last.Turns))
	}
	if last.Turns[0].Completion == nil || last.Turns[0].Completion.Event == nil {
		t.Fatal("first turn should carry the event payload")
	}

	events, err := st.ListEvents("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Youth Night" {
		t.Fatalf("event not persisted: %+v", events)
	}
	if events[0].RecurrencePattern != models.RecurrenceWeekly || events[0].StartTime != "19:00" {
		t.Errorf("event fields not mapped: %+v", events[0])
	}
}

func TestProgressEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	id, _ := createSession(t, s, models.FlowTypeSignup)
	postTurn(t, s, id, "Juan")
	postTurn(t, s, id, "Dela Cruz")

	rec, env := doRequest(t, s, http.MethodGet, "/sessions/"+id+"/progress", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("progress returned %d", rec.Code)
	}
	var p models.Progress
	if err := json.Unmarshal(env.Result, &p); err != nil {
		t.Fatalf("failed to decode progress: %v", err)
	}
	if p.Completed != 2 || p.Total != 8 {
		t.Errorf("progress = %d/%d, want 2/8", p.Completed, p.Total)
	}
}

func TestResetEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	id, _ := createSession(t, s, models.FlowTypeSignup)
	postTurn(t, s, id, "Juan")

	rec, _ := doRequest(t, s, http.MethodPost, "/sessions/"+id+"/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset returned %d", rec.Code)
	}
	sess, err := st.GetSession(id)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if len(sess.Collected) != 0 || len(sess.Transcript) != 1 {
		t.Errorf("reset did not clear session: %d fields, %d turns", len(sess.Collected), len(sess.Transcript))
	}
}

func TestBackEndpoint(t *testing.T) {
	s, st := newTestServer(t)
	id, _ := createSession(t, s, models.FlowTypeSignup)
	postTurn(t, s, id, "Juan")
	postTurn(t, s, id, "Dela Cruz")

	rec, env := doRequest(t, s, http.MethodPost, "/sessions/"+id+"/back", map[string]string{
		"step":        "FIRST_NAME",
		"prior_value": "Juan",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("back returned %d: %s", rec.Code, rec.Body.String())
	}
	var result sessionResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if len(result.Turns) != 1 || result.Turns[0].Text == "" {
		t.Fatalf("expected a re-entry prompt, got %+v", result.Turns)
	}
	sess, err := st.GetSession(id)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if _, ok := sess.Collected[models.FieldFirstName]; ok {
		t.Error("back should clear the edited field")
	}

	rec, _ = doRequest(t, s, http.MethodPost, "/sessions/"+id+"/back", map[string]string{"step": "NO_SUCH_STEP"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("back with unknown step = %d, want 400", rec.Code)
	}
}

func TestEventsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	payload := map[string]interface{}{
		"title":      "Grand Anniversary",
		"category":   "special",
		"start_date": "2026-06-10",
		"end_date":   "2026-06-10",
		"start_time": "09:00",
		"location":   "Manila",
	}
	rec, env := doRequest(t, s, http.MethodPost, "/events", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event returned %d: %s", rec.Code, rec.Body.String())
	}
	var ev models.Event
	if err := json.Unmarshal(env.Result, &ev); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if ev.ID == "" || ev.Title != "Grand Anniversary" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	rec, env = doRequest(t, s, http.MethodGet, "/events?category=special", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list events returned %d", rec.Code)
	}
	var events []models.Event
	if err := json.Unmarshal(env.Result, &events); err != nil {
		t.Fatalf("failed to decode events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("listed %d events, want 1", len(events))
	}

	rec, _ = doRequest(t, s, http.MethodGet, "/events/"+ev.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get event returned %d", rec.Code)
	}
	rec, _ = doRequest(t, s, http.MethodGet, "/events/ev_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get missing event returned %d, want 404", rec.Code)
	}
}

func TestEventsEndpointRejectsInvalidPayload(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := doRequest(t, s, http.MethodPost, "/events", map[string]interface{}{
		"title": "No date",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid payload returned %d, want 400", rec.Code)
	}
}

func TestCheckinsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec, env := doRequest(t, s, http.MethodPost, "/events", map[string]interface{}{
		"title":      "Grand Anniversary",
		"category":   "special",
		"start_date": "2026-06-10",
		"end_date":   "2026-06-10",
		"location":   "Manila",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event returned %d", rec.Code)
	}
	var ev models.Event
	if err := json.Unmarshal(env.Result, &ev); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}

	rec, env = doRequest(t, s, http.MethodPost, "/events/"+ev.ID+"/checkins", map[string]string{"member_ref": "+639171234567"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create check-in returned %d: %s", rec.Code, rec.Body.String())
	}
	var checkin models.CheckinRecord
	if err := json.Unmarshal(env.Result, &checkin); err != nil {
		t.Fatalf("failed to decode check-in: %v", err)
	}
	if checkin.EventID != ev.ID || checkin.MemberRef != "+639171234567" {
		t.Errorf("unexpected check-in: %+v", checkin)
	}

	rec, env = doRequest(t, s, http.MethodGet, "/events/"+ev.ID+"/checkins", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list check-ins returned %d", rec.Code)
	}
	var records []models.CheckinRecord
	if err := json.Unmarshal(env.Result, &records); err != nil {
		t.Fatalf("failed to decode check-ins: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("listed %d check-ins, want 1", len(records))
	}

	rec, _ = doRequest(t, s, http.MethodPost, "/events/ev_missing/checkins", map[string]string{})
	if rec.Code != http.StatusNotFound {
		t.Errorf("check-in on missing event returned %d, want 404", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec, _ := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health returned %d", rec.Code)
	}
}
