// Package api provides HTTP handlers for KamustaBot endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kapwa-labs/KamustaBot/internal/models"
	"github.com/kapwa-labs/KamustaBot/internal/util"
)

// createSessionRequest is the body of POST /sessions.
type createSessionRequest struct {
	Flow models.FlowType `json:"flow"`
}

// turnRequest is the body of POST /sessions/{id}/turns.
type turnRequest struct {
	Text string `json:"text"`
}

// backRequest is the body of POST /sessions/{id}/back.
type backRequest struct {
	Step       models.StepID `json:"step"`
	PriorValue string        `json:"prior_value"`
}

// resultRequest is the body of POST /sessions/{id}/result.
type resultRequest struct {
	Result models.ExternalResult `json:"result"`
}

// sessionResult is the envelope payload carrying a session id and the
// assistant turns a request produced.
type sessionResult struct {
	SessionID string        `json:"session_id"`
	Turns     []models.Turn `json:"turns"`
	Completed bool          `json:"completed"`
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createSessionHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.createSessionHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidFlowType(req.Flow) {
		slog.Warn("Server.createSessionHandler: unknown flow", "flow", req.Flow)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown flow type"))
		return
	}

	sess, err := s.engine.NewSession(req.Flow)
	if err != nil {
		slog.Error("Server.createSessionHandler: failed to create session", "error", err, "flow", req.Flow)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}
	if err := s.st.SaveSession(sess); err != nil {
		slog.Error("Server.createSessionHandler: failed to save session", "error", err, "session", sess.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}

	slog.Info("Server.createSessionHandler: session created", "session", sess.ID, "flow", req.Flow)
	writeJSONResponse(w, http.StatusCreated, models.Created(sessionResult{
		SessionID: sess.ID,
		Turns:     []models.Turn{sess.Transcript[len(sess.Transcript)-1]},
	}))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	slog.Debug("Server.getSessionHandler: processing request", "session", sessionID)
	sess, ok := s.loadSession(w, sessionID)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess))
}

func (s *Server) turnsHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.turnsHandler: processing turn", "session", sessionID)
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.turnsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, ok := s.loadSession(w, sessionID)
	if !ok {
		return
	}

	turn, err := s.engine.ProcessTurn(r.Context(), sess, req.Text)
	if err != nil {
		if errors.Is(err, models.ErrSessionCompleted) {
			slog.Warn("Server.turnsHandler: turn on completed session", "session", sessionID)
			writeJSONResponse(w, http.StatusConflict, models.Error("Session already completed"))
			return
		}
		slog.Error("Server.turnsHandler: failed to process turn", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		return
	}

	turns := []models.Turn{turn}
	if turn.Completion != nil {
		turns = append(turns, s.applyCompletion(sess, turn.Completion)...)
	}

	if err := s.st.SaveSession(sess); err != nil {
		slog.Error("Server.turnsHandler: failed to save session", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(sessionResult{
		SessionID: sess.ID,
		Turns:     turns,
		Completed: sess.Completed,
	}))
}

// applyCompletion performs the external action for completion payloads the
// server can satisfy itself. Event records and check-ins live in the server's
// own store; sign-up payloads are for an account system the server does not
// own, so their outcome arrives later via POST /sessions/{id}/result.
func (s *Server) applyCompletion(sess *models.Session, comp *models.Completion) []models.Turn {
	switch comp.Flow {
	case models.FlowTypeEventCreate:
		ev := eventFromPayload(comp.Event)
		result := models.ExternalResultSuccess
		if err := s.st.SaveEvent(ev); err != nil {
			slog.Error("Server.applyCompletion: failed to save event", "error", err, "session", sess.ID)
			result = models.ExternalResultGenericFailure
		} else {
			slog.Info("Server.applyCompletion: event created", "event", ev.ID, "title", ev.Title)
		}
		turn, err := s.engine.ReportExternalResult(sess, result)
		if err != nil {
			slog.Error("Server.applyCompletion: failed to report event result", "error", err, "session", sess.ID)
			return nil
		}
		return []models.Turn{turn}

	case models.FlowTypeCheckin:
		rec := models.CheckinRecord{
			ID:          util.GenerateCheckinID(),
			EventID:     comp.Checkin.EventID,
			MemberRef:   sess.ID,
			CheckedInAt: time.Now(),
		}
		result := models.ExternalResultSuccess
		if err := s.st.AddCheckin(rec); err != nil {
			slog.Error("Server.applyCompletion: failed to record check-in", "error", err, "session", sess.ID)
			result = models.ExternalResultGenericFailure
		} else {
			slog.Info("Server.applyCompletion: check-in recorded", "event", rec.EventID, "session", sess.ID)
		}
		turn, err := s.engine.ReportExternalResult(sess, result)
		if err != nil {
			slog.Error("Server.applyCompletion: failed to report check-in result", "error", err, "session", sess.ID)
			return nil
		}
		return []models.Turn{turn}
	}
	return nil
}

func (s *Server) progressHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	slog.Debug("Server.progressHandler: processing request", "session", sessionID)
	sess, ok := s.loadSession(w, sessionID)
	if !ok {
		return
	}
	progress, err := s.engine.Progress(sess)
	if err != nil {
		slog.Error("Server.progressHandler: failed to compute progress", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute progress"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(progress))
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	slog.Debug("Server.resetHandler: processing request", "session", sessionID)
	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, ok := s.loadSession(w, sessionID)
	if !ok {
		return
	}
	if err := s.engine.Reset(sess); err != nil {
		slog.Error("Server.resetHandler: failed to reset session", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset session"))
		return
	}
	if err := s.st.SaveSession(sess); err != nil {
		slog.Error("Server.resetHandler: failed to save session", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessionResult{
		SessionID: sess.ID,
		Turns:     []models.Turn{sess.Transcript[len(sess.Transcript)-1]},
	}))
}

func (s *Server) backHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.backHandler: processing request", "session", sessionID)
	var req backRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.backHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, ok := s.loadSession(w, sessionID)
	if !ok {
		return
	}
	turn, err := s.engine.GoBackToStep(sess, req.Step, req.PriorValue)
	if err != nil {
		if errors.Is(err, models.ErrUnknownStep) {
			slog.Warn("Server.backHandler: unknown step", "session", sessionID, "step", req.Step)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown step for flow"))
			return
		}
		slog.Error("Server.backHandler: failed to go back", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to go back"))
		return
	}
	if err := s.st.SaveSession(sess); err != nil {
		slog.Error("Server.backHandler: failed to save session", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessionResult{
		SessionID: sess.ID,
		Turns:     []models.Turn{turn},
	}))
}

func (s *Server) resultHandler(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.resultHandler: processing request", "session", sessionID)
	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.resultHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidExternalResult(req.Result) {
		slog.Warn("Server.resultHandler: invalid external result", "session", sessionID, "result", req.Result)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid external result"))
		return
	}

	unlock := s.lockSession(sessionID)
	defer unlock()

	sess, ok := s.loadSession(w, sessionID)
	if !ok {
		return
	}
	turn, err := s.engine.ReportExternalResult(sess, req.Result)
	if err != nil {
		slog.Error("Server.resultHandler: failed to report result", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to report result"))
		return
	}
	if err := s.st.SaveSession(sess); err != nil {
		slog.Error("Server.resultHandler: failed to save session", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sessionResult{
		SessionID: sess.ID,
		Turns:     []models.Turn{turn},
		Completed: sess.Completed,
	}))
}

// eventsHandler handles POST /events and GET /events.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.eventsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodPost:
		var p models.EventPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			slog.Warn("Server.eventsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := p.Validate(); err != nil {
			slog.Warn("Server.eventsHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		ev := eventFromPayload(&p)
		if err := s.st.SaveEvent(ev); err != nil {
			slog.Error("Server.eventsHandler: failed to save event", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save event"))
			return
		}
		slog.Info("Server.eventsHandler: event created", "event", ev.ID, "title", ev.Title)
		writeJSONResponse(w, http.StatusCreated, models.Created(ev))

	case http.MethodGet:
		category := r.URL.Query().Get("category")
		events, err := s.st.ListEvents(category)
		if err != nil {
			slog.Error("Server.eventsHandler: failed to list events", "error", err, "category", category)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list events"))
			return
		}
		slog.Debug("Server.eventsHandler: events listed", "count", len(events), "category", category)
		writeJSONResponse(w, http.StatusOK, models.Success(events))

	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.eventsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) getEventHandler(w http.ResponseWriter, r *http.Request, eventID string) {
	slog.Debug("Server.getEventHandler: processing request", "event", eventID)
	ev, err := s.st.GetEvent(eventID)
	if err != nil {
		slog.Error("Server.getEventHandler: failed to get event", "error", err, "event", eventID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get event"))
		return
	}
	if ev == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Event not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ev))
}

// createCheckinRequest is the body of POST /events/{id}/checkins.
type createCheckinRequest struct {
	MemberRef string `json:"member_ref"`
}

func (s *Server) createCheckinHandler(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createCheckinHandler: processing request", "event", eventID)
	var req createCheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createCheckinHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	ev, err := s.st.GetEvent(eventID)
	if err != nil {
		slog.Error("Server.createCheckinHandler: failed to get event", "error", err, "event", eventID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get event"))
		return
	}
	if ev == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Event not found"))
		return
	}
	rec := models.CheckinRecord{
		ID:          util.GenerateCheckinID(),
		EventID:     eventID,
		MemberRef:   req.MemberRef,
		CheckedInAt: time.Now(),
	}
	if err := s.st.AddCheckin(rec); err != nil {
		slog.Error("Server.createCheckinHandler: failed to record check-in", "error", err, "event", eventID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record check-in"))
		return
	}
	slog.Info("Server.createCheckinHandler: check-in recorded", "event", eventID, "member", req.MemberRef)
	writeJSONResponse(w, http.StatusCreated, models.Created(rec))
}

func (s *Server) listCheckinsHandler(w http.ResponseWriter, r *http.Request, eventID string) {
	slog.Debug("Server.listCheckinsHandler: processing request", "event", eventID)
	records, err := s.st.GetCheckins(eventID)
	if err != nil {
		slog.Error("Server.listCheckinsHandler: failed to list check-ins", "error", err, "event", eventID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list check-ins"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(records))
}

// loadSession fetches a session, writing a 404 response when it is missing.
func (s *Server) loadSession(w http.ResponseWriter, sessionID string) (*models.Session, bool) {
	sess, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("Server.loadSession: failed to get session", "error", err, "session", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get session"))
		return nil, false
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return nil, false
	}
	return sess, true
}

// eventFromPayload converts a validated completion payload into a stored
// event record with a fresh id.
func eventFromPayload(p *models.EventPayload) models.Event {
	return p.ToEvent(util.GenerateEventID())
}
