package consultation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/medrex/teleconsult/internal/auth"
	"github.com/medrex/teleconsult/internal/session"
	"github.com/medrex/teleconsult/pkg/monitoring"
	"github.com/medrex/teleconsult/pkg/types"
)

// setupRoutes configures HTTP routes for the consultation service
func (s *Service) setupRoutes(router *mux.Router) {
	router.Use(monitoring.NewMonitoringMiddleware(s.metrics, s.tracing, s.logger).HTTPMiddleware)

	router.HandleFunc(s.config.Monitoring.HealthPath, s.health.HTTPHandler()).Methods("GET")
	router.Handle(s.config.Monitoring.MetricsPath, s.metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.auth.Authenticate, s.auth.RateLimit)

	// Threads
	api.HandleFunc("/threads", s.listThreadsHandler).Methods("GET")
	api.HandleFunc("/threads/watch", s.unwatchThreadHandler).Methods("DELETE")
	api.HandleFunc("/threads/send/{recipientId}", s.sendMessageHandler).Methods("POST")
	api.HandleFunc("/threads/{threadId}/messages", s.getMessagesHandler).Methods("GET")
	api.HandleFunc("/threads/{threadId}/watch", s.watchThreadHandler).Methods("POST")

	// Session
	api.HandleFunc("/session/restore", s.restoreSessionHandler).Methods("GET")
	api.HandleFunc("/session", s.closeSessionHandler).Methods("DELETE")

	// Consultations
	api.HandleFunc("/consultations", s.createConsultationHandler).Methods("POST")
	api.HandleFunc("/consultations/{id}", s.getConsultationHandler).Methods("GET")
	api.HandleFunc("/consultations/{id}/confirm", s.confirmConsultationHandler).Methods("POST")
	api.HandleFunc("/consultations/{id}/cancel", s.cancelConsultationHandler).Methods("POST")
	api.HandleFunc("/consultations/{id}/join", s.joinConsultationHandler).Methods("GET")
	api.HandleFunc("/patients/{id}/consultations", s.patientConsultationsHandler).Methods("GET")
	api.HandleFunc("/doctors/{id}/consultations", s.doctorConsultationsHandler).Methods("GET")

	// Booking
	api.HandleFunc("/doctors/{doctorId}/slots", s.slotsHandler).Methods("GET")
	api.HandleFunc("/bookings", s.bookHandler).Methods("POST")

	s.logger.Info("Consultation service routes configured")
}

// requestSession returns the caller's claims and session, opening it on first use
func (s *Service) requestSession(r *http.Request) (*types.UserClaims, *session.Session, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return nil, nil, false
	}
	return claims, s.sessions.Open(claims.UserID, claims.Token), true
}

func scopeOf(claims *types.UserClaims, sess *session.Session) Scope {
	return Scope{
		Actor:   types.ActorFromClaims(claims),
		Threads: sess.Threads(),
		Notices: sess.Notices(),
	}
}

// listThreadsHandler refreshes and returns the caller's threads
func (s *Service) listThreadsHandler(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	threads, err := sess.Threads().ListThreads(r.Context())
	if err != nil {
		s.writeError(w, "Failed to list threads", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, threads)
}

// getMessagesHandler returns a thread's history. A watched thread is served from
// the poller's last fetch; any other thread is fetched upstream.
func (s *Service) getMessagesHandler(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	threadID := mux.Vars(r)["threadId"]
	if watched, ok := sess.Watching(); ok && watched == threadID {
		if msgs, ok := sess.Threads().CachedMessages(threadID); ok {
			s.writeJSONResponse(w, http.StatusOK, msgs)
			return
		}
	}

	msgs, err := sess.Threads().GetMessages(r.Context(), threadID)
	if err != nil {
		s.writeError(w, "Failed to get messages", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, msgs)
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// sendMessageHandler posts a message to a recipient
func (s *Service) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	var body sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	msg, err := sess.Threads().SendMessage(r.Context(), mux.Vars(r)["recipientId"], body.Message)
	if err != nil {
		s.writeError(w, "Failed to send message", err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, msg)
}

type watchRequest struct {
	DoctorID string `json:"doctor_id,omitempty"`
}

// watchThreadHandler selects a thread and starts polling it
func (s *Service) watchThreadHandler(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	var body watchRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	threadID := mux.Vars(r)["threadId"]
	msgs, err := sess.Select(r.Context(), threadID, body.DoctorID)
	if err != nil {
		s.writeError(w, "Failed to open thread", err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"thread_id":        threadID,
		"messages":         msgs,
		"poll_interval_ms": sess.Sync().Interval().Milliseconds(),
	})
}

// unwatchThreadHandler stops polling the viewed thread
func (s *Service) unwatchThreadHandler(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}
	sess.Unwatch()
	w.WriteHeader(http.StatusNoContent)
}

// restoreSessionHandler reopens the thread selected before a reload
func (s *Service) restoreSessionHandler(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	restored, err := sess.Restore(r.Context())
	if err != nil {
		s.writeError(w, "Failed to restore session", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, restored)
}

// closeSessionHandler tears the caller's session down. ?forget=true also clears the stored selection.
func (s *Service) closeSessionHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	if forget, _ := strconv.ParseBool(r.URL.Query().Get("forget")); forget {
		if sess, ok := s.sessions.Get(claims.UserID); ok {
			if err := sess.Forget(r.Context()); err != nil {
				s.writeError(w, "Failed to clear session", err)
				return
			}
		}
	}

	s.sessions.Close(claims.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// createConsultationHandler records a patient's ask for a video consultation
func (s *Service) createConsultationHandler(w http.ResponseWriter, r *http.Request) {
	claims, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	var body types.CreateConsultationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.PatientID == "" && claims.Role == types.RolePatient {
		body.PatientID = claims.UserID
	}

	req, err := s.machine.Create(r.Context(), scopeOf(claims, sess), &body)
	if err != nil {
		s.writeError(w, "Failed to create consultation request", err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, req)
}

// getConsultationHandler returns one request
func (s *Service) getConsultationHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	req, err := s.machine.Get(r.Context(), types.ActorFromClaims(claims), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, "Failed to get consultation request", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, req)
}

// confirmConsultationHandler confirms a pending request
func (s *Service) confirmConsultationHandler(w http.ResponseWriter, r *http.Request) {
	claims, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	result, err := s.machine.Confirm(r.Context(), scopeOf(claims, sess), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, "Failed to confirm consultation request", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, result)
}

// cancelConsultationHandler declines a pending request
func (s *Service) cancelConsultationHandler(w http.ResponseWriter, r *http.Request) {
	claims, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	req, notifyErrors, err := s.machine.Cancel(r.Context(), scopeOf(claims, sess), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, "Failed to cancel consultation request", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"request":       req,
		"notify_errors": notifyErrors,
	})
}

// joinConsultationHandler returns the meeting route for the caller
func (s *Service) joinConsultationHandler(w http.ResponseWriter, r *http.Request) {
	claims, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	role := types.ParticipantRole(r.URL.Query().Get("role"))
	if role == "" {
		role = types.ParticipantPatient
		if claims.Role == types.RoleDoctor {
			role = types.ParticipantDoctor
		}
	}

	result, err := s.machine.Join(r.Context(), scopeOf(claims, sess), mux.Vars(r)["id"], role)
	if err != nil {
		s.writeError(w, "Failed to join consultation", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, result)
}

// patientConsultationsHandler lists a patient's requests
func (s *Service) patientConsultationsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	reqs, err := s.machine.ListForPatient(r.Context(), types.ActorFromClaims(claims), mux.Vars(r)["id"], parseFilters(r))
	if err != nil {
		s.writeError(w, "Failed to list consultations", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, reqs)
}

// doctorConsultationsHandler lists the requests addressed to a doctor
func (s *Service) doctorConsultationsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	reqs, err := s.machine.ListForDoctor(r.Context(), types.ActorFromClaims(claims), mux.Vars(r)["id"], parseFilters(r))
	if err != nil {
		s.writeError(w, "Failed to list consultations", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, reqs)
}

// slotsHandler lists a doctor's slots for ?date=YYYY-MM-DD
func (s *Service) slotsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	slots, err := s.booker.Slots(r.Context(), claims.Token, mux.Vars(r)["doctorId"], r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, "Failed to check availability", err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, slots)
}

// bookHandler branches a booking intent into a video request or a slot booking
func (s *Service) bookHandler(w http.ResponseWriter, r *http.Request) {
	claims, sess, ok := s.requestSession(r)
	if !ok {
		s.writeErrorResponse(w, http.StatusUnauthorized, "Unauthenticated", nil)
		return
	}

	var intent types.ConsultationIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	outcome, err := s.booker.Book(r.Context(), scopeOf(claims, sess), claims.Token, &intent)
	if err != nil {
		s.writeError(w, "Failed to book", err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, outcome)
}

// parseFilters parses query parameters into consultation filters
func parseFilters(r *http.Request) types.ConsultationFilters {
	q := r.URL.Query()
	filters := types.ConsultationFilters{}

	if status := types.ConsultationStatus(q.Get("status")); status.Valid() {
		filters.Status = status
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filters.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filters.Offset = offset
	}
	return filters
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	switch types.TypeOf(err) {
	case types.ErrorTypeValidation:
		return http.StatusBadRequest
	case types.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case types.ErrorTypeAuthorization:
		return http.StatusForbidden
	case types.ErrorTypeNotFound:
		return http.StatusNotFound
	case types.ErrorTypeStateConflict:
		return http.StatusConflict
	case types.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case types.ErrorTypeNetwork, types.ErrorTypeProvisioning, types.ErrorTypeMeetingInvalid:
		return http.StatusBadGateway
	case types.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeJSONResponse writes a JSON response
func (s *Service) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes err with the status its type maps to
func (s *Service) writeError(w http.ResponseWriter, message string, err error) {
	s.writeErrorResponse(w, statusFor(err), message, err)
}

// writeErrorResponse writes an error response
func (s *Service) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	entry := s.logger.WithField("status", statusCode)
	if err != nil {
		entry = entry.WithError(err)
	}
	if statusCode >= 500 {
		entry.Error(message)
	} else {
		entry.Warn(message)
	}

	response := map[string]interface{}{
		"error":  message,
		"status": statusCode,
	}

	var me *types.MedrexError
	if errors.As(err, &me) {
		response["code"] = me.Code
		response["details"] = me.Message
		if len(me.Details) > 0 {
			response["context"] = me.Details
		}
	} else if err != nil {
		response["details"] = err.Error()
	}

	s.writeJSONResponse(w, statusCode, response)
}
