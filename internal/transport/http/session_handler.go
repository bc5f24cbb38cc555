package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// SessionHandler exposes the REST side of the gateway: session creation from
// a quiz definition and on-demand leaderboard reads.
type SessionHandler struct {
	service *app.SessionService
}

func NewSessionHandler(service *app.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type createSessionRequest struct {
	QuizID string                `json:"quizId"`
	Config *domain.SessionConfig `json:"config,omitempty"`
}

type createSessionResponse struct {
	JoinCode string `json:"joinCode"`
	QuizID   string `json:"quizId"`
}

// Create handles POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.service.Create(r.Context(), req.QuizID, req.Config)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			http.Error(w, "quiz not found", http.StatusNotFound)
			return
		}
		log.Printf("create session for quiz %s: %v", req.QuizID, err)
		http.Error(w, "could not create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(createSessionResponse{
		JoinCode: session.JoinCode(),
		QuizID:   session.QuizID(),
	})
}

// Leaderboard handles GET /leaderboard?code=.
func (h *SessionHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	session, err := h.service.Session(code)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session.Leaderboard())
}
