package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// WSHandler is the broadcast gateway: it upgrades client sockets, routes
// inbound frames to the session coordinator, and relays the coordinator's
// event stream back out. One broadcast group exists per join code; the
// instructor connection additionally receives instructor-only events.
type WSHandler struct {
	service  *app.SessionService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	Source     string `json:"source"`
}

type violationPayload struct {
	Violation domain.ViolationType `json:"violation"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type joinedPayload struct {
	JoinCode    string `json:"joinCode"`
	Participant string `json:"participantId"`
	Nickname    string `json:"nickname"`
}

type violationNotice struct {
	Violation domain.ViolationType   `json:"violation"`
	Action    domain.ViolationAction `json:"action"`
	Total     int                    `json:"total"`
}

// ServeWS upgrades the request and wires the socket into its session's
// broadcast group. Participants connect with ?code=&userId=&name=;
// the instructor connects with ?code=&role=instructor.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("userId")
	name := r.URL.Query().Get("name")
	instructor := r.URL.Query().Get("role") == "instructor"
	if code == "" || (!instructor && (userID == "" || name == "")) {
		http.Error(w, "missing code, userId, or name", http.StatusBadRequest)
		return
	}

	session, err := h.service.Session(code)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if !instructor {
		participant, err := session.Join(userID, name)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		name = participant.Nickname // rejoin keeps the original nickname
		defer session.Leave(userID)
	}

	events, cancel := session.Subscribe(instructor)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		JoinCode:    code,
		Participant: userID,
		Nickname:    name,
	}}
	// Catch up a late joiner or reconnection on the in-flight question.
	if current, ok := session.CurrentQuestion(); ok {
		send <- outboundMessage[any]{Type: app.EventQuestionStarted, Payload: current}
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			// One bad client must not take the session down; drop the frame.
			log.Printf("dropping malformed frame on session %s: %v", code, err)
			continue
		}
		h.dispatch(r, session, send, inbound, userID, instructor)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, session *app.Session, send chan outboundMessage[any], inbound inboundMessage, userID string, instructor bool) {
	fail := func(err error) {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}

	switch inbound.Type {
	case "answer_submit":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			log.Printf("dropping malformed answer payload: %v", err)
			return
		}
		result, err := session.Submit(r.Context(), userID, domain.AnswerSubmission{
			QuestionID: payload.QuestionID,
			Answer:     payload.Answer,
			Source:     payload.Source,
		})
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "answer_result", Payload: result}

	case "violation_report":
		var payload violationPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			log.Printf("dropping malformed violation payload: %v", err)
			return
		}
		decision, err := session.ReportViolation(userID, payload.Violation)
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "violation_notice", Payload: violationNotice{
			Violation: payload.Violation,
			Action:    decision.Action,
			Total:     decision.Total,
		}}
		if decision.Action == domain.ActionShuffle {
			if reissued, ok := session.ShuffledCurrentQuestion(); ok {
				send <- outboundMessage[any]{Type: app.EventQuestionStarted, Payload: reissued}
			}
		}

	case "heartbeat":
		if !instructor {
			_ = session.Heartbeat(userID)
		}

	case "start_session", "next_question", "end_question", "pause_session", "resume_session":
		if !instructor {
			fail(domain.ErrInvalidState)
			return
		}
		var err error
		switch inbound.Type {
		case "start_session":
			err = session.Start()
		case "next_question":
			err = session.Advance()
		case "end_question":
			err = session.EndQuestion()
		case "pause_session":
			err = session.Pause()
		case "resume_session":
			err = session.Resume()
		}
		if err != nil {
			fail(err)
		}

	default:
		log.Printf("dropping frame with unknown type %q", inbound.Type)
	}
}
