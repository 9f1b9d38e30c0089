package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/testlink-backend/internal/model"
	"github.com/stemsi/testlink-backend/internal/response"
	ws "github.com/stemsi/testlink-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams attempt events and accepts attempt actions over a
// WebSocket.
type WSHandler struct {
	attempts AttemptRunner
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts AttemptRunner, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:id/stream?token=...
// Pushes tick, answer, navigate, flag and completed events. Clients may send
// answer, navigate, flag, submit, state and ping actions.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// Subscribe before upgrading so a completed or unknown attempt gets a
	// normal HTTP error.
	events, unsubscribe, err := h.attempts.Subscribe(c.Request.Context(), attemptID)
	if err != nil {
		failWith(c, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("attempt_id", attemptID.String()).Logger()
	wsLog.Info().Msg("Student connected")

	w := ws.NewWriter(conn)
	ctx := context.Background()

	if view, err := h.attempts.State(ctx, attemptID); err == nil {
		_ = w.JSON(ws.EventState, view)
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for e := range events {
			if err := w.Typed(e); err != nil {
				wsLog.Debug().Err(err).Msg("Event write failed")
				return
			}
		}
		// Stream closed: the attempt completed or the server is stopping.
		w.Close(websocket.CloseNormalClosure, "stream closed")
		conn.Close()
	}()

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.handleAction(ctx, w, wsLog, attemptID, msg)
	}

	unsubscribe()
	<-pumpDone
}

// handleAction applies one client message. State changes reach the client
// through the event stream; only failures and queries are answered directly.
func (h *WSHandler) handleAction(ctx context.Context, w *ws.Writer, log zerolog.Logger, attemptID uuid.UUID, msg ws.RequestPayload) {
	var err error
	switch msg.Action {
	case ws.ActionPing:
		_ = w.JSON(ws.EventPong, nil)
		return

	case ws.ActionState:
		view, serr := h.attempts.State(ctx, attemptID)
		if serr == nil {
			_ = w.JSON(ws.EventState, view)
			return
		}
		err = serr

	case ws.ActionAnswer:
		questionID, perr := uuid.Parse(msg.QuestionID)
		if perr != nil {
			_ = w.Error(string(response.ErrInvalidID), "invalid question_id format")
			return
		}
		_, err = h.attempts.Answer(ctx, attemptID, questionID, msg.Answer)

	case ws.ActionFlag:
		questionID, perr := uuid.Parse(msg.QuestionID)
		if perr != nil {
			_ = w.Error(string(response.ErrInvalidID), "invalid question_id format")
			return
		}
		_, err = h.attempts.ToggleFlag(ctx, attemptID, questionID)

	case ws.ActionNavigate:
		req := model.NavigateRequest{Action: model.NavigateAction(msg.Direction), Index: msg.Index}
		switch req.Action {
		case model.NavigateNext, model.NavigatePrev, model.NavigateGoTo:
			_, err = h.attempts.Navigate(ctx, attemptID, req)
		default:
			_ = w.Error(string(response.ErrInvalidPayload), "direction must be next, prev or goto")
			return
		}

	case ws.ActionSubmit:
		_, err = h.attempts.Submit(ctx, attemptID)

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = w.Error(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return
	}

	if err != nil {
		_, code, _ := classify(err)
		if code == response.ErrInternal {
			log.Error().Err(err).Str("action", string(msg.Action)).Msg("Action failed")
		}
		_ = w.Error(string(code), response.GetMessage(code))
	}
}
