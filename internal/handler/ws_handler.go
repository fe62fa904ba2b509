package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/middleware"
	"github.com/stemsi/exstem-exam-client/internal/response"
	"github.com/stemsi/exstem-exam-client/internal/service"
	ws "github.com/stemsi/exstem-exam-client/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// WSHandler handles the exam stream.
type WSHandler struct {
	catalog  *service.ExamCatalogService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(catalog *service.ExamCatalogService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		catalog:  catalog,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Accepts submit and ping actions.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID := c.Param("exam_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.UserID).
		Str("exam_id", examID).
		Logger()
	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, examID, claims.UserID, &msg)
		case ws.ActionPing:
			_ = ws.WriteJSON(conn, ws.ResponsePayload{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			_ = ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleSubmit grades the slate carried in the frame.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, examID string, studentID int, msg *ws.RequestPayload) {
	result, err := h.catalog.Grade(examID, studentID, msg.Answers)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Grading failed")
		_ = ws.WriteError(conn, err.Error())
		return
	}

	_ = ws.WriteJSON(conn, ws.ResponsePayload{
		Event:    ws.EventGraded,
		Status:   "completed",
		Score:    result.Score,
		MaxScore: result.MaxScore,
	})
}
