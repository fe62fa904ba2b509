package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/model"
	"github.com/stemsi/exstem-exam-client/internal/response"
	ws "github.com/stemsi/exstem-exam-client/internal/websocket"
)

// WSSubmitter submits over the portal's exam stream instead of REST.
type WSSubmitter struct {
	baseURL string
	token   string
	timeout time.Duration
	dialer  *websocket.Dialer
	log     zerolog.Logger
}

// NewWSSubmitter creates a WSSubmitter. baseURL uses http(s); it is mapped to ws(s).
func NewWSSubmitter(baseURL, token string, timeout time.Duration, log zerolog.Logger) *WSSubmitter {
	return &WSSubmitter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
		log:     log.With().Str("component", "ws_submitter").Logger(),
	}
}

// SubmitExam sends a submit action and waits for the graded event.
// WS /ws/v1/student/exams/:exam_id/stream?token=...
func (s *WSSubmitter) SubmitExam(ctx context.Context, examID string, answers []model.Answer) (*model.SessionResult, error) {
	streamURL, err := s.streamURL(examID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(response.HeaderRequestID, uuid.New().String())
	conn, resp, err := s.dialer.DialContext(ctx, streamURL, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, fmt.Errorf("dial exam stream: %w", err)
	}
	defer conn.Close()

	if err := ws.WriteJSON(conn, ws.RequestPayload{Action: ws.ActionSubmit, Answers: answers}); err != nil {
		return nil, fmt.Errorf("send submit: %w", err)
	}

	for {
		var frame ws.ResponsePayload
		if err := ws.ReadJSONWithin(conn, &frame, s.timeout); err != nil {
			return nil, fmt.Errorf("read exam stream: %w", err)
		}

		switch frame.Event {
		case ws.EventGraded:
			s.log.Debug().Str("exam_id", examID).Int("score", frame.Score).Msg("Graded over websocket")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return &model.SessionResult{Score: frame.Score, MaxScore: frame.MaxScore}, nil
		case ws.EventError:
			return nil, errors.New("exam stream: " + frame.Error)
		default:
			s.log.Debug().Str("event", string(frame.Event)).Msg("Ignoring stream event")
		}
	}
}

func (s *WSSubmitter) streamURL(examID string) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse portal URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/v1/student/exams/" + examID + "/stream"
	u.RawPath = ""
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
