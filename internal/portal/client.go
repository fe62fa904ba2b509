package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/model"
	"github.com/stemsi/exstem-exam-client/internal/response"
)

const apiPrefix = "/api/v1"

// Client talks to the portal's student exam endpoints over REST+JSON.
// It serves as both the exam catalog and the submission service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client. baseURL is the portal root, e.g. https://portal.example.edu.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "portal_client").Logger(),
	}
}

// FetchExam downloads the exam paper.
// GET /api/v1/student/exams/:exam_id/paper
func (c *Client) FetchExam(ctx context.Context, examID string) (*model.ExamDefinition, error) {
	var payload model.ExamPayload
	if err := c.do(ctx, http.MethodGet, examPath(examID, "paper"), nil, &payload); err != nil {
		return nil, err
	}
	if payload.ExamID == "" {
		payload.ExamID = examID
	}
	return payload.Definition()
}

// SubmitExam sends the full ordered answer slate.
// POST /api/v1/student/exams/:exam_id/submit
func (c *Client) SubmitExam(ctx context.Context, examID string, answers []model.Answer) (*model.SessionResult, error) {
	var result model.SessionResult
	body := model.SubmitExamRequest{Answers: answers}
	if err := c.do(ctx, http.MethodPost, examPath(examID, "submit"), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func examPath(examID, action string) string {
	return fmt.Sprintf("%s/student/exams/%s/%s", apiPrefix, url.PathEscape(examID), action)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	reqID := uuid.New().String()
	req.Header.Set(response.HeaderRequestID, reqID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Portal request")

	var bodyReader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		bodyReader = brotli.NewReader(resp.Body)
	}

	var env response.Envelope
	decodeErr := json.NewDecoder(bodyReader).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: reqID}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
