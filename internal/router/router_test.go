package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/auth"
	"github.com/stemsi/exstem-exam-client/internal/config"
	"github.com/stemsi/exstem-exam-client/internal/handler"
	"github.com/stemsi/exstem-exam-client/internal/middleware"
	"github.com/stemsi/exstem-exam-client/internal/model"
	"github.com/stemsi/exstem-exam-client/internal/response"
	"github.com/stemsi/exstem-exam-client/internal/service"
)

const testSecret = "router-test-secret"

type fixture struct {
	engine *gin.Engine
	tokens *auth.TokenService
}

func newFixture(t *testing.T, limiter *middleware.RateLimiter) *fixture {
	t.Helper()
	log := zerolog.Nop()

	catalog := service.NewExamCatalogService(log)
	err := catalog.Publish(service.ExamSeed{
		ExamID:          "alg-1",
		Title:           "Algebra",
		DurationMinutes: 1,
		Questions: []service.QuestionSeed{
			{QuestionText: "1+1", Options: []string{"1", "2", "3", "4"}, CorrectOption: 1},
			{QuestionText: "2*0", Options: []string{"0", "1", "2", "3"}, CorrectOption: 0},
			{QuestionText: "9/3", Options: []string{"1", "2", "3", "4"}, CorrectOption: 2},
		},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	cfg := &config.Config{GinMode: gin.TestMode}
	tokens := auth.NewTokenService(testSecret, time.Hour)
	engine := SetupRouter(tokens, &Handlers{
		StudentExam:   handler.NewStudentExamHandler(catalog),
		WS:            handler.NewWSHandler(catalog, log, nil),
		SubmitLimiter: limiter,
	}, cfg)
	return &fixture{engine: engine, tokens: tokens}
}

func (f *fixture) token(t *testing.T, studentID int) string {
	t.Helper()
	tok, err := f.tokens.IssueStudentToken(studentID, 1)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, w.Body.String())
	}
	return env
}

func slate(options ...int) model.SubmitExamRequest {
	req := model.SubmitExamRequest{Answers: make([]model.Answer, len(options))}
	for i, o := range options {
		req.Answers[i] = model.Answer{QuestionIndex: i, SelectedOption: o}
	}
	return req
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get(response.HeaderRequestID) == "" {
		t.Error("missing request id header")
	}
}

func TestGetExamPaper(t *testing.T) {
	f := newFixture(t, nil)
	tok := f.token(t, 7)

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
		wantErr  response.ErrCode
	}{
		{"ok", "/api/v1/student/exams/alg-1/paper", tok, http.StatusOK, ""},
		{"no token", "/api/v1/student/exams/alg-1/paper", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"bad token", "/api/v1/student/exams/alg-1/paper", "garbage", http.StatusUnauthorized, response.ErrTokenInvalid},
		{"unknown exam", "/api/v1/student/exams/nope/paper", tok, http.StatusNotFound, response.ErrExamNotAvailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodGet, tc.path, tc.token, nil)
			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.wantCode, w.Body.String())
			}
			env := decodeEnvelope(t, w)
			if tc.wantErr != "" {
				if env.Error == nil || env.Error.Code != tc.wantErr {
					t.Fatalf("error = %+v, want %s", env.Error, tc.wantErr)
				}
				return
			}

			var paper model.ExamPayload
			if err := json.Unmarshal(env.Data, &paper); err != nil {
				t.Fatalf("decode paper: %v", err)
			}
			if paper.ExamID != "alg-1" || paper.Duration != 1 || len(paper.Questions) != 3 {
				t.Errorf("paper = %+v", paper)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "private, max-age=60" {
				t.Errorf("Cache-Control = %q", cc)
			}
			if strings.Contains(string(env.Data), "correct") {
				t.Error("paper leaks the answer key")
			}
		})
	}
}

func TestSubmitExam(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name      string
		studentID int
		body      interface{}
		wantCode  int
		wantErr   response.ErrCode
		wantScore int
	}{
		{"all correct", 1, slate(1, 0, 2), http.StatusOK, "", 3},
		{"partial", 2, slate(1, -1, -1), http.StatusOK, "", 1},
		{"repeat returns first result", 2, slate(1, 0, 2), http.StatusOK, "", 1},
		{"wrong count", 3, slate(1, 0), http.StatusBadRequest, response.ErrAnswerCountInvalid, 0},
		{"option out of range", 4, slate(1, 0, 9), http.StatusBadRequest, response.ErrValidation, 0},
		{"missing answers", 5, gin.H{}, http.StatusBadRequest, response.ErrValidation, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/student/exams/alg-1/submit", f.token(t, tc.studentID), tc.body)
			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.wantCode, w.Body.String())
			}
			env := decodeEnvelope(t, w)
			if tc.wantErr != "" {
				if env.Error == nil || env.Error.Code != tc.wantErr {
					t.Fatalf("error = %+v, want %s", env.Error, tc.wantErr)
				}
				return
			}

			var res model.SessionResult
			if err := json.Unmarshal(env.Data, &res); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "private, no-store" {
				t.Errorf("Cache-Control = %q", cc)
			}
			if res.Score != tc.wantScore || res.MaxScore != 3 {
				t.Errorf("result = %+v, want score %d/3", res, tc.wantScore)
			}
		})
	}
}

func TestSubmitValidationFieldsAreTranslated(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/api/v1/student/exams/alg-1/submit", f.token(t, 9), slate(1, 0, 4))
	env := decodeEnvelope(t, w)
	if env.Error == nil || len(env.Error.Fields) == 0 {
		t.Fatalf("expected field errors, got %+v", env.Error)
	}
	for field, msg := range env.Error.Fields {
		if field != "selected_option" {
			t.Errorf("field = %q, want selected_option", field)
		}
		if !strings.Contains(msg, "unanswered") {
			t.Errorf("message = %q, want translated answer_option message", msg)
		}
	}
}

func TestSubmitRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(2, time.Minute, middleware.ByStudent)
	t.Cleanup(limiter.Close)
	f := newFixture(t, limiter)

	tok := f.token(t, 11)
	for i := 0; i < 2; i++ {
		if w := f.do(http.MethodPost, "/api/v1/student/exams/alg-1/submit", tok, slate(1, 0, 2)); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	w := f.do(http.MethodPost, "/api/v1/student/exams/alg-1/submit", tok, slate(1, 0, 2))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	// Another student has its own bucket.
	if w := f.do(http.MethodPost, "/api/v1/student/exams/alg-1/submit", f.token(t, 12), slate(1, 0, 2)); w.Code != http.StatusOK {
		t.Fatalf("other student: status = %d", w.Code)
	}
}

func TestBrotliOnlyAboveThreshold(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	if enc := w.Header().Get("Content-Encoding"); enc != "" {
		t.Errorf("small body encoded as %q", enc)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/student/exams/alg-1/submit",
		bytes.NewReader(bytes.Repeat([]byte("x"), 10)))
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Authorization", "Bearer "+f.token(t, 13))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if enc := w.Header().Get("Content-Encoding"); enc != "" {
		t.Errorf("short error body encoded as %q", enc)
	}
}
