// Package lessonapi is a client for the remote lesson generation API.
package lessonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/verte-zerg/arcade/internal/logger"
)

// DefaultTimeout bounds every API call.
const DefaultTimeout = 30 * time.Second

// Config describes how to reach the lesson API.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client calls the lesson API with a bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// New builds a client. An empty token sends unauthenticated requests, which the
// API answers with 401.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("lesson api url is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{}
	if cfg.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	httpClient.Timeout = timeout
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		log:        log.With("client", "LessonAPI"),
	}, nil
}

// RemainingCalls is the server-side quota. Older servers send a bare integer for
// the generate count.
type RemainingCalls struct {
	Generate int `json:"generate"`
	Submit   int `json:"submit"`
}

// UnmarshalJSON accepts an object or a bare generate count.
func (r *RemainingCalls) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '{' {
		r.Submit = 0
		return json.Unmarshal(data, &r.Generate)
	}
	type plain RemainingCalls
	return json.Unmarshal(data, (*plain)(r))
}

// GenerateRequest asks for a new class plan.
type GenerateRequest struct {
	StudentLevel string   `json:"student_level"`
	SkillFocus   string   `json:"skill_focus"`
	Teacher      string   `json:"teacher"`
	Reason       string   `json:"reason"`
	Age          int      `json:"age"`
	ModuleLesson int      `json:"module_lesson"`
	UsedPhrases  []string `json:"used_phrases"`
	UsedVocab    []string `json:"used_vocab"`
}

// GenerateResponse carries the generated class plan in markdown.
type GenerateResponse struct {
	ClassPlan      string         `json:"class_plan"`
	Badge          string         `json:"badge"`
	RemainingCalls RemainingCalls `json:"remaining_calls"`
}

// AnswerRequest submits an answer for grading.
type AnswerRequest struct {
	Answer       string `json:"answer"`
	ClassPlan    string `json:"class_plan"`
	StudentLevel string `json:"student_level"`
	SkillFocus   string `json:"skill_focus"`
	Reason       string `json:"reason"`
}

// AnswerResponse carries the grading feedback.
type AnswerResponse struct {
	Feedback       string         `json:"feedback"`
	RemainingCalls RemainingCalls `json:"remaining_calls"`
}

type remainingResponse struct {
	RemainingCalls RemainingCalls `json:"remaining_calls"`
}

// GenerateClass calls POST /generate-class.
func (c *Client) GenerateClass(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	if req.UsedPhrases == nil {
		req.UsedPhrases = []string{}
	}
	if req.UsedVocab == nil {
		req.UsedVocab = []string{}
	}
	var resp GenerateResponse
	if err := c.do(ctx, http.MethodPost, "/generate-class", req, &resp); err != nil {
		return GenerateResponse{}, err
	}
	return resp, nil
}

// SubmitAnswer calls POST /submit-answer.
func (c *Client) SubmitAnswer(ctx context.Context, req AnswerRequest) (AnswerResponse, error) {
	var resp AnswerResponse
	if err := c.do(ctx, http.MethodPost, "/submit-answer", req, &resp); err != nil {
		return AnswerResponse{}, err
	}
	return resp, nil
}

// RemainingCalls calls GET /remaining-calls.
func (c *Client) RemainingCalls(ctx context.Context) (RemainingCalls, error) {
	var resp remainingResponse
	if err := c.do(ctx, http.MethodGet, "/remaining-calls", nil, &resp); err != nil {
		return RemainingCalls{}, err
	}
	return resp.RemainingCalls, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := transportError(err)
		c.log.Warn("lesson api request failed", "path", path, "kind", apiErr.Kind, "error", err)
		return apiErr
	}
	defer func() {
		// Best-effort close; the body is fully read below.
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}
	c.log.Debug("lesson api response", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Kind: KindServer, Status: resp.StatusCode, Detail: "malformed response"}
	}
	return nil
}
