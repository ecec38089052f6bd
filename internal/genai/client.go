package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL         = "https://generativelanguage.googleapis.com"
	DefaultMaxOutputTokens = 1000
	EmbeddingDimensions    = 768
)

var (
	ErrBlocked     = errors.New("prompt or response blocked by safety filters")
	ErrEmptyOutput = errors.New("model returned no text")
)

type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	EmbedModel string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	embedModel string
	timeout    time.Duration
	maxRetries uint64
	retryBase  time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func New(opts Options, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("generative language api key required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}
	if opts.EmbedModel == "" {
		opts.EmbedModel = "text-embedding-004"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		embedModel: opts.EmbedModel,
		timeout:    opts.Timeout,
		maxRetries: uint64(opts.MaxRetries),
		retryBase:  500 * time.Millisecond,
		httpClient: hc,
		logger:     logger.Named("genai"),
	}, nil
}

// Turn is one message of a conversation. Role is "user" or "assistant".
type Turn struct {
	Role string
	Text string
}

type GenerateRequest struct {
	History         []Turn
	Prompt          string
	MaxOutputTokens int
	// Safe enables the harassment and hate-speech filters at BLOCK_MEDIUM_AND_ABOVE.
	Safe bool
}

// --- wire types ---

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	SafetySettings   []safetySetting   `json:"safetySettings,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type generateContentResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type embedContentRequest struct {
	Model   string  `json:"model"`
	Content content `json:"content"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("generative language http %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("generative language http %d", e.StatusCode)
}

func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func wireRole(role string) string {
	if role == "assistant" || role == "model" {
		return "model"
	}
	return "user"
}

func buildRequest(req GenerateRequest) generateContentRequest {
	contents := make([]content, 0, len(req.History)+1)
	for _, t := range req.History {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		contents = append(contents, content{Role: wireRole(t.Role), Parts: []part{{Text: t.Text}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: req.Prompt}}})

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}
	out := generateContentRequest{
		Contents:         contents,
		GenerationConfig: &generationConfig{MaxOutputTokens: maxTokens},
	}
	if req.Safe {
		out.SafetySettings = []safetySetting{
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		}
	}
	return out
}

// text concatenates the first candidate's parts. Safety blocks surface as ErrBlocked.
func (r *generateContentResponse) text() (string, error) {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, r.PromptFeedback.BlockReason)
	}
	if len(r.Candidates) == 0 {
		return "", nil
	}
	c := r.Candidates[0]
	if c.FinishReason == "SAFETY" || c.FinishReason == "PROHIBITED_CONTENT" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, c.FinishReason)
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// Generate runs a single non-streaming completion.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	var resp generateContentResponse
	if err := c.doJSON(ctx, c.modelPath(c.model, "generateContent"), buildRequest(req), &resp); err != nil {
		return "", err
	}
	text, err := resp.text()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyOutput
	}
	return text, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body := embedContentRequest{
		Model:   "models/" + c.embedModel,
		Content: content{Parts: []part{{Text: text}}},
	}
	var resp embedContentResponse
	if err := c.doJSON(ctx, c.modelPath(c.embedModel, "embedContent"), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, errors.New("empty embedding")
	}
	return resp.Embedding.Values, nil
}

func (c *Client) modelPath(model, method string) string {
	return "/v1beta/models/" + url.PathEscape(model) + ":" + method
}

func (c *Client) backoff() retry.Backoff {
	return retry.WithMaxRetries(c.maxRetries, retry.WithJitterPercent(20, retry.NewExponential(c.retryBase)))
}

func (c *Client) doJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	attempt := 0
	return retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.post(reqCtx, path, "", payload)
		if err != nil {
			return c.maybeRetry(path, attempt, err)
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

func (c *Client) maybeRetry(path string, attempt int, err error) error {
	var he *HTTPError
	if errors.As(err, &he) && !he.Retryable() {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.logger.Warn("generative language request retrying",
		zap.String("path", path),
		zap.Int("attempt", attempt),
		zap.Error(err),
	)
	return retry.RetryableError(err)
}

// post issues the request and returns the response only for 2xx. The caller closes the body.
func (c *Client) post(ctx context.Context, path, rawQuery string, payload []byte) (*http.Response, error) {
	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
		he := &HTTPError{StatusCode: resp.StatusCode}
		var body apiErrorBody
		if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
			he.Status, he.Message = body.Error.Status, body.Error.Message
		} else {
			he.Message = strings.TrimSpace(string(raw))
		}
		return nil, he
	}
	return resp, nil
}
