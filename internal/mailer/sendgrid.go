package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const sendGridBaseURL = "https://api.sendgrid.com"

type SendGridMailer struct {
	apiKey     string
	from       string
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	retryBase  time.Duration
	logger     *zap.Logger
}

func NewSendGridMailer(apiKey, from string, logger *zap.Logger) *SendGridMailer {
	return &SendGridMailer{
		apiKey:     apiKey,
		from:       from,
		baseURL:    sendGridBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		retryBase:  time.Second,
		logger:     logger,
	}
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, msg)
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(sgRequest{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.To}}}},
		From:             sgAddress{Email: m.from},
		Subject:          msg.Subject,
		Content:          []sgContent{{Type: "text/plain", Value: msg.Text}},
	})
	if err != nil {
		return fmt.Errorf("encode sendgrid request: %w", err)
	}

	b := retry.WithMaxRetries(m.maxRetries, retry.WithJitterPercent(10, retry.NewExponential(m.retryBase)))
	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := m.sendOnce(ctx, payload)
		if err == nil {
			return nil
		}
		if he, ok := err.(*HTTPError); ok && !retryableStatus(he.StatusCode) {
			return err
		}
		m.logger.Warn("sendgrid request retrying", zap.Int("attempt", attempt), zap.Error(err))
		return retry.RetryableError(err)
	})
}

func (m *SendGridMailer) sendOnce(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
