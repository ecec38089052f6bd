package genai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sethvargo/go-retry"
)

// Stream runs a completion over server-sent events and calls onDelta for every text chunk.
// Only establishing the stream is retried; once bytes flow, errors are returned as is.
// The full concatenated text is returned on success.
func (c *Client) Stream(ctx context.Context, req GenerateRequest, onDelta func(delta string) error) (string, error) {
	payload, err := json.Marshal(buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	path := c.modelPath(c.model, "streamGenerateContent")

	var resp *http.Response
	attempt := 0
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		r, err := c.post(ctx, path, "alt=sse", payload)
		if err != nil {
			return c.maybeRetry(path, attempt, err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	err = readSSE(resp.Body, func(_ string, data string) error {
		var chunk generateContentResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		text, err := chunk.text()
		if err != nil {
			return err
		}
		if text == "" {
			return nil
		}
		full.WriteString(text)
		if onDelta != nil {
			return onDelta(text)
		}
		return nil
	})
	if err != nil {
		return full.String(), err
	}
	if strings.TrimSpace(full.String()) == "" {
		return "", ErrEmptyOutput
	}
	return full.String(), nil
}

func readSSE(r io.Reader, onEvent func(event, data string) error) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)

	flush := func() error {
		if len(dataLines) == 0 {
			eventName = ""
			return nil
		}
		data := strings.Join(dataLines, "\n")
		ev := eventName
		dataLines, eventName = nil, ""
		return onEvent(ev, data)
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if ferr := flush(); ferr != nil {
				return ferr
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}

		if eof {
			return flush()
		}
	}
}
