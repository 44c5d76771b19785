package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"supportbridge/internal/entities"
)

const defaultHTTPTimeout = 30 * time.Second

// maxErrorBody bounds how much of an upstream error body ends up in an error string.
const maxErrorBody = 512

func defaultHTTPClient(c *http.Client) *http.Client {
	if c == nil {
		return &http.Client{Timeout: defaultHTTPTimeout}
	}
	return c
}

// doJSON sends payload (if any) as JSON and returns the status and raw body.
// Non-2xx statuses are not errors here; callers decide what a status means.
func doJSON(ctx context.Context, client *http.Client, method, url string, headers http.Header, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// upstreamError prefers the provider's "message" field over the raw body.
func upstreamError(service, op string, status int, body []byte) error {
	msg := strings.TrimSpace(gjson.GetBytes(body, "message").String())
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &entities.UpstreamError{Service: service, Op: op, Status: status, Err: errors.New(msg)}
}

func transportError(service, op string, err error) error {
	return &entities.UpstreamError{Service: service, Op: op, Err: err}
}
