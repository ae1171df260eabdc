package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, string(e.Body))
}

// Client is a small JSON-over-HTTP client shared by the provider adapters
// and the desktop effector.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
	Name       string
}

func New(name, baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Logger: log,
		Name:   name,
	}
}

// PostRaw sends an already encoded JSON body and returns the raw response body.
func (c *Client) PostRaw(ctx context.Context, path string, headers map[string]string, body []byte) ([]byte, error) {
	endpoint := c.BaseURL + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.Logger.Error(c.Name+" request failed",
			zap.String("path", path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(respBody)))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return respBody, nil
}

// PostJSON encodes in, posts it and decodes the response into out (when non-nil).
func (c *Client) PostJSON(ctx context.Context, path string, headers map[string]string, in any, out any) error {
	body, err := sonic.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.PostRaw(ctx, path, headers, body)
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
