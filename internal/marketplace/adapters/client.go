package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/crosslist/internal/marketplace/domain"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseBody = 1 << 20
)

// RESTClient is the shared HTTP plumbing for the marketplace adapters.
// Non-2xx responses become domain.APIError; transport faults pass through
// so the caller can classify timeouts and network errors.
type RESTClient struct {
	Marketplace domain.Type
	BaseURL     string
	HTTPClient  *http.Client
	Authorize   func(*http.Request)
}

func (c *RESTClient) GetJSON(ctx context.Context, path string, out any) error {
	_, err := c.do(ctx, http.MethodGet, path, nil, out)
	return err
}

func (c *RESTClient) PostJSON(ctx context.Context, path string, body any, out any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Authorize != nil {
		c.Authorize(req)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewAPIError(c.Marketplace, resp.StatusCode, snippet(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, domain.ErrInvalidPayload
		}
	}
	return json.RawMessage(raw), nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func decodeCredentials(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, domain.ErrInvalidConfig
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.ErrInvalidConfig
	}
	if len(out) == 0 {
		return nil, domain.ErrInvalidConfig
	}
	return out, nil
}

// ReadString extracts a required string credential.
func ReadString(credentials map[string]any, key string) (string, bool) {
	value, ok := credentials[key]
	if !ok {
		return "", false
	}
	cast, ok := value.(string)
	if !ok {
		return "", false
	}
	cast = strings.TrimSpace(cast)
	if cast == "" {
		return "", false
	}
	return cast, true
}
