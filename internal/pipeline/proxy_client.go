package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatforms-backend/internal/models"
)

// ProxyPath is where the webhook forwarding proxy is mounted.
const ProxyPath = "/api/v1/webhook/proxy"

// StatusError is returned when the proxy answered with a non-200 status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webhook proxy returned status %d", e.Status)
	}
	return fmt.Sprintf("webhook proxy returned status %d: %s", e.Status, e.Message)
}

// HTTPProxy calls the webhook forwarding proxy over HTTP.
type HTTPProxy struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPProxy(baseURL, apiKey string) *HTTPProxy {
	return &HTTPProxy{
		endpoint: strings.TrimRight(baseURL, "/") + ProxyPath,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

func (c *HTTPProxy) Forward(ctx context.Context, req models.ProxyRequest) (*models.ProxyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proxy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(models.InternalKeyHeader, c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call webhook proxy: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy response: %w", err)
	}

	var out models.ProxyResponse
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Message: out.Error}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode proxy response: %w", decodeErr)
	}
	return &out, nil
}
