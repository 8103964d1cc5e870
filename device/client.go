package device

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

	"github.com/yeremiapane/omnipos/models"
)

// HTTPClient talks to the order endpoints of the server with a bearer
// token.
type HTTPClient struct {
	BaseURL  string
	Token    string
	// DeviceID is sent as X-Device-ID so the server can attribute batches.
	DeviceID string
	HTTP     *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// APIError is a non 2xx answer of the server.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("server answered %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("server answered %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

// SyncOrders posts the batch to the sync endpoint.
func (c *HTTPClient) SyncOrders(ctx context.Context, orders []models.Order) ([]models.SyncResult, error) {
	var results []models.SyncResult
	if err := c.do(ctx, http.MethodPost, "/api/sync/orders", orders, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ListOrders fetches the tenant's orders, newest first.
func (c *HTTPClient) ListOrders(ctx context.Context) ([]models.Order, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/orders", nil, &env); err != nil {
		return nil, err
	}
	var orders []models.Order
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &orders); err != nil {
			return nil, fmt.Errorf("decode orders: %w", err)
		}
	}
	return orders, nil
}

// ChangeStatus asks the server to move an order one workflow step.
func (c *HTTPClient) ChangeStatus(ctx context.Context, id string, to models.OrderStatus) (models.StatusChangeResponse, error) {
	var resp models.StatusChangeResponse
	path := "/api/orders/" + url.PathEscape(id) + "/status"
	err := c.do(ctx, http.MethodPost, path, models.StatusChangeRequest{NewStatus: to}, &resp)
	return resp, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			apiErr.Message, apiErr.Reason = env.Message, env.Reason
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
