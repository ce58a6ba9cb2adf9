// Package crm talks to the Salesforce Apex REST endpoints backing order
// lookups and support cases.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/voice-agent/backend/internal/model/order"
)

const (
	orderDetailsPath   = "/services/apexrest/getOrderDetails"
	caseStatusPath     = "/services/apexrest/CaseStatus/"
	deliveryUpdatePath = "/services/apexrest/updateExpectedDeliveryDate"

	maxErrorBody = 512
)

// ErrNotConfigured is returned when no base URL or token was supplied.
var ErrNotConfigured = errors.New("crm client not configured")

// APIError describes a non-2xx response from the CRM.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("crm responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("crm responded with status %d: %s", e.StatusCode, e.Body)
}

// CaseDetails are the fields required to open a support case.
type CaseDetails struct {
	Subject      string `json:"subject"`
	Description  string `json:"description"`
	Origin       string `json:"origin"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
}

// Client is a bearer-token client for the Apex REST services.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client for baseURL (e.g. https://acme.my.salesforce.com).
func NewClient(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: newHTTPClient(timeout),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// FetchOrderSummary returns the orders linked to a caller's phone number.
// A caller without orders yields an empty summary, not an error.
func (c *Client) FetchOrderSummary(ctx context.Context, phoneNumber string) (*order.Summary, error) {
	body, err := c.do(ctx, http.MethodPost, orderDetailsPath, map[string]string{"phoneNumber": phoneNumber})
	if err != nil {
		return nil, fmt.Errorf("fetch order summary: %w", err)
	}

	summary, err := order.ParseSummary(body)
	if err != nil {
		return nil, fmt.Errorf("fetch order summary: %w", err)
	}

	c.logger.Debug("order summary fetched", "orders", len(summary.Records), "customer", summary.CustomerName)
	return summary, nil
}

// CaseStatus looks up a case and returns its status, or "Unknown" when the
// response does not mention the case number.
func (c *Client) CaseStatus(ctx context.Context, caseNumber string) (string, error) {
	body, err := c.do(ctx, http.MethodGet, caseStatusPath+url.PathEscape(caseNumber), nil)
	if err != nil {
		return "", fmt.Errorf("case %s status: %w", caseNumber, err)
	}

	var statuses map[string]any
	if err := json.Unmarshal(body, &statuses); err != nil {
		return "", fmt.Errorf("case %s status: decode response: %w", caseNumber, err)
	}

	status, ok := statuses[caseNumber]
	if !ok || status == nil {
		return "Unknown", nil
	}
	return fmt.Sprint(status), nil
}

// CreateCase opens a support case and returns the raw CRM response.
func (c *Client) CreateCase(ctx context.Context, details CaseDetails) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, caseStatusPath, details)
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	return json.RawMessage(body), nil
}

// UpdateDeliveryDate sets a new expected delivery date (YYYY-MM-DD).
func (c *Client) UpdateDeliveryDate(ctx context.Context, expectedDeliveryDate string) (json.RawMessage, error) {
	payload := map[string]string{"expectedDeliveryDate": expectedDeliveryDate}
	body, err := c.do(ctx, http.MethodPost, deliveryUpdatePath, payload)
	if err != nil {
		return nil, fmt.Errorf("update delivery date: %w", err)
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil || c.baseURL == "" || c.token == "" {
		return nil, ErrNotConfigured
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("crm request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := strings.TrimSpace(string(body))
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: excerpt}
	}
	return body, nil
}
