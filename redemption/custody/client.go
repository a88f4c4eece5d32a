package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
	"github.com/LerianStudio/redemption-gateway/redemption/token"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBodyBytes  = 1 << 20

	transfersPath = "/v1/transfers"
	burnsPath     = "/v1/burns"
)

var (
	// ErrBaseURLRequired is returned when the configuration carries no API URL.
	ErrBaseURLRequired = errors.New("custody: base URL is required")
	// ErrNilClient is returned when a method is called on a nil client.
	ErrNilClient = errors.New("custody: client is nil")
)

// APIError describes a non-success response from the custody API.
type APIError struct {
	Operation  string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("custody %s: status %d (%s): %s", e.Operation, e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("custody %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

// HTTPDoer abstracts the HTTP transport so tests can inject failures
// without a live server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the custody API connection settings.
type Config struct {
	// BaseURL is the custody API root, e.g. https://custody.example.com.
	BaseURL string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// RequestTimeout bounds each call. Defaults to 30s.
	RequestTimeout time.Duration
	// HTTPClient overrides the transport. Defaults to a timeout-bound
	// http.Client.
	HTTPClient HTTPDoer
	// Logger receives request-level diagnostics. Defaults to a nop logger.
	Logger log.Logger
}

// Client calls the custody provider's HTTP API. It implements token.Gateway.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	timeout    time.Duration
	httpClient HTTPDoer
	logger     log.Logger
}

var _ token.Gateway = (*Client)(nil)

// New creates a custody client from the given configuration.
func New(cfg Config) (*Client, error) {
	rawURL := strings.TrimSpace(cfg.BaseURL)
	if rawURL == "" {
		return nil, ErrBaseURLRequired
	}

	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("custody: parse base URL: %w", err)
	}

	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("custody: base URL %q must include scheme and host", rawURL)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type transferRequest struct {
	AssetID     string `json:"assetId"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
}

type burnRequest struct {
	AssetID string `json:"assetId"`
	Amount  string `json:"amount"`
}

// errorResponse is the provider's error envelope. Both fields are optional;
// non-JSON bodies are tolerated.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TransferIn pulls amount of the asset from the holder's account into custody.
func (c *Client) TransferIn(ctx context.Context, assetID, from, to string, amount uint64) error {
	return c.post(ctx, "transfer_in", transfersPath, transferRequest{
		AssetID:     assetID,
		Source:      from,
		Destination: to,
		Amount:      strconv.FormatUint(amount, 10),
	})
}

// TransferOut releases amount of the asset from custody to the holder's
// account. The provider debits its own custody account, so no source is sent.
func (c *Client) TransferOut(ctx context.Context, assetID, to string, amount uint64) error {
	return c.post(ctx, "transfer_out", transfersPath, transferRequest{
		AssetID:     assetID,
		Destination: to,
		Amount:      strconv.FormatUint(amount, 10),
	})
}

// Burn permanently removes amount of the asset from circulation.
func (c *Client) Burn(ctx context.Context, assetID string, amount uint64) error {
	return c.post(ctx, "burn", burnsPath, burnRequest{
		AssetID: assetID,
		Amount:  strconv.FormatUint(amount, 10),
	})
}

func (c *Client) post(ctx context.Context, operation, path string, payload any) error {
	if c == nil || c.httpClient == nil {
		return ErrNilClient
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("custody %s: encode request: %w", operation, err)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL.JoinPath(path).String()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("custody %s: build request: %w", operation, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	opentelemetry.InjectHTTPContext(requestCtx, req.Header)

	c.logger.Log(ctx, log.LevelDebug, "custody request",
		log.String("operation", operation),
		log.String("endpoint", endpoint),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("custody %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		// Drain so the transport can reuse the connection.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))

		return nil
	}

	apiErr := c.decodeError(ctx, operation, resp)

	c.logger.Log(ctx, log.LevelWarn, "custody request rejected",
		log.String("operation", operation),
		log.Int("status", resp.StatusCode),
		log.Err(apiErr),
	)

	return apiErr
}

func (c *Client) decodeError(ctx context.Context, operation string, resp *http.Response) *APIError {
	apiErr := &APIError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		c.logger.Log(ctx, log.LevelWarn, "custody error body read failed", log.Err(err))

		return apiErr
	}

	var envelope errorResponse
	if json.Unmarshal(body, &envelope) == nil {
		if envelope.Code != "" {
			apiErr.Code = envelope.Code
		}

		if envelope.Message != "" {
			apiErr.Message = envelope.Message
		}
	}

	return apiErr
}
