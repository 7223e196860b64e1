// Package client talks to a swapd server: JSON over HTTP for instructions
// and reads, and the websocket event stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sai-swap/internal/api"
	"sai-swap/internal/domain"
	"sai-swap/internal/program"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// APIError is a non-2xx response carrying the server's error code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("swapd %d %s: %s", e.Status, e.Code, e.Message)
}

// HTTPClient calls the swapd HTTP API.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for reads.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a client for the server at baseURL, e.g. http://localhost:8080.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call performs one API request. GETs are retried with exponential backoff on
// transport errors, 429 and 5xx. Instructions are not idempotent, so POSTs are sent once.
func (c *HTTPClient) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			var er api.ErrorResponse
			if json.Unmarshal(respBody, &er) == nil && er.Code != "" {
				apiErr.Code, apiErr.Message = er.Code, er.Message
			} else {
				apiErr.Message = strings.TrimSpace(string(respBody))
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Submit sends a raw instruction.
func (c *HTTPClient) Submit(ctx context.Context, ix *program.Instruction) (*api.InstructionResponse, error) {
	var out api.InstructionResponse
	if err := c.call(ctx, http.MethodPost, "/v1/instructions", api.NewInstructionRequest(ix), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// State fetches a state record.
func (c *HTTPClient) State(ctx context.Context, key domain.PublicKey) (*api.StateView, error) {
	var out api.StateView
	if err := c.call(ctx, http.MethodGet, "/v1/states/"+key.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Vaults fetches vault balances, proceeds vault last.
func (c *HTTPClient) Vaults(ctx context.Context, key domain.PublicKey) ([]api.VaultView, error) {
	var out []api.VaultView
	if err := c.call(ctx, http.MethodGet, "/v1/states/"+key.String()+"/vaults", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events fetches the journal of a state.
func (c *HTTPClient) Events(ctx context.Context, key domain.PublicKey) ([]api.EventView, error) {
	var out []api.EventView
	if err := c.call(ctx, http.MethodGet, "/v1/states/"+key.String()+"/events", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Account fetches a token account.
func (c *HTTPClient) Account(ctx context.Context, addr domain.PublicKey) (*api.AccountView, error) {
	var out api.AccountView
	if err := c.call(ctx, http.MethodGet, "/v1/accounts/"+addr.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMint registers a mint through the dev endpoints.
func (c *HTTPClient) CreateMint(ctx context.Context, authority domain.PublicKey, decimals uint8) (domain.PublicKey, error) {
	var out api.AddressResponse
	err := c.call(ctx, http.MethodPost, "/v1/dev/mints", api.CreateMintRequest{
		Authority: authority.String(),
		Decimals:  decimals,
	}, &out)
	return out.Address, err
}

// CreateAccount opens a token account through the dev endpoints.
func (c *HTTPClient) CreateAccount(ctx context.Context, mint, owner domain.PublicKey) (domain.PublicKey, error) {
	var out api.AddressResponse
	err := c.call(ctx, http.MethodPost, "/v1/dev/accounts", api.CreateAccountRequest{
		Mint:  mint.String(),
		Owner: owner.String(),
	}, &out)
	return out.Address, err
}

// MintTo issues supply through the dev endpoints.
func (c *HTTPClient) MintTo(ctx context.Context, mint, dest, authority domain.PublicKey, amount uint64) (*api.AccountView, error) {
	var out api.AccountView
	err := c.call(ctx, http.MethodPost, "/v1/dev/mint-to", api.MintToRequest{
		Mint:        mint.String(),
		Destination: dest.String(),
		Authority:   authority.String(),
		Amount:      amount,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
