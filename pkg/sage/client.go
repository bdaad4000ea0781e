// Package sage provides a client for the SAGE Connect API: presentation
// fetch (serviceId 301) and Full Product Detail (serviceId 105).
package sage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const apiVersion = 130

const (
	servicePresentation  = 301
	serviceProductDetail = 105
)

// Client defines the Connect API operations used by the pipeline.
type Client interface {
	// GetPresentation fetches one presentation by numeric id.
	GetPresentation(ctx context.Context, presID int64) (*Presentation, error)
	// GetProductDetail fetches the Full Product Detail record by encrypted
	// product id (or SPC as a fallback key).
	GetProductDetail(ctx context.Context, prodEID string, includeSupplier bool) (*ProductDetail, error)
}

// APIError is an explicit error response from the service.
type APIError struct {
	ErrNum string
	ErrMsg string
}

func (e *APIError) Error() string {
	return "sage: api error " + e.ErrNum + ": " + e.ErrMsg
}

// IsServiceDisabled reports whether the error means the called service is
// not enabled for this account (errNum 10010). The detail pipeline probes
// for this once and falls back to presentation costs.
func IsServiceDisabled(err error) bool {
	var apierr *APIError
	if !eris.As(err, &apierr) {
		return false
	}
	return apierr.ErrNum == "10010" ||
		strings.Contains(apierr.ErrMsg, "not currently enabled")
}

// Option configures the SAGE client.
type Option func(*httpClient)

// WithBaseURL sets a custom endpoint URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) { c.http.Timeout = d }
}

// Auth carries the Connect API credentials.
type Auth struct {
	AcctID  string `json:"acctId"`
	LoginID string `json:"loginId"`
	Key     string `json:"key"`
}

type httpClient struct {
	auth    Auth
	baseURL string
	http    *http.Client
}

// NewClient creates a new Connect API client.
func NewClient(auth Auth, opts ...Option) Client {
	c := &httpClient{
		auth:    auth,
		baseURL: "https://www.promoplace.com/ws/ws.dll/ConnectAPI",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// call posts a request payload and decodes the response envelope, retrying
// transient HTTP failures with exponential backoff. API-level errors
// ({"ok": false, ...}) are not retried.
func (c *httpClient) call(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "sage: marshal request")
	}

	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "sage: create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return eris.Wrap(lastErr, "sage: request failed")
		}

		respBody, readErr := readAll(resp)
		if readErr != nil {
			return eris.Wrap(readErr, "sage: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("sage: status %d: %s", resp.StatusCode, string(respBody))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return eris.Errorf("sage: unexpected status %d: %s", resp.StatusCode, string(respBody))
		}
		if len(respBody) == 0 {
			return eris.New("sage: empty response body")
		}

		var envelope struct {
			OK     *bool  `json:"ok"`
			ErrNum string `json:"errNum"`
			ErrMsg string `json:"errMsg"`
		}
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return eris.Wrap(err, "sage: unmarshal response envelope")
		}
		if envelope.OK != nil && !*envelope.OK {
			return &APIError{ErrNum: envelope.ErrNum, ErrMsg: envelope.ErrMsg}
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "sage: unmarshal response")
		}
		return nil
	}

	return eris.Wrap(lastErr, "sage: request failed")
}

func readAll(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *httpClient) GetPresentation(ctx context.Context, presID int64) (*Presentation, error) {
	payload := map[string]any{
		"serviceId": servicePresentation,
		"apiVer":    apiVersion,
		"auth":      c.auth,
		"search": map[string]any{
			"presId": []int64{presID},
		},
	}

	var result struct {
		Presentations []Presentation `json:"presentations"`
	}
	if err := c.call(ctx, payload, &result); err != nil {
		return nil, err
	}
	if len(result.Presentations) == 0 {
		return nil, eris.Errorf("sage: presentation %d not found", presID)
	}
	return &result.Presentations[0], nil
}

func (c *httpClient) GetProductDetail(ctx context.Context, prodEID string, includeSupplier bool) (*ProductDetail, error) {
	include := 0
	if includeSupplier {
		include = 1
	}
	payload := map[string]any{
		"serviceId":       serviceProductDetail,
		"apiVer":          apiVersion,
		"auth":            c.auth,
		"prodEId":         prodEID,
		"includeSuppInfo": include,
	}

	var result struct {
		Product *ProductDetail `json:"product"`
	}
	if err := c.call(ctx, payload, &result); err != nil {
		return nil, err
	}
	if result.Product == nil {
		return nil, eris.Errorf("sage: no product detail for %s", prodEID)
	}
	return result.Product, nil
}
