package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client talks to the payment service over JSON/HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ Authorizer = (*Client)(nil)

// NewClient creates a payment client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("payment client: invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: httpClient}, nil
}

// Authorize calls POST /authorizations.
func (c *Client) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	body := map[string]interface{}{
		"amount_minor":       req.Amount.Amount,
		"currency":           req.Amount.Currency,
		"payment_method_ref": req.PaymentMethodRef,
		"reference":          req.SessionID,
	}
	var resp struct {
		AuthorizationRef string `json:"authorization_ref"`
	}
	if err := c.do(ctx, http.MethodPost, "/authorizations", req.IdempotencyKey, body, &resp); err != nil {
		return "", err
	}
	if resp.AuthorizationRef == "" {
		return "", fmt.Errorf("%w: response has no authorization ref", ErrUnavailable)
	}
	return resp.AuthorizationRef, nil
}

// Void calls POST /authorizations/{ref}/void. An unknown authorization counts as voided.
func (c *Client) Void(ctx context.Context, authorizationRef string) error {
	err := c.do(ctx, http.MethodPost, "/authorizations/"+url.PathEscape(authorizationRef)+"/void", "", nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return nil
	}
	return err
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("payment service status %d: %s", e.status, e.body)
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode payment request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(msg))}
		switch {
		case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %w", ErrDeclined, se)
		default:
			return fmt.Errorf("%w: %w", ErrUnavailable, se)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	return nil
}
