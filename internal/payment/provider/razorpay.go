// Package provider talks to a Razorpay-compatible payment gateway.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dErrors "transitpass/pkg/domain-errors"
	"transitpass/pkg/platform/circuit"
)

const defaultBaseURL = "https://api.razorpay.com"

// Config holds gateway credentials.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// Client mints orders. Transport failures and 5xx responses trip the breaker;
// while it is open calls fail fast with provider_error.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) {
		cl.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.New("payment-provider"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyID is the public key the checkout widget needs.
func (c *Client) KeyID() string {
	return c.cfg.KeyID
}

// VerifySignature checks a checkout signature against the key secret.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(orderID, paymentID, signature, c.cfg.KeySecret)
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt,omitempty"`
	PaymentCapture int    `json:"payment_capture"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder mints an order for amountMinor (paise for INR) and returns its id.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (string, error) {
	if !c.breaker.Allow() {
		return "", dErrors.New(dErrors.CodeProvider, "payment provider temporarily unavailable")
	}

	body, err := json.Marshal(createOrderRequest{
		Amount:         amountMinor,
		Currency:       currency,
		Receipt:        receipt,
		PaymentCapture: 1,
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode order request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "build order request")
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordFailure(ctx, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return "", dErrors.Wrap(err, dErrors.CodeTimeout, "payment provider timed out")
		}
		return "", dErrors.Wrap(err, dErrors.CodeProvider, "payment provider unreachable")
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.recordFailure(ctx, err)
		return "", dErrors.Wrap(err, dErrors.CodeProvider, "read provider response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		err := fmt.Errorf("provider returned %d", resp.StatusCode)
		c.recordFailure(ctx, err)
		return "", dErrors.Wrap(err, dErrors.CodeProvider, "payment provider error")
	}
	c.recordSuccess(ctx)

	if resp.StatusCode != http.StatusOK {
		var perr errorResponse
		_ = json.Unmarshal(payload, &perr)
		c.logger.WarnContext(ctx, "payment provider rejected order",
			"status", resp.StatusCode,
			"provider_code", perr.Error.Code,
			"description", perr.Error.Description,
		)
		return "", dErrors.New(dErrors.CodeProvider, "payment provider rejected the order")
	}

	var order orderResponse
	if err := json.Unmarshal(payload, &order); err != nil || order.ID == "" {
		return "", dErrors.New(dErrors.CodeProvider, "malformed provider response")
	}
	return order.ID, nil
}

func (c *Client) recordFailure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "payment provider circuit opened", "breaker", c.breaker.Name(), "error", err)
	}
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "payment provider circuit closed", "breaker", c.breaker.Name())
	}
}
