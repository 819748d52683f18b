// Package provider is the HTTP client for the Immutable minting API.
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
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mintgate/internal/mint/metrics"
	"mintgate/internal/mint/models"
	"mintgate/pkg/platform/circuit"
	"mintgate/pkg/platform/sentinel"
)

// HeaderAPIKey carries the secret API key on every provider call.
const HeaderAPIKey = "x-immutable-api-key"

const (
	opCreate = "create_mint_request"
	opGet    = "get_mint_request"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	ChainName  string
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// Client talks to the minting API. Every call goes through a circuit breaker:
// transport errors, 5xx and 429 count as failures; other responses count as
// successes because the provider answered.
type Client struct {
	baseURL string
	apiKey  string
	chain   string
	client  HTTPDoer
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Client)

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		chain:   cfg.ChainName,
		client:  httpClient,
		breaker: circuit.New("immutable"),
		logger:  slog.Default(),
		tracer:  otel.Tracer("mintgate/provider"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Available reports whether the breaker lets calls through.
func (c *Client) Available() bool {
	return c.breaker.Allow()
}

type mintAsset struct {
	OwnerAddress string              `json:"owner_address"`
	ReferenceID  string              `json:"reference_id"`
	TokenID      string              `json:"token_id"`
	Metadata     *models.NFTMetadata `json:"metadata,omitempty"`
}

type createMintRequestBody struct {
	Assets []mintAsset `json:"assets"`
}

type mintRequestResult struct {
	ReferenceID  string `json:"reference_id"`
	Status       string `json:"status"`
	TokenID      string `json:"token_id"`
	OwnerAddress string `json:"owner_address"`
}

type getMintRequestBody struct {
	Result []mintRequestResult `json:"result"`
}

// CreateMintRequest asks the provider to mint req.TokenID to req.OwnerAddress.
// The provider deduplicates by reference id, so resubmission is safe.
func (c *Client) CreateMintRequest(ctx context.Context, req models.MintRequest) error {
	body, err := json.Marshal(createMintRequestBody{Assets: []mintAsset{{
		OwnerAddress: req.OwnerAddress,
		ReferenceID:  req.ReferenceID,
		TokenID:      fmt.Sprintf("%d", req.TokenID),
		Metadata:     req.Metadata,
	}}})
	if err != nil {
		return fmt.Errorf("encode mint request: %w", err)
	}

	resp, err := c.do(ctx, opCreate, http.MethodPost, c.mintRequestsURL(req.CollectionAddress), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		// Already received under this reference id.
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return statusError(resp)
	}
}

// GetMintRequest returns the provider's view of one mint request, or
// sentinel.ErrNotFound when the provider has no record of it.
func (c *Client) GetMintRequest(ctx context.Context, collection, referenceID string) (*models.ProviderStatus, error) {
	endpoint := c.mintRequestsURL(collection) + "/" + url.PathEscape(referenceID)
	resp, err := c.do(ctx, opGet, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, sentinel.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out getMintRequestBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode mint request: %w", err)
	}
	if len(out.Result) == 0 {
		return nil, sentinel.ErrNotFound
	}
	result := out.Result[0]
	status, err := models.ParseStatus(result.Status)
	if err != nil {
		return nil, fmt.Errorf("mint request %s: %w", referenceID, err)
	}
	return &models.ProviderStatus{
		ReferenceID:  result.ReferenceID,
		Status:       status,
		TokenID:      result.TokenID,
		OwnerAddress: strings.ToLower(result.OwnerAddress),
	}, nil
}

func (c *Client) mintRequestsURL(collection string) string {
	return fmt.Sprintf("%s/v1/chains/%s/collections/%s/nfts/mint-requests",
		c.baseURL, url.PathEscape(c.chain), url.PathEscape(collection))
}

// do executes one call through the breaker and records its outcome.
func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "provider."+op, trace.WithAttributes(
		attribute.String("http.method", method),
	))
	defer span.End()

	if !c.breaker.Allow() {
		c.metrics.IncProviderCall(op, "circuit_open")
		return nil, fmt.Errorf("%s: circuit open: %w", op, sentinel.ErrUnavailable)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(HeaderAPIKey, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		span.RecordError(err)
		c.recordFailure(ctx, op, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: timeout: %w", op, sentinel.ErrUnavailable)
		}
		return nil, fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		err := statusError(resp)
		resp.Body.Close()
		c.recordFailure(ctx, op, err)
		return nil, fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}

	if change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "provider circuit closed", "breaker", c.breaker.Name())
		c.metrics.SetCircuitOpen(false)
	}
	c.metrics.IncProviderCall(op, "ok")
	return resp, nil
}

func (c *Client) recordFailure(ctx context.Context, op string, err error) {
	c.metrics.IncProviderCall(op, "error")
	c.logger.WarnContext(ctx, "provider call failed", "operation", op, "error", err)
	if change := c.breaker.RecordFailure(); change.Opened {
		c.logger.ErrorContext(ctx, "provider circuit opened", "breaker", c.breaker.Name())
		c.metrics.SetCircuitOpen(true)
	}
}

// statusError drains a short excerpt of the body for diagnostics.
func statusError(resp *http.Response) error {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
}
