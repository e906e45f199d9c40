package crediting

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
	"time"

	"smallbiznis-rewards/pkg/client"
	"smallbiznis-rewards/pkg/config"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

var (
	// ErrUnavailable covers transport failures, timeouts, 408, 409, 429 and 5xx answers. The credit may or may not have landed.
	ErrUnavailable = errors.New("crediting service unavailable")
	// ErrRejected is a definitive refusal; nothing was credited.
	ErrRejected = errors.New("crediting service rejected the request")
	// ErrCircuitOpen is returned without contacting the service.
	ErrCircuitOpen = errors.New("crediting circuit open")
	// ErrLookupUnsupported is returned by Lookup when the service cannot be queried by reference.
	ErrLookupUnsupported = errors.New("crediting lookup not supported")
)

var tracer = otel.Tracer("smallbiznis-rewards/crediting")

// Client talks to the external crediting service over HTTP. Every call goes through a
// circuit breaker; only unavailability counts against it.
type Client struct {
	baseURL         string
	apiKey          string
	lookupSupported bool
	http            *http.Client
	cb              *gobreaker.CircuitBreaker[*Confirmation]
}

type Params struct {
	fx.In
	Config *config.Config
}

func NewClient(p Params) *Client {
	cfg := p.Config.Crediting
	return New(cfg.BaseURL, cfg.APIKey, cfg.LookupSupported, client.NewHTTPClient(cfg.Timeout), gobreaker.Settings{
		Name:        "crediting",
		MaxRequests: cfg.BreakerMaxRequest,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= max(cfg.FailureThreshold, 1)
		},
	})
}

func New(baseURL, apiKey string, lookupSupported bool, httpClient *http.Client, settings gobreaker.Settings) *Client {
	settings.IsSuccessful = func(err error) bool {
		return err == nil || !errors.Is(err, ErrUnavailable) || errors.Is(err, errInProgress)
	}
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		zap.L().Warn("crediting circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		breakerState.Set(float64(to))
	}

	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          apiKey,
		lookupSupported: lookupSupported,
		http:            httpClient,
		cb:              gobreaker.NewCircuitBreaker[*Confirmation](settings),
	}
}

// Credit asks the service to credit amount to the account's linked external account.
// reference is sent as the idempotency key; replaying it returns the original confirmation.
func (c *Client) Credit(ctx context.Context, accountID string, amount int64, reference string) (*Confirmation, error) {
	ctx, span := tracer.Start(ctx, "crediting.Credit")
	defer span.End()
	span.SetAttributes(
		attribute.String("account_id", accountID),
		attribute.String("reference", reference),
	)

	body, err := json.Marshal(creditRequest{AccountID: accountID, Amount: amount, Reference: reference})
	if err != nil {
		return nil, err
	}

	conf, err := c.execute(func() (*Confirmation, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/credits", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(idempotencyHeader, reference)
		return c.do(req, reference)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("confirmation_id", conf.ID))
	return conf, nil
}

// Lookup finds a credit by its idempotency reference. found is false when the service has no such credit.
func (c *Client) Lookup(ctx context.Context, reference string) (*Confirmation, bool, error) {
	if !c.lookupSupported {
		return nil, false, ErrLookupUnsupported
	}

	ctx, span := tracer.Start(ctx, "crediting.Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("reference", reference))

	conf, err := c.execute(func() (*Confirmation, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/credits/"+url.PathEscape(reference), nil)
		if err != nil {
			return nil, err
		}
		return c.do(req, reference)
	})
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return conf, true, nil
}

var (
	errNotFound = fmt.Errorf("%w: credit not found", ErrRejected)
	// errInProgress is a 409 for a reference another request is still crediting.
	errInProgress = fmt.Errorf("%w: reference in progress", ErrUnavailable)
)

func (c *Client) execute(fn func() (*Confirmation, error)) (*Confirmation, error) {
	conf, err := c.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			requestsTotal.WithLabelValues("rejected_by_breaker").Inc()
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		requestsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}
	requestsTotal.WithLabelValues("success").Inc()
	return conf, nil
}

func (c *Client) do(req *http.Request, reference string) (*Confirmation, error) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	zap.L().Debug("crediting call finished",
		zap.String("method", req.Method),
		zap.String("reference", reference),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var conf Confirmation
		if err := json.Unmarshal(payload, &conf); err != nil || conf.ID == "" {
			return nil, fmt.Errorf("%w: malformed confirmation", ErrUnavailable)
		}
		if conf.Reference == "" {
			conf.Reference = reference
		}
		return &conf, nil
	case resp.StatusCode == http.StatusNotFound && req.Method == http.MethodGet:
		return nil, errNotFound
	case resp.StatusCode == http.StatusConflict:
		return nil, errInProgress
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		var e errorResponse
		_ = json.Unmarshal(payload, &e)
		return nil, fmt.Errorf("%w: status %d %s %s", ErrRejected, resp.StatusCode, e.Code, e.Message)
	}
}
