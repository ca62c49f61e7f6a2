// Package gateway wraps outbound calls to the ERP/integration HTTP boundary.
// Every failure is classified and turned into customer-facing text; nothing
// in this package returns a raw transport error to the interpreter.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-flow/pkg/logger"
	"github.com/capitalize-ai/support-flow/pkg/metrics"
	"github.com/capitalize-ai/support-flow/pkg/tracing"
)

const (
	// DefaultQueryTimeout bounds integration queries.
	DefaultQueryTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds write actions.
	DefaultWriteTimeout = 30 * time.Second

	maxResponseBytes = 1 << 20

	shapeQuery = "query"
	shapeWrite = "write"
)

// Config holds the HTTP boundary settings.
type Config struct {
	BaseURL      string
	Token        string
	QueryTimeout time.Duration
	WriteTimeout time.Duration
	// Retries is the number of extra attempts after a failed call. Zero
	// keeps the boundary retry-free.
	Retries int
}

// Gateway performs integration queries and write actions.
type Gateway struct {
	cfg    Config
	client *http.Client
	logger *logger.Logger
}

// New creates a gateway. Zero timeouts take the defaults.
func New(cfg Config, log *logger.Logger) *Gateway {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultQueryTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Gateway{
		cfg:    cfg,
		client: &http.Client{},
		logger: log.Component("gateway"),
	}
}

// Query runs the integration query bound to action with {field: value} as
// the request body and formats the response for the customer.
func (g *Gateway) Query(ctx context.Context, action, field, value string) Result {
	path, ok := integrationEndpoints[action]
	if !ok || g.cfg.BaseURL == "" {
		g.logger.Warn("integration not configured",
			zap.String("action", action),
			zap.Bool("base_url_set", g.cfg.BaseURL != ""),
		)
		metrics.RecordGatewayCall(shapeQuery, action, string(ReasonNotConfigured), 0)
		return failure(ReasonNotConfigured, 0)
	}

	body, err := json.Marshal(map[string]string{field: value})
	if err != nil {
		return failure(ReasonFailed, 0)
	}

	endpoint := g.cfg.BaseURL + path
	status, payload, reason := g.call(ctx, shapeQuery, action, http.MethodPost, endpoint, body, g.cfg.QueryTimeout)
	if reason != "" {
		return failure(reason, status)
	}

	return Result{OK: true, StatusCode: status, Message: formatResponse(action, payload)}
}

// WriteRequest is a rendered write action.
type WriteRequest struct {
	ActionID string
	Method   string
	Endpoint string
	Body     string
}

// Write performs a write action. Only the outcome is reported; the response
// body is never handed back.
func (g *Gateway) Write(ctx context.Context, req WriteRequest) Result {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	if method != http.MethodPost && method != http.MethodPut {
		g.logger.Warn("unsupported write action method",
			zap.String("action", req.ActionID),
			zap.String("method", req.Method),
		)
		metrics.RecordGatewayCall(shapeWrite, req.ActionID, string(ReasonNotConfigured), 0)
		return failure(ReasonNotConfigured, 0)
	}

	endpoint, ok := g.resolve(req.Endpoint)
	if !ok {
		g.logger.Warn("write action endpoint not configured",
			zap.String("action", req.ActionID),
			zap.String("endpoint", req.Endpoint),
		)
		metrics.RecordGatewayCall(shapeWrite, req.ActionID, string(ReasonNotConfigured), 0)
		return failure(ReasonNotConfigured, 0)
	}

	status, _, reason := g.call(ctx, shapeWrite, req.ActionID, method, endpoint, []byte(req.Body), g.cfg.WriteTimeout)
	if reason != "" {
		return failure(reason, status)
	}
	return Result{OK: true, StatusCode: status}
}

func (g *Gateway) resolve(endpoint string) (string, bool) {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint, true
	}
	if g.cfg.BaseURL == "" || endpoint == "" {
		return "", false
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return g.cfg.BaseURL + endpoint, true
}

// call performs the request with the configured number of retries. It returns
// the status code, the decoded JSON body (nil when absent) and the failure
// reason, empty on success.
func (g *Gateway) call(ctx context.Context, shape, action, method, endpoint string, body []byte, timeout time.Duration) (int, map[string]any, Reason) {
	ctx, span := tracing.Tracer("github.com/capitalize-ai/support-flow/internal/gateway").Start(ctx, "gateway."+shape)
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.action", action),
		attribute.String("http.method", method),
		attribute.String("http.url", endpoint),
	)

	start := time.Now()
	var (
		status  int
		payload map[string]any
		reason  Reason
	)
	for attempt := 0; attempt <= g.cfg.Retries; attempt++ {
		status, payload, reason = g.do(ctx, method, endpoint, body, timeout)
		if reason == "" || !reason.retryable() || ctx.Err() != nil {
			break
		}
		g.logger.Debug("retrying external call",
			zap.String("action", action),
			zap.Int("attempt", attempt+1),
		)
	}
	duration := time.Since(start)

	outcome := "success"
	if reason != "" {
		outcome = string(reason)
		span.SetStatus(codes.Error, string(reason))
		g.logger.Warn("external call failed",
			zap.String("shape", shape),
			zap.String("action", action),
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.String("reason", string(reason)),
			zap.Int("status", status),
			zap.Duration("duration", duration),
		)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	metrics.RecordGatewayCall(shape, action, outcome, duration.Seconds())

	return status, payload, reason
}

func (g *Gateway) do(ctx context.Context, method, endpoint string, body []byte, timeout time.Duration) (int, map[string]any, Reason) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, ReasonNotConfigured
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, classifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if reason := classifyError(err); reason == ReasonTimeout {
			return resp.StatusCode, nil, reason
		}
	}

	if reason := classifyStatus(resp.StatusCode); reason != "" {
		return resp.StatusCode, nil, reason
	}

	var payload map[string]any
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			payload = nil
		}
	}
	return resp.StatusCode, payload, ""
}

func classifyError(err error) Reason {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ReasonUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return ReasonUnavailable
	}
	return ReasonFailed
}

func classifyStatus(status int) Reason {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized:
		return ReasonUnauthorized
	case status == http.StatusNotFound:
		return ReasonNotFound
	default:
		return ReasonFailed
	}
}

func failure(reason Reason, status int) Result {
	return Result{Reason: reason, StatusCode: status, Message: reason.UserMessage()}
}
