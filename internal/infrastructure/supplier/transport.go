package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 5 * 1024 * 1024

// RequestFailedError is a terminal supplier failure after retries.
// StatusCode is 0 when the supplier could not be reached at all.
// Permanent marks a 2xx response whose content can never be accepted.
type RequestFailedError struct {
	Supplier   procurement.SupplierSlug
	Operation  string
	StatusCode int
	Body       string
	Attempts   int
	Permanent  bool
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Supplier, e.Operation, e.Attempts, e.Err)
	}
	if e.Body == "" && e.Err != nil {
		return fmt.Sprintf("%s %s failed: HTTP %d: %v", e.Supplier, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: HTTP %d: %s", e.Supplier, e.Operation, e.StatusCode, e.Body)
}

// Rejected reports a failure that retrying the same request cannot fix:
// a 4xx answer or a Permanent protocol violation.
func (e *RequestFailedError) Rejected() bool {
	return e.Permanent || (e.StatusCode >= 400 && e.StatusCode < 500)
}

// Unwrap lets errors.Is match procurement.ErrSupplierRequestFailed, ErrSupplierRejected
// for rejections, and the transport cause
func (e *RequestFailedError) Unwrap() []error {
	errs := []error{procurement.ErrSupplierRequestFailed}
	if e.Rejected() {
		errs = append(errs, procurement.ErrSupplierRejected)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// RequestObserver receives the outcome of every supplier request
type RequestObserver interface {
	ObserveSupplierRequest(ctx context.Context, supplier, operation string, statusCode int, duration time.Duration, err error)
}

// transport performs JSON requests with bounded retry
type transport struct {
	supplier   procurement.SupplierSlug
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
	headers    map[string]string
	logger     *zap.Logger
	observer   RequestObserver
	sleep      func(ctx context.Context, d time.Duration) error
}

func newTransport(supplier procurement.SupplierSlug, baseURL string, timeoutSeconds int, retry RetryPolicy, headers map[string]string, logger *zap.Logger) *transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &transport{
		supplier: supplier,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		retry:   retry,
		headers: headers,
		logger:  logger.Named("supplier").With(zap.String("supplier", string(supplier))),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// do sends the request and decodes a 2xx JSON body into out.
func (t *transport) do(ctx context.Context, operation, method, path string, payload, out any) error {
	ctx, span := telemetry.StartSupplierSpan(ctx, string(t.supplier), operation, method)
	defer span.End()

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", t.supplier, err)
		}
	}

	start := time.Now()
	status, respBody, attempts, err := t.doWithRetry(ctx, operation, method, path, body)
	telemetry.SetAttributes(span, telemetry.SpanAttrHTTPStatus, status, telemetry.SpanAttrAttempts, attempts)
	if t.observer != nil {
		t.observer.ObserveSupplierRequest(ctx, string(t.supplier), operation, status, time.Since(start), err)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		decodeErr := &RequestFailedError{
			Supplier:   t.supplier,
			Operation:  operation,
			StatusCode: status,
			Body:       truncateBody(respBody),
			Attempts:   attempts,
			Err:        fmt.Errorf("decode response: %w", err),
		}
		telemetry.RecordError(span, decodeErr)
		return decodeErr
	}
	return nil
}

func (t *transport) doWithRetry(ctx context.Context, operation, method, path string, body []byte) (int, []byte, int, error) {
	var lastErr *RequestFailedError
	for attempt := 1; attempt <= t.retry.MaxAttempts; attempt++ {
		status, respBody, err := t.roundTrip(ctx, method, path, body)
		switch {
		case err == nil && status >= 200 && status < 300:
			return status, respBody, attempt, nil
		case err != nil:
			lastErr = &RequestFailedError{Supplier: t.supplier, Operation: operation, Attempts: attempt, Err: err}
			if ctx.Err() != nil {
				return 0, nil, attempt, lastErr
			}
		default:
			lastErr = &RequestFailedError{
				Supplier:   t.supplier,
				Operation:  operation,
				StatusCode: status,
				Body:       truncateBody(respBody),
				Attempts:   attempt,
			}
			if status < 500 {
				// 4xx will not succeed unmodified
				return status, respBody, attempt, lastErr
			}
		}

		if attempt < t.retry.MaxAttempts {
			t.logger.Warn("Supplier request failed, retrying",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Int("status", lastErr.StatusCode),
				zap.Error(lastErr),
			)
			if err := t.sleep(ctx, t.retry.Delay); err != nil {
				lastErr.Err = errors.Join(lastErr.Err, err)
				return lastErr.StatusCode, nil, attempt, lastErr
			}
		}
	}
	return lastErr.StatusCode, nil, lastErr.Attempts, lastErr
}

func (t *transport) roundTrip(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// truncateBody keeps at most 2048 bytes of b as valid UTF-8
func truncateBody(b []byte) string {
	const max = 2048
	if len(b) > max {
		n := max
		for n > 0 && !utf8.RuneStart(b[n]) {
			n--
		}
		b = b[:n]
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// flexibleID accepts identifiers the supplier sends either as JSON strings or numbers
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}
