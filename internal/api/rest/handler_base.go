package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestMeta contains metadata about the current request
type RequestMeta struct {
	RequestID string
	TraceID   string
	ClientIP  string
	UserAgent string
	StartTime time.Time
}

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// ErrorResponse provides detailed error information
type ErrorResponse struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Fields   map[string][]string    `json:"fields,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	validator    *validator.Validate
	tracer       trace.Tracer
	errorHandler *ErrorHandler
	logger       *slog.Logger
	apiVersion   string
	maxBodySize  int64
}

// NewBaseHandler creates a base handler with the ledger validators registered
func NewBaseHandler(apiVersion string, logger *slog.Logger) *BaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseHandler{
		validator:    NewValidator(),
		tracer:       otel.Tracer("api.rest"),
		errorHandler: NewErrorHandler(logger),
		logger:       logger,
		apiVersion:   apiVersion,
		maxBodySize:  1 << 20,
	}
}

// HandlerFunc is a handler that returns data for the envelope or an error
type HandlerFunc func(ctx context.Context, r *http.Request) (status int, data interface{}, err error)

// Wrap adapts fn to net/http, adding a span, the envelope, and error mapping.
// name should be the route pattern.
func (h *BaseHandler) Wrap(name string, fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", name),
			),
		)
		defer span.End()

		status, data, err := fn(ctx, r.WithContext(ctx))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			h.handleError(ctx, w, err)
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		h.writeSuccess(ctx, w, status, data)
	}
}

// decode reads a JSON body into v and validates it
func (h *BaseHandler) decode(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, h.maxBodySize))
	if err != nil {
		return h.parseBodyError(err)
	}
	if len(body) == 0 {
		return &ValidationError{Message: "Request body is required"}
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return &ValidationError{Message: "Content-Type must be application/json"}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ValidationError{Message: "Invalid JSON", Details: err.Error()}
	}
	if err := h.validator.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func (h *BaseHandler) parseBodyError(err error) error {
	var maxBytesError *http.MaxBytesError
	if errors.As(err, &maxBytesError) {
		return &ValidationError{
			Message: fmt.Sprintf("Request body too large (max %d bytes)", h.maxBodySize),
		}
	}
	return &ValidationError{Message: "Failed to read request body"}
}

func (h *BaseHandler) writeSuccess(ctx context.Context, w http.ResponseWriter, status int, data interface{}) {
	meta := requestMetaFrom(ctx)
	h.writeJSON(w, status, ResponseEnvelope{
		Success: true,
		Data:    data,
		Meta:    h.responseMeta(meta),
	})
}

func (h *BaseHandler) handleError(ctx context.Context, w http.ResponseWriter, err error) {
	status, resp := h.errorHandler.HandleError(ctx, err)
	h.writeError(ctx, w, status, resp)
}

func (h *BaseHandler) writeError(ctx context.Context, w http.ResponseWriter, status int, resp *ErrorResponse) {
	meta := requestMetaFrom(ctx)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		resp.TraceID = span.SpanContext().TraceID().String()
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	h.writeJSON(w, status, ResponseEnvelope{
		Success: false,
		Error:   resp,
		Meta:    h.responseMeta(meta),
	})
}

func (h *BaseHandler) responseMeta(meta *RequestMeta) ResponseMeta {
	rm := ResponseMeta{
		RequestID: meta.RequestID,
		Timestamp: time.Now().UTC(),
		Version:   h.apiVersion,
	}
	if !meta.StartTime.IsZero() {
		rm.ResponseTime = time.Since(meta.StartTime).String()
	}
	return rm
}

// writeJSON writes JSON response with proper headers
func (h *BaseHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// Context keys
type contextKey string

const (
	contextKeyRequestMeta contextKey = "request_meta"
	contextKeyCaller      contextKey = "caller"
)

func requestMetaFrom(ctx context.Context) *RequestMeta {
	if meta, ok := ctx.Value(contextKeyRequestMeta).(*RequestMeta); ok {
		return meta
	}
	return &RequestMeta{RequestID: uuid.NewString()}
}

// ValidationError represents a malformed request
type ValidationError struct {
	Message string
	Details string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// responseWriter captures the status code for logging and metrics
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.ResponseWriter.WriteHeader(code)
		rw.written = true
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Hijack passes through to the underlying writer for WebSocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.written = true
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
